package config

import "testing"

func TestResolveHost(t *testing.T) {
	tests := []struct {
		host          string
		containerized bool
		want          string
	}{
		{"localhost", false, "localhost"},
		{"127.0.0.1", false, "127.0.0.1"},
		{"localhost", true, dockerHostAlias},
		{"127.0.0.1", true, dockerHostAlias},
		{"::1", true, dockerHostAlias},
		{"db.internal", true, "db.internal"},
		{dockerHostAlias, true, dockerHostAlias},
	}

	for _, tt := range tests {
		if got := resolveHost(tt.host, tt.containerized); got != tt.want {
			t.Errorf("resolveHost(%q, %v) = %q, want %q", tt.host, tt.containerized, got, tt.want)
		}
	}
}

func TestDetectContainer(t *testing.T) {
	none := func(string) bool { return false }
	podman := func(path string) bool { return path == "/run/.containerenv" }

	if detectContainer("", none) {
		t.Error("expected no container without markers")
	}
	if !detectContainer("", podman) {
		t.Error("expected podman marker to be detected")
	}
	if detectContainer("false", podman) {
		t.Error("expected override false to win over markers")
	}
	if !detectContainer("true", none) {
		t.Error("expected override true to force container mode")
	}
}
