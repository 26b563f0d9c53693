package config

import (
	"os"
	"sync"
)

// dockerHostAlias reaches the host machine from inside a container.
const dockerHostAlias = "host.docker.internal"

var (
	containerOnce sync.Once
	inContainer   bool
)

// containerMarkers are files Docker and Podman create inside containers.
var containerMarkers = []string{"/.dockerenv", "/run/.containerenv"}

// IsRunningInDocker reports whether the process runs inside a container.
// SCHEMA_GRAPH_IN_CONTAINER=true|false overrides detection. The result is
// computed once.
func IsRunningInDocker() bool {
	containerOnce.Do(func() {
		inContainer = detectContainer(os.Getenv("SCHEMA_GRAPH_IN_CONTAINER"), fileExists)
	})
	return inContainer
}

func detectContainer(override string, exists func(string) bool) bool {
	switch override {
	case "true", "1":
		return true
	case "false", "0":
		return false
	}
	for _, marker := range containerMarkers {
		if exists(marker) {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ResolveHostForDocker maps loopback hosts to the host machine when
// running in a container, so a PostgreSQL, Redis or introspected database
// on the developer's machine stays reachable. Other hosts are unchanged.
func ResolveHostForDocker(host string) string {
	return resolveHost(host, IsRunningInDocker())
}

func resolveHost(host string, containerized bool) string {
	if !containerized {
		return host
	}
	switch host {
	case "localhost", "127.0.0.1", "::1", "[::1]":
		return dockerHostAlias
	}
	return host
}
