package jsonutil

import (
	"encoding/json"
	"testing"
)

func TestFlexibleStringValue(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{``, ""},
		{`null`, ""},
		{`"employees"`, "employees"},
		{`42`, "42"},
		{`-7`, "-7"},
		{`3.5`, "3.5"},
		{`1e3`, "1000"},
		{`true`, "true"},
		{`false`, "false"},
		{`["a","b"]`, `["a","b"]`},
		{`{"k":"v"}`, `{"k":"v"}`},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := FlexibleStringValue(json.RawMessage(tt.raw)); got != tt.want {
				t.Errorf("FlexibleStringValue(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
