package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObjectKind(t *testing.T) {
	tests := []struct {
		in   string
		want ObjectKind
	}{
		{"table", KindTable},
		{"TABLE", KindTable},
		{"tAbLe", KindTable},
		{"View", KindView},
		{"vIEW", KindView},
		{"DataSet", KindDataset},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseObjectKind(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseObjectKind_Unknown(t *testing.T) {
	for _, in := range []string{"", "field", " table", "tables"} {
		_, err := ParseObjectKind(in)
		assert.Error(t, err, "input %q", in)
	}
}
