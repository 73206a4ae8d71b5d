package log

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestResolveLevel(t *testing.T) {
	cases := []struct {
		env   string
		level string
		want  zerolog.Level
	}{
		{"production", "", zerolog.InfoLevel},
		{"development", "", zerolog.DebugLevel},
		{"production", "warn", zerolog.WarnLevel},
		{"development", "nonsense", zerolog.DebugLevel},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, resolveLevel(tc.env, tc.level), "%s/%s", tc.env, tc.level)
	}
}
