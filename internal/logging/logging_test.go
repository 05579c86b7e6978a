package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		raw  string
		want zerolog.Level
		ok   bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, true},
		{" WARNING ", zerolog.WarnLevel, true},
		{"error", zerolog.ErrorLevel, true},
		{"off", zerolog.Disabled, true},
		{"verbose", zerolog.InfoLevel, false},
	}

	for _, tc := range cases {
		got, ok := ParseLevel(tc.raw)
		assert.Equal(t, tc.want, got, "level for %q", tc.raw)
		assert.Equal(t, tc.ok, ok, "ok for %q", tc.raw)
	}
}

func TestNewWithWriterHonoursLevel(t *testing.T) {
	t.Setenv(EnvLogLevel, "")

	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "roundbvals", "warn")

	logger.Info().Msg("hidden")
	assert.Empty(t, buf.String())

	logger.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "roundbvals")
}

func TestEnvOverridesConfiguredLevel(t *testing.T) {
	t.Setenv(EnvLogLevel, "debug")

	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "atlasoverlay", "error")

	logger.Debug().Msg("visible")
	assert.Contains(t, buf.String(), "visible")
}
