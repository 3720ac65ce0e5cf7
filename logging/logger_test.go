package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   LogLevelDebug,
		"INFO":    LogLevelInfo,
		"":        LogLevelInfo,
		"warning": LogLevelWarn,
		"error":   LogLevelError,
	}
	for in, want := range cases {
		got, ok := ParseLevel(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	got, ok := ParseLevel("verbose")
	assert.False(t, ok)
	assert.Equal(t, LogLevelInfo, got)
}

func TestNewLogger_JSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LogLevelDebug, Format: "json", Output: &buf, Component: "weather"})

	l.Debug("weather.api.retry", "attempt", 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "weather.api.retry", entry["msg"])
	assert.Equal(t, "weather", entry["component"])
	assert.EqualValues(t, 1, entry["attempt"])
}

func TestNewLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LogLevelWarn, Output: &buf})

	l.Info("ignored")
	assert.Zero(t, buf.Len())

	l.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	l := With(NewLogger(&Config{Format: "json", Output: &buf}), "session_id", "s1")
	l.Info("runner.turn.start")
	assert.Contains(t, buf.String(), `"session_id":"s1"`)

	// NoOpLogger has no With; the same value comes back.
	assert.Equal(t, NoOpLogger{}, With(NoOpLogger{}, "k", "v"))
}
