package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		levelStr string
		want     Level
		wantErr  bool
	}{
		{name: "debug", levelStr: "DEBUG", want: LevelDebug},
		{name: "lowercase debug", levelStr: "debug", want: LevelDebug},
		{name: "mixed case info", levelStr: "Info", want: LevelInfo},
		{name: "warn", levelStr: "WARN", want: LevelWarn},
		{name: "warning", levelStr: "WARNING", want: LevelWarn},
		{name: "error", levelStr: "error", want: LevelError},
		{name: "invalid", levelStr: "LOUD", want: LevelInfo, wantErr: true},
		{name: "empty", levelStr: "", want: LevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.levelStr)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidLogLevel))
				assert.Contains(t, err.Error(), tt.levelStr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestLevelStringRepresentation(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(99).String())
}

func TestLevelBasedFiltering(t *testing.T) {
	original := CurrentLevel()
	defer SetLevel(original)

	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	SetLevel(LevelWarn)
	Debug("hidden debug")
	Info("hidden info")
	Warn("visible warn", "source", "images/test.png")
	Errorf("visible %s", "error")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible warn")
	assert.Contains(t, out, "visible error")
	assert.False(t, IsDebugEnabled())

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "images/test.png", entry["source"])
	_, hasTime := entry["time"]
	assert.False(t, hasTime, "time attribute is dropped from JSON output")
}
