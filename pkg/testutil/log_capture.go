// Package testutil provides helpers shared by respimg tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/lucas-albers-lz4/respimg/pkg/log"
	"github.com/stretchr/testify/assert"
)

// CaptureJSONLogs captures JSON log output written while testFunc runs at logLevel,
// and returns the raw output plus one parsed map per log line.
// The previous writer and level are restored afterwards.
func CaptureJSONLogs(logLevel log.Level, testFunc func()) (logOutput string, parsedLogs []map[string]any, err error) {
	originalLevel := log.CurrentLevel()
	var logBuf bytes.Buffer
	restoreLog := log.SetOutput(&logBuf)
	defer restoreLog()

	log.SetLevel(logLevel)
	defer log.SetLevel(originalLevel)

	var panicErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicErr = fmt.Errorf("panic during log capture: %v", r)
			}
		}()
		testFunc()
	}()

	logOutput = logBuf.String()
	if panicErr != nil {
		return logOutput, nil, panicErr
	}

	for i, line := range strings.Split(strings.TrimSpace(logOutput), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var entry map[string]any
		if unmarshalErr := json.Unmarshal([]byte(line), &entry); unmarshalErr != nil {
			return logOutput, parsedLogs, fmt.Errorf("failed to unmarshal log line %d as JSON: %w\nLine content: %s", i+1, unmarshalErr, line)
		}
		parsedLogs = append(parsedLogs, entry)
	}
	return logOutput, parsedLogs, nil
}

// AssertLogContainsJSON checks that some captured entry contains every key-value
// pair in expectedLog.
func AssertLogContainsJSON(t *testing.T, logs []map[string]any, expectedLog map[string]any) {
	t.Helper()
	for _, entry := range logs {
		if containsAll(entry, expectedLog) {
			return
		}
	}

	var logBuffer bytes.Buffer
	encoder := json.NewEncoder(&logBuffer)
	encoder.SetIndent("", "  ")
	for _, entry := range logs {
		_ = encoder.Encode(entry) //nolint:errcheck // test helper output only
	}
	expectedJSON, _ := json.MarshalIndent(expectedLog, "", "  ") //nolint:errcheck // test helper output only

	assert.Fail(t, "Expected log entry not found",
		"Expected log containing:\n%s\n\nActual captured logs:\n%s",
		string(expectedJSON), logBuffer.String())
}

// containsAll reports whether actual holds every key of expected with an equal value.
// JSON numbers decode as float64, so integer expectations are widened before comparing.
func containsAll(actual, expected map[string]any) bool {
	for key, want := range expected {
		got, ok := actual[key]
		if !ok {
			return false
		}
		if f, isFloat := got.(float64); isFloat {
			switch w := want.(type) {
			case int:
				if f != float64(w) {
					return false
				}
				continue
			case int64:
				if f != float64(w) {
					return false
				}
				continue
			}
		}
		if got != want {
			return false
		}
	}
	return true
}
