package testutil

import (
	"bytes"
	"io"
	"sync"
	"testing"

	"github.com/lucas-albers-lz4/respimg/pkg/log"
)

// mutex protects concurrent access to logger state
var mutex sync.Mutex

// SuppressLogging discards all logging output until the returned function is called.
func SuppressLogging() func() {
	mutex.Lock()
	defer mutex.Unlock()

	restoreLog := log.SetOutput(io.Discard)
	return func() {
		mutex.Lock()
		defer mutex.Unlock()
		restoreLog()
	}
}

// UseTestLogger buffers log output for the duration of the test and prints it
// only if the test fails.
func UseTestLogger(t *testing.T) {
	t.Helper()
	if testing.Verbose() {
		return
	}

	mutex.Lock()
	var logBuf bytes.Buffer
	restoreLog := log.SetOutput(&logBuf)
	mutex.Unlock()

	t.Cleanup(func() {
		mutex.Lock()
		restoreLog()
		mutex.Unlock()
		if t.Failed() {
			t.Logf("Log output captured during test:\n%s", logBuf.String())
		}
	})
}
