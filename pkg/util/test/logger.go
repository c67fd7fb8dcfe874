package test

import (
	"sync"
	"testing"

	"github.com/go-kit/log"
)

var _ log.Logger = (*TestingLogger)(nil)

// TestingLogger writes log lines to the test output. Lines logged by
// goroutines that outlive the test are dropped.
type TestingLogger struct {
	t    testing.TB
	mtx  sync.Mutex
	done bool
}

func NewTestingLogger(t testing.TB) *TestingLogger {
	l := &TestingLogger{t: t}
	t.Cleanup(func() {
		l.mtx.Lock()
		defer l.mtx.Unlock()
		l.done = true
	})
	return l
}

func (l *TestingLogger) Log(keyvals ...interface{}) error {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	if l.done {
		return nil
	}
	l.t.Helper()
	l.t.Log(keyvals...)
	return nil
}
