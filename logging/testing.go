package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

// testAppender routes log lines through tb.Log so that `go test` attributes them to the test
// that produced them, including when tests run in parallel.
type testAppender struct {
	tb testing.TB
}

// NewTestAppender returns an appender that writes through tb.Log in local time.
func NewTestAppender(tb testing.TB) Appender {
	return &testAppender{tb}
}

// Write logs the entry with the same layout as ConsoleAppender. tb.Helper keeps the file:line
// that go test prepends pointing at the logging call rather than at this method.
func (tapp *testAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	tapp.tb.Helper()
	line, err := formatLine(entry, fields)
	tapp.tb.Log(line)
	return err
}

// Sync is a no-op.
func (tapp *testAppender) Sync() error {
	return nil
}
