package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap/zapcore"
)

// DefaultTimeFormatStr is the time format used by the console and test appenders.
const DefaultTimeFormatStr = "2006-01-02T15:04:05.000Z0700"

// Appender is an output for log entries. This is a subset of the `zapcore.Core` interface.
type Appender interface {
	// Write submits a structured log entry to the appender for logging.
	Write(zapcore.Entry, []zapcore.Field) error
	// Sync is for signaling that any buffered logs to `Write` should be flushed. E.g: at shutdown.
	Sync() error
}

// ConsoleAppender will create human readable lines from log events and write them to the desired
// output sink.
type ConsoleAppender struct {
	io.Writer
}

// NewStdoutAppender creates a new appender that outputs to stdout.
func NewStdoutAppender() ConsoleAppender {
	return ConsoleAppender{os.Stdout}
}

// NewWriterAppender creates a new appender that outputs to the input writer.
func NewWriterAppender(writer io.Writer) ConsoleAppender {
	return ConsoleAppender{writer}
}

// Write outputs the log entry as tab separated time, level, caller and message, followed by the
// fields encoded as a json object.
func (appender ConsoleAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	line, encodeErr := formatLine(entry, fields)
	if _, err := fmt.Fprintln(appender.Writer, line); err != nil {
		return err
	}
	return encodeErr
}

// formatLine renders an entry the way every appender in this package prints it. When the fields
// cannot be encoded the line is still usable and the encoding error is returned alongside it.
func formatLine(entry zapcore.Entry, fields []zapcore.Field) (string, error) {
	const maxLength = 6
	toPrint := make([]string, 0, maxLength)
	toPrint = append(toPrint, entry.Time.Format(DefaultTimeFormatStr), strings.ToUpper(entry.Level.String()))
	if entry.LoggerName != "" {
		toPrint = append(toPrint, entry.LoggerName)
	}
	if entry.Caller.Defined {
		toPrint = append(toPrint, callerToString(&entry.Caller))
	}
	toPrint = append(toPrint, entry.Message)
	if len(fields) == 0 {
		return strings.Join(toPrint, "\t"), nil
	}

	// an empty entry makes the encoder emit only the fields, in order
	jsonEncoder := zapcore.NewJSONEncoder(zapcore.EncoderConfig{SkipLineEnding: true})
	buf, err := jsonEncoder.EncodeEntry(zapcore.Entry{}, fields)
	if err != nil {
		return strings.Join(toPrint, "\t"), err
	}
	toPrint = append(toPrint, buf.String())
	buf.Free()
	return strings.Join(toPrint, "\t"), nil
}

// Sync is a no-op.
func (appender ConsoleAppender) Sync() error {
	return nil
}

// Return example: "calibration/solver.go:36".
func callerToString(caller *zapcore.EntryCaller) string {
	dir, file := filepath.Split(caller.File)
	return fmt.Sprintf("%s/%s:%d", filepath.Base(dir), file, caller.Line)
}
