package logging

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"go.viam.com/test"
)

type BasicStruct struct {
	X int
	y string
}

// assertLogMatches will fuzzy match log lines. Notably, this checks the time format, but ignores
// the exact time. And it expects a match on the filename, but the exact line number can be wrong.
func assertLogMatches(t *testing.T, actual *bytes.Buffer, expected string) {
	t.Helper()

	output, err := actual.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)

	actualParts := strings.Split(strings.TrimSuffix(output, "\n"), "\t")
	expectedParts := strings.Split(expected, "\t")
	test.That(t, len(actualParts), test.ShouldEqual, len(expectedParts))
	// Use the length of the first string as a weak verification of checking that the result looks like a date.
	test.That(t, len(actualParts[0]), test.ShouldEqual, len(expectedParts[0]))
	test.That(t, actualParts[1], test.ShouldEqual, expectedParts[1])
	test.That(t, actualParts[2], test.ShouldEqual, expectedParts[2])

	actualFilename, actualLineNumber, found := strings.Cut(actualParts[3], ":")
	test.That(t, found, test.ShouldBeTrue)
	expectedFilename, _, found := strings.Cut(expectedParts[3], ":")
	test.That(t, found, test.ShouldBeTrue)
	test.That(t, actualFilename, test.ShouldEqual, expectedFilename)
	_, err = strconv.Atoi(actualLineNumber)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, actualParts[4], test.ShouldEqual, expectedParts[4])
	if len(actualParts) == 5 {
		return
	}

	expectedMap := make(map[string]any)
	test.That(t, json.Unmarshal([]byte(expectedParts[5]), &expectedMap), test.ShouldBeNil)
	actualMap := make(map[string]any)
	test.That(t, json.Unmarshal([]byte(actualParts[5]), &actualMap), test.ShouldBeNil)
	test.That(t, actualMap, test.ShouldResemble, expectedMap)
}

func TestConsoleOutputFormat(t *testing.T) {
	notStdout := &bytes.Buffer{}
	logger := &impl{"calib", NewAtomicLevelAt(DEBUG), true, []Appender{NewWriterAppender(notStdout)}}

	logger.Info("impl Info log")
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459Z	INFO	calib	logging/impl_test.go:60	impl Info log`)

	logger.Infof("impl %s log", "infof")
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459Z	INFO	calib	logging/impl_test.go:64	impl infof log`)

	logger.Infow("impl logw", "key", "value")
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459Z	INFO	calib	logging/impl_test.go:68	impl logw	{"key":"value"}`)

	logger.Debugw("BasicStruct", "views", 3, "BasicStruct", BasicStruct{1, "alice"})
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459Z	DEBUG	calib	logging/impl_test.go:72	BasicStruct	{"BasicStruct":{"X":1},"views":3}`)

	// A dangling key is reported rather than dropped.
	logger.Warnw("dangling", "key")
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459Z	WARN	calib	logging/impl_test.go:77	dangling	{"key":"unpaired log key"}`)
}

func TestLevels(t *testing.T) {
	notStdout := &bytes.Buffer{}
	logger := &impl{"calib", NewAtomicLevelAt(INFO), true, []Appender{NewWriterAppender(notStdout)}}

	logger.Debug("hidden")
	test.That(t, notStdout.Len(), test.ShouldEqual, 0)

	logger.SetLevel(DEBUG)
	logger.Debug("shown")
	test.That(t, notStdout.String(), test.ShouldContainSubstring, "shown")
	notStdout.Reset()

	logger.SetLevel(ERROR)
	logger.Warn("hidden")
	logger.Error("loud")
	test.That(t, notStdout.String(), test.ShouldNotContainSubstring, "hidden")
	test.That(t, notStdout.String(), test.ShouldContainSubstring, "loud")

	level, err := LevelFromString("WARNING")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, WARN)
	_, err = LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSublogger(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	sub := logger.Sublogger("solver").Sublogger("lm")
	sub.Infow("step", "cost", 1.5)

	entries := observed.FilterMessage("step").All()
	test.That(t, entries, test.ShouldHaveLength, 1)
	test.That(t, entries[0].LoggerName, test.ShouldEqual, "solver.lm")
	test.That(t, entries[0].ContextMap()["cost"], test.ShouldEqual, 1.5)
	test.That(t, logger.Sync(), test.ShouldBeNil)
}
