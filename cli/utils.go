package cli

import (
	"fmt"
	"image"
	"io"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/camcal/logging"
)

// printf prints a message with no prefix.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// newLogger returns a console logger at info level, or debug level when --debug is set.
func newLogger(c *cli.Context, name string) logging.Logger {
	if c.Bool(debugFlag) {
		return logging.NewDebugLogger(name)
	}
	return logging.NewLogger(name)
}

// patternFromFlags reads the inner corner counts shared by the chessboard commands.
func patternFromFlags(c *cli.Context) (image.Point, error) {
	pattern := image.Point{c.Int(colsFlag), c.Int(rowsFlag)}
	if pattern.X < 2 || pattern.Y < 2 {
		return image.Point{}, errors.Errorf("--%s and --%s must both be at least 2, got %dx%d",
			colsFlag, rowsFlag, pattern.X, pattern.Y)
	}
	return pattern, nil
}
