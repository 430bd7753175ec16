// Package cli contains the camcal command line tool.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	// Flags.
	debugFlag         = "debug"
	imagesFlag        = "images"
	imageFlag         = "image"
	colsFlag          = "cols"
	rowsFlag          = "rows"
	squareFlag        = "square"
	outFlag           = "out"
	inFlag            = "in"
	equalizeFlag      = "equalize"
	fastCheckFlag     = "fast-check"
	maxIterationsFlag = "max-iterations"
	fixK3Flag         = "fix-k3"
	zeroTangentFlag   = "zero-tangent"
	plotFlag          = "plot"
	calibrationFlag   = "calibration"
	configFlag        = "config"
	alphaFlag         = "alpha"
	cropFlag          = "crop"
	squarePxFlag      = "square-px"
	marginPxFlag      = "margin-px"
	overlayFlag       = "overlay"
)

func patternFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:     colsFlag,
			Required: true,
			Usage:    "inner corners per chessboard row",
		},
		&cli.IntFlag{
			Name:     rowsFlag,
			Required: true,
			Usage:    "inner corners per chessboard column",
		},
	}
}

var app = &cli.App{
	Name:            "camcal",
	Usage:           "calibrate a camera and map its pixels into the robot frame",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    debugFlag,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
	},
	Commands: []*cli.Command{
		{
			Name:      "calibrate",
			Usage:     "solve for the camera matrix and distortion from a directory of chessboard images",
			UsageText: "camcal calibrate --images <dir> --cols <n> --rows <n> --square <size> --out <file>",
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:     imagesFlag,
					Required: true,
					Usage:    "directory of chessboard `IMAGES`",
				},
				&cli.Float64Flag{
					Name:  squareFlag,
					Value: 1,
					Usage: "side length of one chessboard square, in the unit translations should use",
				},
				&cli.StringFlag{
					Name:     outFlag,
					Required: true,
					Usage:    "where to write the calibration `FILE`",
				},
				&cli.BoolFlag{
					Name:  equalizeFlag,
					Usage: "equalize and blur images before detection",
				},
				&cli.BoolFlag{
					Name:  fastCheckFlag,
					Usage: "use only the quick rejecting detection strategy",
				},
				&cli.IntFlag{
					Name:  maxIterationsFlag,
					Value: 100,
					Usage: "refinement iteration cap",
				},
				&cli.BoolFlag{
					Name:  fixK3Flag,
					Usage: "hold the k3 radial coefficient at zero",
				},
				&cli.BoolFlag{
					Name:  zeroTangentFlag,
					Usage: "hold the tangential coefficients at zero",
				},
				&cli.StringFlag{
					Name:  plotFlag,
					Usage: "also plot the per image reprojection error to `FILE`",
				},
			}, patternFlags()...),
			Action: CalibrateAction,
		},
		{
			Name:      "detect",
			Usage:     "find the chessboard in one image",
			UsageText: "camcal detect --image <file> --cols <n> --rows <n> [--overlay <file>]",
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:     imageFlag,
					Required: true,
					Usage:    "`IMAGE` to search",
				},
				&cli.BoolFlag{
					Name:  equalizeFlag,
					Usage: "equalize and blur the image before detection",
				},
				&cli.StringFlag{
					Name:  overlayFlag,
					Usage: "draw the detected corners to `FILE`",
				},
			}, patternFlags()...),
			Action: DetectAction,
		},
		{
			Name:      "show",
			Usage:     "print a saved calibration",
			UsageText: "camcal show --calibration <file>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     calibrationFlag,
					Required: true,
					Usage:    "calibration `FILE`",
				},
			},
			Action: ShowAction,
		},
		{
			Name:      "undistort",
			Usage:     "remove lens distortion from an image",
			UsageText: "camcal undistort --calibration <file> --in <image> --out <image> [--alpha <a>] [--crop]",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     calibrationFlag,
					Required: true,
					Usage:    "calibration `FILE`",
				},
				&cli.StringFlag{
					Name:     inFlag,
					Required: true,
					Usage:    "distorted `IMAGE`",
				},
				&cli.StringFlag{
					Name:     outFlag,
					Required: true,
					Usage:    "where to write the undistorted `IMAGE`",
				},
				&cli.Float64Flag{
					Name:  alphaFlag,
					Value: 1,
					Usage: "0 keeps only valid pixels, 1 keeps every source pixel",
				},
				&cli.BoolFlag{
					Name:  cropFlag,
					Usage: "crop the output to its valid region",
				},
			},
			Action: UndistortAction,
		},
		{
			Name:      "map",
			Usage:     "convert a pixel seen in a region into robot coordinates",
			UsageText: "camcal map --config <file> <x> <y> <z> <roi>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     configFlag,
					Aliases:  []string{"c"},
					Required: true,
					Usage:    "load deployment configuration from `FILE`",
				},
			},
			Action: MapAction,
		},
		{
			Name:      "target",
			Usage:     "render a printable chessboard target",
			UsageText: "camcal target --cols <n> --rows <n> --out <image>",
			Flags: append([]cli.Flag{
				&cli.IntFlag{
					Name:  squarePxFlag,
					Value: 80,
					Usage: "side of one square in pixels",
				},
				&cli.IntFlag{
					Name:  marginPxFlag,
					Value: 40,
					Usage: "white border in pixels",
				},
				&cli.StringFlag{
					Name:     outFlag,
					Required: true,
					Usage:    "where to write the target `IMAGE`",
				},
			}, patternFlags()...),
			Action: TargetAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
