// Package cli contains the command line interface for estimating camera poses from correspondence datasets.
package cli

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"
	"go.viam.com/utils"

	"go.viam.com/posest/logging"
)

const (
	// Global flags.
	flagDebug    = "debug"
	flagLogLevel = "log-level"
	flagLogFile  = "log-file"

	// Flags shared by commands.
	flagInput  = "input"
	flagOutput = "output"
	flagSeed   = "seed"

	// Estimate flags.
	flagConfig            = "config"
	flagMaxIteration      = "max-iteration"
	flagReprojectionError = "reprojection-error"
	flagConfidence        = "confidence"
	flagRefine            = "refine"
	flagPlot              = "plot"

	// Simulate flags.
	flagPoints   = "points"
	flagOutliers = "outliers"
	flagNoise    = "noise"
	flagPlanar   = "planar"

	// Benchmark flags.
	flagTrials  = "trials"
	flagWorkers = "workers"
)

var app = &cli.App{
	Name:            "pnp",
	Usage:           "estimate camera poses from 3D to 2D correspondences",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    flagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
		&cli.StringFlag{
			Name:  flagLogLevel,
			Value: "info",
			Usage: "minimum `LEVEL` of log entries written to stderr",
		},
		&cli.PathFlag{
			Name:  flagLogFile,
			Usage: "also append log entries to `FILE`, rotated every 10MB",
		},
	},
	Commands: []*cli.Command{
		{
			Name:      "estimate",
			Usage:     "robustly estimate the camera pose of a dataset",
			UsageText: "pnp estimate --input data.json [--config estimator.json] [--output result.json]",
			Flags: []cli.Flag{
				&cli.PathFlag{
					Name:     flagInput,
					Aliases:  []string{"i"},
					Required: true,
					Usage:    "dataset `FILE` (.json, .yaml or .yml)",
				},
				&cli.PathFlag{
					Name:    flagConfig,
					Aliases: []string{"c"},
					Usage:   "load estimator configuration from JSON `FILE`",
				},
				&cli.IntFlag{
					Name:  flagMaxIteration,
					Usage: "upper bound on RANSAC trials",
				},
				&cli.Float64Flag{
					Name:  flagReprojectionError,
					Usage: "inlier threshold in pixels",
				},
				&cli.Float64Flag{
					Name:  flagConfidence,
					Usage: "probability that at least one sample is outlier free",
				},
				&cli.Uint64Flag{
					Name:  flagSeed,
					Usage: "seed for the sampler, random by default",
				},
				&cli.BoolFlag{
					Name:  flagRefine,
					Usage: "refine the final pose by minimizing inlier reprojection error",
				},
				&cli.PathFlag{
					Name:    flagOutput,
					Aliases: []string{"o"},
					Usage:   "write the result as JSON to `FILE`",
				},
				&cli.PathFlag{
					Name:  flagPlot,
					Usage: "save a histogram of inlier residuals to `FILE` (.png, .svg or .pdf)",
				},
			},
			Action: EstimateAction,
		},
		{
			Name:      "simulate",
			Usage:     "write a synthetic dataset with a known pose",
			UsageText: "pnp simulate --output data.json [--points 100] [--outliers 20] [--noise 0.5]",
			Flags: []cli.Flag{
				&cli.PathFlag{
					Name:     flagOutput,
					Aliases:  []string{"o"},
					Required: true,
					Usage:    "dataset `FILE` to write (.json, .yaml or .yml)",
				},
				&cli.IntFlag{
					Name:  flagPoints,
					Value: 100,
					Usage: "number of correspondences",
				},
				&cli.IntFlag{
					Name:  flagOutliers,
					Value: 20,
					Usage: "number of correspondences replaced by outliers",
				},
				&cli.Float64Flag{
					Name:  flagNoise,
					Value: 0.5,
					Usage: "standard deviation in pixels of the noise added to inliers",
				},
				&cli.BoolFlag{
					Name:  flagPlanar,
					Usage: "place the reference points on the world plane z = 0",
				},
				&cli.Uint64Flag{
					Name:  flagSeed,
					Usage: "seed for the generator, random by default",
				},
			},
			Action: SimulateAction,
		},
		{
			Name:  "benchmark",
			Usage: "estimate many synthetic datasets and summarize the errors against ground truth",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  flagTrials,
					Value: 20,
					Usage: "number of synthetic datasets",
				},
				&cli.IntFlag{
					Name:  flagWorkers,
					Value: 4,
					Usage: "number of trials run concurrently",
				},
				&cli.IntFlag{
					Name:  flagPoints,
					Value: 100,
					Usage: "number of correspondences per dataset",
				},
				&cli.IntFlag{
					Name:  flagOutliers,
					Value: 20,
					Usage: "number of outliers per dataset",
				},
				&cli.Float64Flag{
					Name:  flagNoise,
					Value: 0.5,
					Usage: "standard deviation in pixels of the noise added to inliers",
				},
				&cli.BoolFlag{
					Name:  flagPlanar,
					Usage: "place the reference points on the world plane z = 0",
				},
				&cli.Float64Flag{
					Name:  flagReprojectionError,
					Usage: "inlier threshold in pixels",
				},
				&cli.BoolFlag{
					Name:  flagRefine,
					Usage: "refine every final pose",
				},
				&cli.Uint64Flag{
					Name:  flagSeed,
					Value: 1,
					Usage: "seed of the first trial, incremented for each further trial",
				},
			},
			Action: BenchmarkAction,
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

// newLogger builds the command logger and installs it as the global logger. Entries go to the app's
// ErrWriter so tables and results on Writer stay clean. The returned function flushes and closes the log
// outputs.
func newLogger(c *cli.Context) (logging.Logger, func(), error) {
	level := logging.DEBUG
	if !c.Bool(flagDebug) {
		var err error
		if level, err = logging.LevelFromString(c.String(flagLogLevel)); err != nil {
			return nil, nil, err
		}
	}
	logger := logging.NewBlankLogger("pnp")
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	logger.SetLevel(level)

	var file *logging.FileAppender
	if path := c.Path(flagLogFile); path != "" {
		file = logging.NewFileAppender(path, 10)
		logger.AddAppender(file)
	}
	logging.ReplaceGlobal(logger)
	return logger, func() {
		utils.UncheckedError(logger.Sync())
		if file != nil {
			utils.UncheckedError(file.Close())
		}
	}, nil
}

func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}
