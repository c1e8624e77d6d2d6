package app

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/roman-kulish/drone-path-prob/internal/config"
)

// NewConfigFromCLI builds the run configuration from the command line. A
// YAML file given with -c is loaded first; flags set explicitly override it.
func NewConfigFromCLI() (*config.Config, error) {
	c, err := parseArgs(flag.CommandLine, os.Args[1:])
	if err != nil {
		flag.Usage()
		return nil, err
	}
	return c, nil
}

func parseArgs(fs *flag.FlagSet, args []string) (*config.Config, error) {
	var (
		configPath  string
		dir         string
		name        string
		outputFile  string
		dbPath      string
		plotFile    string
		imageFormat string
		theme       string
		metricsFile string
		flightLog   string
		direction   string
		tolerance   time.Duration
		threeD      bool
		projected   bool
		verbose     bool
	)

	fs.StringVar(&configPath, "c", "", "Path to the configuration file")
	fs.StringVar(&dir, "d", "", "Path to the session directory")
	fs.StringVar(&name, "name", "", "Session name, defaults to the directory name")
	fs.StringVar(&outputFile, "o", config.DefaultOutputFile, "Output CSV file, relative paths are resolved against the session directory")
	fs.StringVar(&dbPath, "db", "", "Path to the session database file")
	fs.StringVar(&plotFile, "plot", "", "Path to the flight map image, without extension")
	fs.StringVar(&imageFormat, "f", string(config.ImagePNG), "Flight map image format. [png, jpeg]")
	fs.StringVar(&theme, "theme", "rdylgn", "Flight map color theme")
	fs.StringVar(&metricsFile, "metrics", "", "Path to the Prometheus textfile")
	fs.StringVar(&flightLog, "log", "", "Path to the flight log, overrides discovery")
	fs.StringVar(&direction, "direction", "nearest", "Alignment direction. [nearest, backward, forward]")
	fs.DurationVar(&tolerance, "tolerance", 0, "Maximum distance between a fix and its node row, 0 is unbounded")
	fs.BoolVar(&threeD, "3d", false, "Require altitude and write it to the output")
	fs.BoolVar(&projected, "projected", false, "Write projected x_m and y_m columns")
	fs.BoolVar(&verbose, "verbose", false, "Enable more verbose output")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	c := config.NewConfig()
	if configPath != "" {
		var err error
		if c, err = config.LoadConfig(configPath); err != nil {
			return nil, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "d":
			c.Input.Dir = dir
		case "name":
			c.Input.Name = name
		case "o":
			c.Output.File = outputFile
		case "db":
			c.Storage.DBPath = dbPath
		case "plot":
			c.Render.File = plotFile
		case "f":
			c.Render.Format = config.ImageFormat(strings.ToLower(imageFormat))
		case "theme":
			c.Render.Theme = theme
		case "metrics":
			c.Output.Metrics = metricsFile
		case "log":
			c.Telemetry.Path = flightLog
		case "direction":
			c.Alignment.Direction = strings.ToLower(direction)
		case "tolerance":
			c.Alignment.Tolerance = config.NewTimeDuration(tolerance)
		case "3d":
			c.Telemetry.RequireAltitude = threeD
		case "projected":
			c.Output.Projected = projected
		case "verbose":
			if verbose {
				c.Settings.LogLevel = "debug"
			}
		}
	})

	if c.Input.Dir == "" && fs.NArg() > 0 {
		c.Input.Dir = fs.Arg(0)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := newRenderer(c); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}
