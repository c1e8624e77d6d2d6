package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/roman-kulish/drone-path-prob/internal/render"
)

const (
	ImagePNG  ImageFormat = render.FormatPNG
	ImageJPEG ImageFormat = render.FormatJPEG

	timeFlagLayout = time.DateTime
)

type ImageFormat string

type Config struct {
	DBPath        string
	SessionID     int64
	OutputFile    string
	Format        ImageFormat
	Theme         render.ColorTheme
	Width         int
	Height        int
	MinTimestamp  *time.Time
	MaxTimestamp  *time.Time
	TimeZone      *time.Location
	Verbose       bool
	NoAnnotations bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format:   ImagePNG,
		Theme:    render.RdYlGnTheme,
		Width:    1200,
		Height:   900,
		TimeZone: time.Local,
	}
}

func NewConfigFromCLI() (*Config, error) {
	c, err := parseArgs(flag.CommandLine, os.Args[1:])
	if err != nil {
		flag.Usage()
		return nil, err
	}
	return c, nil
}

func parseArgs(fs *flag.FlagSet, args []string) (*Config, error) {
	c := NewConfig()

	var imageFormat, theme, timezone, minTimestamp, maxTimestamp string
	fs.StringVar(&c.DBPath, "db", "", "Path to the database file")
	fs.Int64Var(&c.SessionID, "s", 1, "Session ID")
	fs.StringVar(&c.OutputFile, "o", "", "Path to the output file")
	fs.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	fs.StringVar(&theme, "theme", string(render.RdYlGnTheme), "Color theme. [rdylgn, classic, grayscale, jungle, thermal, marine]")
	fs.IntVar(&c.Width, "width", c.Width, "Image width in pixels")
	fs.IntVar(&c.Height, "height", c.Height, "Image height in pixels")
	fs.StringVar(&minTimestamp, "start", "", "Skip fixes before this time (format YYYY-MM-DD hh:mm:ss)")
	fs.StringVar(&maxTimestamp, "end", "", "Skip fixes after this time (format YYYY-MM-DD hh:mm:ss)")
	fs.StringVar(&timezone, "tz", "", "Timezone of -start, -end and the info bar, defaults to local")
	fs.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")
	fs.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable annotations such as the title, labels and scales")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	imageFormat = strings.ToLower(imageFormat)

	var err error
	if timezone != "" {
		if c.TimeZone, err = time.LoadLocation(timezone); err != nil {
			return nil, fmt.Errorf("invalid timezone: %w", err)
		}
	}

	fs.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		var ts time.Time
		switch f.Name {
		case "start":
			if ts, err = time.ParseInLocation(timeFlagLayout, minTimestamp, c.TimeZone); err == nil {
				c.MinTimestamp = &ts
			}
		case "end":
			if ts, err = time.ParseInLocation(timeFlagLayout, maxTimestamp, c.TimeZone); err == nil {
				c.MaxTimestamp = &ts
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid time filter: %w", err)
	}

	if c.Theme, err = render.ParseTheme(theme); err != nil {
		return nil, err
	}

	if c.DBPath == "" {
		err = errors.New("db path is required")
	} else if c.SessionID <= 0 {
		err = errors.New("session id is required")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
		err = fmt.Errorf("invalid image format: %s", imageFormat)
	} else if c.MinTimestamp != nil && c.MaxTimestamp != nil && c.MinTimestamp.After(*c.MaxTimestamp) {
		err = errors.New("start time is after end time")
	}
	if err != nil {
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}
