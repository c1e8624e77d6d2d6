package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/drone-path-prob/internal/align"
	"github.com/roman-kulish/drone-path-prob/internal/node"
	"github.com/roman-kulish/drone-path-prob/internal/telemetry"
)

const (
	ImagePNG  ImageFormat = "png"
	ImageJPEG ImageFormat = "jpeg"

	DefaultNodePrefix = "node"
	DefaultDroneDir   = "drone"
	DefaultOutputFile = "flight_data.csv"
)

type ImageFormat string

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

// Config represents the main application configuration
type Config struct {
	Settings  Settings        `yaml:"settings"`
	Input     InputConfig     `yaml:"input"`
	Nodes     NodesConfig     `yaml:"nodes"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Alignment AlignmentConfig `yaml:"alignment"`
	Output    OutputConfig    `yaml:"output"`
	Storage   StorageConfig   `yaml:"storage"`
	Render    RenderConfig    `yaml:"render"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"` // text or json
}

// InputConfig locates the session directory
type InputConfig struct {
	Dir      string `yaml:"dir"`
	Name     string `yaml:"name"`     // session name, defaults to the directory base name
	DroneDir string `yaml:"droneDir"` // subdirectory holding the flight log
}

// NodesConfig describes the node CSV logs
type NodesConfig struct {
	DirPrefix   string        `yaml:"dirPrefix"`
	Label       string        `yaml:"label"`    // text label preceding the probability, e.g. "drone"
	Timezone    string        `yaml:"timezone"` // zone of naive timestamps, default UTC
	TimeLayouts []string      `yaml:"timeLayouts"`
	Columns     ColumnsConfig `yaml:"columns"`
}

// ColumnsConfig holds zero-based positions of node CSV fields
type ColumnsConfig struct {
	Timestamp   int `yaml:"timestamp"`
	Probability int `yaml:"probability"`
	Status      int `yaml:"status"`
	Latitude    int `yaml:"latitude"`
	Longitude   int `yaml:"longitude"`
	Max         int `yaml:"max"`
}

// TelemetryConfig represents flight log decoding settings
type TelemetryConfig struct {
	Path            string       `yaml:"path"` // explicit flight log, overrides discovery
	MessageTypes    []string     `yaml:"messageTypes"`
	LeapSeconds     TimeDuration `yaml:"leapSeconds"`
	RequireAltitude bool         `yaml:"requireAltitude"`
}

// AlignmentConfig represents the asof join settings
type AlignmentConfig struct {
	Direction string       `yaml:"direction"` // nearest, backward or forward
	Tolerance TimeDuration `yaml:"tolerance"` // 0 means unbounded
}

// OutputConfig represents result files
type OutputConfig struct {
	File      string `yaml:"file"`
	Projected bool   `yaml:"projected"` // add x_m and y_m columns
	Metrics   string `yaml:"metrics"`   // Prometheus textfile path
}

// StorageConfig represents the session database
type StorageConfig struct {
	DBPath string `yaml:"dbPath"`
}

// RenderConfig represents the flight map image
type RenderConfig struct {
	File          string      `yaml:"file"` // without extension
	Format        ImageFormat `yaml:"format"`
	Theme         string      `yaml:"theme"`
	Width         int         `yaml:"width"`
	Height        int         `yaml:"height"`
	NoAnnotations bool        `yaml:"noAnnotations"`
}

// NewConfig returns the configuration with defaults applied.
func NewConfig() *Config {
	schema := node.DefaultSchema()
	return &Config{
		Settings: Settings{
			LogLevel:  "info",
			LogFormat: "text",
		},
		Input: InputConfig{
			DroneDir: DefaultDroneDir,
		},
		Nodes: NodesConfig{
			DirPrefix: DefaultNodePrefix,
			Label:     node.DefaultLabel,
			Timezone:  "UTC",
			Columns: ColumnsConfig{
				Timestamp:   schema.Timestamp,
				Probability: schema.Probability,
				Status:      schema.Status,
				Latitude:    schema.Latitude,
				Longitude:   schema.Longitude,
				Max:         schema.MaxColumns,
			},
		},
		Telemetry: TelemetryConfig{
			MessageTypes: []string{telemetry.DefaultMessageType},
			LeapSeconds:  NewTimeDuration(telemetry.DefaultLeapSeconds),
		},
		Alignment: AlignmentConfig{
			Direction: align.Nearest.String(),
		},
		Output: OutputConfig{
			File: DefaultOutputFile,
		},
		Render: RenderConfig{
			Format: ImagePNG,
			Theme:  "rdylgn",
			Width:  1200,
			Height: 900,
		},
	}
}

// LoadConfig reads a YAML configuration file over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	c := NewConfig()
	if err = yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return c, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Settings.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Settings.LogLevel)
	}
	switch strings.ToLower(c.Settings.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.Settings.LogFormat)
	}

	if c.Input.Dir == "" {
		return errors.New("session directory is required")
	}
	if c.Nodes.DirPrefix == "" {
		return errors.New("node directory prefix must not be empty")
	}
	if strings.TrimSpace(c.Nodes.Label) == "" {
		return errors.New("node probability label must not be empty")
	}
	if _, err := c.Schema(); err != nil {
		return err
	}

	if len(c.Telemetry.MessageTypes) == 0 {
		return errors.New("at least one telemetry message type is required")
	}
	if c.Telemetry.LeapSeconds < 0 {
		return fmt.Errorf("leap seconds must not be negative: %s", c.Telemetry.LeapSeconds.String())
	}

	if _, err := align.ParseDirection(c.Alignment.Direction); err != nil {
		return err
	}
	if c.Alignment.Tolerance < 0 {
		return fmt.Errorf("alignment tolerance must not be negative: %s", c.Alignment.Tolerance.String())
	}

	if c.Output.File == "" {
		return errors.New("output file is required")
	}

	if _, ok := validImageFormats[c.Render.Format]; !ok {
		return fmt.Errorf("invalid image format: %s", c.Render.Format)
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		return fmt.Errorf("invalid image size: %dx%d", c.Render.Width, c.Render.Height)
	}

	return nil
}

// Schema builds the node CSV schema.
func (c *Config) Schema() (node.Schema, error) {
	schema := node.DefaultSchema()
	schema.Timestamp = c.Nodes.Columns.Timestamp
	schema.Probability = c.Nodes.Columns.Probability
	schema.Status = c.Nodes.Columns.Status
	schema.Latitude = c.Nodes.Columns.Latitude
	schema.Longitude = c.Nodes.Columns.Longitude
	schema.MaxColumns = c.Nodes.Columns.Max
	schema.Extractor = node.NewExtractor(strings.TrimSpace(c.Nodes.Label))

	if len(c.Nodes.TimeLayouts) > 0 {
		schema.TimeLayouts = c.Nodes.TimeLayouts
	}
	if c.Nodes.Timezone != "" {
		loc, err := time.LoadLocation(c.Nodes.Timezone)
		if err != nil {
			return node.Schema{}, fmt.Errorf("invalid node timezone: %w", err)
		}
		schema.Location = loc
	}

	if err := schema.Validate(); err != nil {
		return node.Schema{}, err
	}
	return schema, nil
}

// DecodeOptions returns the telemetry decoder options.
func (c *Config) DecodeOptions() []telemetry.DecodeOption {
	opts := []telemetry.DecodeOption{
		telemetry.WithMessageTypes(c.Telemetry.MessageTypes...),
		telemetry.WithLeapSeconds(time.Duration(c.Telemetry.LeapSeconds)),
	}
	if c.Telemetry.RequireAltitude {
		opts = append(opts, telemetry.WithAltitude())
	}
	return opts
}

// AlignOptions returns the aligner options. Validate must have passed.
func (c *Config) AlignOptions() []align.Option {
	direction, _ := align.ParseDirection(c.Alignment.Direction)
	return []align.Option{
		align.WithDirection(direction),
		align.WithTolerance(time.Duration(c.Alignment.Tolerance)),
	}
}
