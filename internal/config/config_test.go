package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/drone-path-prob/internal/node"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestNewConfig_Defaults(t *testing.T) {
	c := NewConfig()
	c.Input.Dir = "/data/session"
	require.NoError(t, c.Validate())

	schema, err := c.Schema()
	require.NoError(t, err)
	def := node.DefaultSchema()
	assert.Equal(t, def.Timestamp, schema.Timestamp)
	assert.Equal(t, def.Probability, schema.Probability)
	assert.Equal(t, def.MaxColumns, schema.MaxColumns)
	assert.Equal(t, node.DefaultLabel, schema.Extractor.Label())

	assert.Equal(t, 18*time.Second, time.Duration(c.Telemetry.LeapSeconds))
	assert.Len(t, c.DecodeOptions(), 2)
	assert.Len(t, c.AlignOptions(), 2)
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
settings:
  logLevel: debug
  logFormat: json
input:
  dir: /data/flight-2024-05-01
nodes:
  label: uav
  timezone: Australia/Sydney
  columns:
    timestamp: 1
    probability: 2
    status: 3
    latitude: 4
    longitude: 5
    max: 6
telemetry:
  requireAltitude: true
  leapSeconds: 17s
alignment:
  direction: backward
  tolerance: 1500ms
render:
  format: jpeg
`)

	c, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, "debug", c.Settings.LogLevel)
	assert.Equal(t, "/data/flight-2024-05-01", c.Input.Dir)
	assert.Equal(t, DefaultDroneDir, c.Input.DroneDir, "defaults survive partial files")
	assert.Equal(t, 1500*time.Millisecond, time.Duration(c.Alignment.Tolerance))
	assert.Equal(t, 17*time.Second, time.Duration(c.Telemetry.LeapSeconds))
	assert.Equal(t, ImageJPEG, c.Render.Format)
	assert.Len(t, c.DecodeOptions(), 3)

	schema, err := c.Schema()
	require.NoError(t, err)
	assert.Equal(t, "uav", schema.Extractor.Label())
	assert.Equal(t, "Australia/Sydney", schema.Location.String())
	assert.Equal(t, 6, schema.MaxColumns)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadConfig(writeConfig(t, "alignment:\n  tolerance: soon\n"))
	assert.ErrorContains(t, err, "config.TimeDuration")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"no dir", func(c *Config) { c.Input.Dir = "" }, "session directory is required"},
		{"log level", func(c *Config) { c.Settings.LogLevel = "loud" }, "invalid log level"},
		{"log format", func(c *Config) { c.Settings.LogFormat = "xml" }, "invalid log format"},
		{"empty prefix", func(c *Config) { c.Nodes.DirPrefix = "" }, "prefix"},
		{"empty label", func(c *Config) { c.Nodes.Label = " " }, "label"},
		{"column beyond max", func(c *Config) { c.Nodes.Columns.Status = 20 }, "invalid status column 20"},
		{"negative column", func(c *Config) { c.Nodes.Columns.Latitude = -1 }, "invalid latitude column -1"},
		{"bad timezone", func(c *Config) { c.Nodes.Timezone = "Mars/Olympus" }, "timezone"},
		{"no message types", func(c *Config) { c.Telemetry.MessageTypes = nil }, "message type"},
		{"direction", func(c *Config) { c.Alignment.Direction = "sideways" }, "direction"},
		{"tolerance", func(c *Config) { c.Alignment.Tolerance = NewTimeDuration(-time.Second) }, "tolerance"},
		{"output", func(c *Config) { c.Output.File = "" }, "output file"},
		{"format", func(c *Config) { c.Render.Format = "gif" }, "invalid image format"},
		{"size", func(c *Config) { c.Render.Width = 0 }, "invalid image size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConfig()
			c.Input.Dir = "/data"
			tt.modify(c)
			assert.ErrorContains(t, c.Validate(), tt.want)
		})
	}
}

func TestTimeDuration_Marshal(t *testing.T) {
	out, err := yaml.Marshal(struct {
		D TimeDuration `yaml:"d"`
	}{NewTimeDuration(2500 * time.Millisecond)})
	require.NoError(t, err)
	assert.Equal(t, "d: 2.5s\n", string(out))

	var d TimeDuration
	require.NoError(t, d.UnmarshalJSON([]byte(`"3m"`)))
	assert.Equal(t, 3*time.Minute, time.Duration(d))

	data, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"3m0s"`, string(data))
}
