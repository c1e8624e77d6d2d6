package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"flag"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/drone-path-prob/internal/config"
	"github.com/roman-kulish/drone-path-prob/internal/observability"
	"github.com/roman-kulish/drone-path-prob/internal/session"
	"github.com/roman-kulish/drone-path-prob/internal/storage"
	"github.com/roman-kulish/drone-path-prob/internal/telemetry"
)

var base = time.Date(2024, 5, 1, 9, 25, 0, 0, time.UTC)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("pathprob", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestParseArgs_Defaults(t *testing.T) {
	c, err := parseArgs(newFlagSet(), []string{"-d", "/data/flight-01"})
	require.NoError(t, err)

	assert.Equal(t, "/data/flight-01", c.Input.Dir)
	assert.Equal(t, config.DefaultOutputFile, c.Output.File)
	assert.Equal(t, "nearest", c.Alignment.Direction)
	assert.Zero(t, c.Alignment.Tolerance)
	assert.Equal(t, "info", c.Settings.LogLevel)
	assert.Empty(t, c.Storage.DBPath)
	assert.Empty(t, c.Render.File)
}

func TestParseArgs_PositionalDir(t *testing.T) {
	c, err := parseArgs(newFlagSet(), []string{"-3d", "/data/flight-02"})
	require.NoError(t, err)
	assert.Equal(t, "/data/flight-02", c.Input.Dir)
	assert.True(t, c.Telemetry.RequireAltitude)
}

func TestParseArgs_FlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
input:
  dir: /data/from-file
alignment:
  direction: backward
  tolerance: 2s
render:
  theme: thermal
`), 0o644))

	c, err := parseArgs(newFlagSet(), []string{
		"-c", path,
		"-direction", "FORWARD",
		"-verbose",
		"-db", "sessions.db",
		"-plot", "map",
		"-f", "JPEG",
	})
	require.NoError(t, err)

	assert.Equal(t, "/data/from-file", c.Input.Dir)
	assert.Equal(t, "forward", c.Alignment.Direction)
	assert.Equal(t, 2*time.Second, time.Duration(c.Alignment.Tolerance))
	assert.Equal(t, "debug", c.Settings.LogLevel)
	assert.Equal(t, "thermal", c.Render.Theme)
	assert.Equal(t, "sessions.db", c.Storage.DBPath)
	assert.Equal(t, "map", c.Render.File)
	assert.Equal(t, config.ImageJPEG, c.Render.Format)
}

func TestParseArgs_Invalid(t *testing.T) {
	_, err := parseArgs(newFlagSet(), nil)
	assert.ErrorContains(t, err, "session directory is required")

	_, err = parseArgs(newFlagSet(), []string{"-d", "x", "-direction", "sideways"})
	assert.ErrorContains(t, err, "unknown alignment direction")

	_, err = parseArgs(newFlagSet(), []string{"-d", "x", "-f", "gif"})
	assert.ErrorContains(t, err, "invalid image format")

	_, err = parseArgs(newFlagSet(), []string{"-d", "x", "-theme", "rainbow"})
	assert.ErrorContains(t, err, "unknown color theme")

	_, err = parseArgs(newFlagSet(), []string{"-c", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.ErrorContains(t, err, "reading config")
}

type gpsMessage map[string]float64

func (m gpsMessage) Type() string { return "GPS" }

func (m gpsMessage) Field(name string) (float64, bool) {
	v, ok := m[name]
	return v, ok
}

type fakeSource struct {
	messages []telemetry.Message
}

func (s *fakeSource) Next() (telemetry.Message, error) {
	if len(s.messages) == 0 {
		return nil, io.EOF
	}
	m := s.messages[0]
	s.messages = s.messages[1:]
	return m, nil
}

func fixAt(ts time.Time, lat, lon float64) gpsMessage {
	d := ts.Add(telemetry.DefaultLeapSeconds).Sub(telemetry.GPSEpoch)
	week := d / (7 * 24 * time.Hour)
	ms := (d - week*7*24*time.Hour) / time.Millisecond
	return gpsMessage{
		telemetry.FieldWeek:      float64(week),
		telemetry.FieldWeekMS:    float64(ms),
		telemetry.FieldLatitude:  lat * 1e7,
		telemetry.FieldLongitude: lon * 1e7,
	}
}

func csvRow(ts time.Time, prob, lat, lon string) string {
	return strings.Join([]string{
		"1", "abc", "rf", "background: 0.1", "drone: " + prob, lat, lon,
		ts.Format(time.DateTime), "x", "Valid", "y", "z", "0",
	}, ",")
}

func writeFile(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func TestRun(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "flight-01")
	writeFile(t, filepath.Join(dir, "node1", "log.csv"),
		csvRow(base, "0.2", "-33.0", "151.0"),
		csvRow(base.Add(2*time.Second), "0.8", "-33.0", "151.0"),
	)
	writeFile(t, filepath.Join(dir, "node2", "log.csv"),
		csvRow(base.Add(time.Second), "0.5", "-33.001", "151.001"),
	)
	writeFile(t, filepath.Join(dir, "drone", "flight-01.bin"), "")

	cfg := config.NewConfig()
	cfg.Input.Dir = dir
	cfg.Storage.DBPath = filepath.Join(root, "sessions.db")
	cfg.Render.File = filepath.Join(root, "map")
	cfg.Render.Width, cfg.Render.Height = 400, 300
	cfg.Output.Metrics = filepath.Join(root, "pathprob.prom")
	require.NoError(t, cfg.Validate())

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	source := session.WithSourceOpener(func(string) (telemetry.Source, error) {
		return &fakeSource{messages: []telemetry.Message{
			fixAt(base, -33.0, 151.0),
			fixAt(base.Add(time.Second), -33.0004, 151.0004),
			fixAt(base.Add(2*time.Second), -33.0008, 151.0008),
		}}, nil
	})

	err := run(context.Background(), cfg, logger, observability.NewMetrics(), source)
	require.NoError(t, err, logs.String())

	f, err := os.Open(filepath.Join(dir, config.DefaultOutputFile))
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"timestamp", "node1", "node2", "latitude", "longitude", "max_concern"}, records[0])

	assert.FileExists(t, filepath.Join(root, "map.png"))
	assert.FileExists(t, cfg.Output.Metrics)

	store := storage.NewSqliteStore(cfg.Storage.DBPath)
	defer store.Close()

	sessions, err := store.Sessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "flight-01", sessions[0].Name)
	require.NotNil(t, sessions[0].Config)
	assert.Contains(t, *sessions[0].Config, "flight-01")

	assert.Contains(t, logs.String(), "session processed")
}

func TestRun_MissingInput(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Input.Dir = filepath.Join(t.TempDir(), "nothing")
	require.NoError(t, cfg.Validate())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := run(context.Background(), cfg, logger, observability.NewMetrics())
	assert.ErrorIs(t, err, session.ErrMissingInput)
	assert.NoFileExists(t, filepath.Join(cfg.Input.Dir, config.DefaultOutputFile))
}

func TestRun_InvalidThemeWritesNothing(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "flight-01")
	writeFile(t, filepath.Join(dir, "node1", "log.csv"), csvRow(base, "0.2", "-33.0", "151.0"))
	writeFile(t, filepath.Join(dir, "drone", "flight-01.bin"), "")

	cfg := config.NewConfig()
	cfg.Input.Dir = dir
	cfg.Render.File = filepath.Join(root, "map")
	cfg.Render.Theme = "rainbow"
	require.NoError(t, cfg.Validate())

	source := session.WithSourceOpener(func(string) (telemetry.Source, error) {
		return &fakeSource{messages: []telemetry.Message{fixAt(base, -33.0, 151.0)}}, nil
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := run(context.Background(), cfg, logger, observability.NewMetrics(), source)
	assert.ErrorContains(t, err, "unknown color theme")
	assert.NoFileExists(t, filepath.Join(dir, config.DefaultOutputFile))
	assert.NoFileExists(t, filepath.Join(root, "map.png"))
}
