package session

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/drone-path-prob/internal/config"
	"github.com/roman-kulish/drone-path-prob/internal/node"
	"github.com/roman-kulish/drone-path-prob/internal/observability"
	"github.com/roman-kulish/drone-path-prob/internal/telemetry"
)

var base = time.Date(2024, 5, 1, 9, 25, 0, 0, time.UTC)

func csvRow(ts time.Time, prob, status, lat, lon string) string {
	return strings.Join([]string{
		"1", "abc", "rf", "background: 0.1", "drone: " + prob, lat, lon,
		ts.Format(time.DateTime), "x", status, "y", "z", "0",
	}, ",")
}

func writeFile(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

// sessionDir lays out a three node session; node3 only has invalid rows.
func sessionDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "flight-01")

	writeFile(t, filepath.Join(dir, "node1", "log.csv"),
		csvRow(base, "0.2", "Valid", "-33.0", "151.0"),
		csvRow(base.Add(2*time.Second), "0.6", "Valid", "-33.0", "151.0"),
		csvRow(base.Add(4*time.Second), "0.9", "Invalid", "-33.0", "151.0"),
	)
	writeFile(t, filepath.Join(dir, "node2", "log.CSV"),
		csvRow(base.Add(time.Second), "0.5", "Valid", "-33.001", "151.001"),
	)
	writeFile(t, filepath.Join(dir, "node3", "log.csv"),
		csvRow(base, "0.7", "Invalid", "-33.002", "151.002"),
	)
	writeFile(t, filepath.Join(dir, "drone", "flight-01.bin"), "")
	writeFile(t, filepath.Join(dir, "notes", "readme.csv"), "ignored")

	return dir
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

// fixAt encodes a UTC time as GPS week and milliseconds.
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

func opener(messages ...telemetry.Message) SourceOpener {
	return func(string) (telemetry.Source, error) {
		return &fakeSource{messages: messages}, nil
	}
}

func newTestLoader(t *testing.T, dir string, opts ...LoaderOption) (*Loader, *bytes.Buffer) {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Input.Dir = dir
	require.NoError(t, cfg.Validate())

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	return NewLoader(cfg, logger, opts...), &logs
}

func TestLoader_Load(t *testing.T) {
	dir := sessionDir(t)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	metrics := observability.NewMetrics()

	loader, logs := newTestLoader(t, dir,
		WithClock(clock),
		WithMetrics(metrics),
		WithSourceOpener(opener(
			fixAt(base.Add(3*time.Second), -33.0005, 151.0005),
			fixAt(base.Add(400*time.Millisecond), -33.0, 151.0),
			fixAt(base.Add(1600*time.Millisecond), -33.0002, 151.0002),
		)),
	)

	s, err := loader.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "flight-01", s.Name)
	assert.Equal(t, clock.Now(), s.ProcessedAt)
	assert.NotEmpty(t, s.RunID.String())
	assert.Equal(t, filepath.Join(dir, "drone", "flight-01.bin"), s.FlightLog)
	assert.False(t, s.ThreeD)

	assert.Equal(t, []string{"node1", "node2", "node3"}, s.NodeIDs())
	assert.Equal(t, s.NodeIDs(), s.Table.Nodes)
	assert.Equal(t, 3, s.Table.Len())

	require.Len(t, s.Rows, 3)
	assert.Equal(t, []float64{0.2, 0, 0}, s.Rows[0].Values)
	assert.Equal(t, []float64{0.6, 0, 0}, s.Rows[1].Values)
	assert.Equal(t, []float64{0.6, 0, 0}, s.Rows[2].Values)
	assert.Equal(t, 0.6, s.Rows[2].MaxConcern)

	// The earliest fix is the origin.
	assert.InDelta(t, 0, s.Rows[0].Position.X, 1e-6)
	assert.InDelta(t, 0, s.Rows[0].Position.Y, 1e-6)

	assert.False(t, s.Degenerate)
	assert.Equal(t, 0.2, s.Range.Min)
	assert.Equal(t, 0.6, s.Range.Max)

	n1 := s.Nodes[0]
	require.NotNil(t, n1.Position)
	require.NotNil(t, n1.Closest)
	assert.Equal(t, 0, n1.Closest.Row)
	assert.InDelta(t, 0, n1.Closest.Distance, 1e-6)
	assert.Equal(t, 2, n1.Series.Len())

	n3 := s.Nodes[2]
	assert.Zero(t, n3.Series.Len())
	assert.Nil(t, n3.Position, "invalid rows do not contribute a location")
	assert.Contains(t, logs.String(), "node has no usable samples")

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.NodeRows.WithLabelValues("node1", "retained")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.NodeRows.WithLabelValues("node1", "discarded")))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.TelemetryFixes))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.AlignedRows))
	assert.Equal(t, float64(clock.Now().Unix()), testutil.ToFloat64(metrics.LastSuccess))
}

func TestLoader_DegenerateRange(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "s")
	writeFile(t, filepath.Join(dir, "node1", "a.csv"), csvRow(base, "0.4", "Valid", "1", "1"))
	writeFile(t, filepath.Join(dir, "drone", "other.bin"), "")

	loader, _ := newTestLoader(t, dir, WithSourceOpener(opener(fixAt(base, 1, 1))))
	s, err := loader.Load(context.Background())
	require.NoError(t, err)

	assert.True(t, s.Degenerate)
	assert.Equal(t, 0.0, s.Range.Min)
	assert.Equal(t, 1.0, s.Range.Max)
}

func TestLoader_NoUsableNodeData(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "s")
	writeFile(t, filepath.Join(dir, "node1", "a.csv"), csvRow(base, "0.4", "Invalid", "1", "1"))
	writeFile(t, filepath.Join(dir, "drone", "s.bin"), "")

	loader, _ := newTestLoader(t, dir, WithSourceOpener(opener(fixAt(base, 1, 1))))
	_, err := loader.Load(context.Background())
	require.ErrorIs(t, err, ErrNoUsableData)
	assert.ErrorIs(t, err, node.ErrNoSamples)
}

func TestLoader_NoTelemetry(t *testing.T) {
	dir := sessionDir(t)

	loader, _ := newTestLoader(t, dir, WithSourceOpener(opener()))
	_, err := loader.Load(context.Background())
	require.ErrorIs(t, err, ErrNoUsableData)
	assert.ErrorIs(t, err, telemetry.ErrNoTelemetry)
}

func TestLoader_EmptyFlightLogFile(t *testing.T) {
	// The real DataFlash reader on an empty file yields no fixes.
	loader, _ := newTestLoader(t, sessionDir(t))
	_, err := loader.Load(context.Background())
	require.ErrorIs(t, err, ErrNoUsableData)
}

func TestLoader_Cancelled(t *testing.T) {
	loader, _ := newTestLoader(t, sessionDir(t), WithSourceOpener(opener(fixAt(base, 1, 1))))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := loader.Load(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDiscover(t *testing.T) {
	dir := sessionDir(t)

	in, err := Discover(dir, DiscoverOptions{NodePrefix: "node", DroneDir: "drone"})
	require.NoError(t, err)

	assert.Equal(t, "flight-01", in.Name)
	require.Len(t, in.Nodes, 3)
	assert.Equal(t, "node2", in.Nodes[1].ID)
	assert.Equal(t, []string{filepath.Join(dir, "node2", "log.CSV")}, in.Nodes[1].Files)
	assert.Equal(t, filepath.Join(dir, "drone", "flight-01.bin"), in.FlightLog)
}

func TestDiscover_FlightLogFallback(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "s")
	writeFile(t, filepath.Join(dir, "node1", "a.csv"), "x")
	writeFile(t, filepath.Join(dir, "drone", "00000042.BIN"), "")

	in, err := Discover(dir, DiscoverOptions{NodePrefix: "node", DroneDir: "drone"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "drone", "00000042.BIN"), in.FlightLog)

	writeFile(t, filepath.Join(dir, "drone", "00000043.bin"), "")
	_, err = Discover(dir, DiscoverOptions{NodePrefix: "node", DroneDir: "drone"})
	require.ErrorIs(t, err, ErrMissingInput)

	explicit := filepath.Join(dir, "drone", "00000043.bin")
	in, err = Discover(dir, DiscoverOptions{NodePrefix: "node", DroneDir: "drone", FlightLog: explicit})
	require.NoError(t, err)
	assert.Equal(t, explicit, in.FlightLog)
}

func TestDiscover_MissingInputs(t *testing.T) {
	root := t.TempDir()

	_, err := Discover(filepath.Join(root, "nope"), DiscoverOptions{NodePrefix: "node", DroneDir: "drone"})
	require.ErrorIs(t, err, ErrMissingInput)

	noNodes := filepath.Join(root, "a")
	writeFile(t, filepath.Join(noNodes, "drone", "a.bin"), "")
	writeFile(t, filepath.Join(noNodes, "node1", "readme.txt"), "")
	_, err = Discover(noNodes, DiscoverOptions{NodePrefix: "node", DroneDir: "drone"})
	require.ErrorIs(t, err, ErrMissingInput)

	noDrone := filepath.Join(root, "b")
	writeFile(t, filepath.Join(noDrone, "node1", "a.csv"), "")
	_, err = Discover(noDrone, DiscoverOptions{NodePrefix: "node", DroneDir: "drone"})
	require.ErrorIs(t, err, ErrMissingInput)

	_, err = Discover(noDrone, DiscoverOptions{NodePrefix: "node", DroneDir: "drone", FlightLog: filepath.Join(root, "x.bin")})
	require.ErrorIs(t, err, ErrMissingInput)
}
