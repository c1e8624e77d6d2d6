package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, level, err := NewLogger(&buf, "json", "warn")
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", slog.String("node", "node1"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "node1", line["node"])

	level.Set(slog.LevelDebug)
	buf.Reset()
	logger.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestNewLogger_Invalid(t *testing.T) {
	_, _, err := NewLogger(&bytes.Buffer{}, "xml", "")
	assert.Error(t, err)

	_, _, err = NewLogger(&bytes.Buffer{}, "text", "loud")
	assert.Error(t, err)
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.NodeRows.WithLabelValues("node1", "retained").Add(3)
	m.TelemetryFixes.Add(42)
	m.AlignedRows.Set(42)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.NodeRows.WithLabelValues("node1", "retained")))

	path := filepath.Join(t.TempDir(), "pathprob.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `pathprob_node_rows_total{node="node1",outcome="retained"} 3`)
	assert.Contains(t, string(data), "pathprob_telemetry_fixes_total 42")
}

func TestNewMetrics_Independent(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()
	a.TelemetryFixes.Inc()
	assert.Zero(t, testutil.ToFloat64(b.TelemetryFixes))
}
