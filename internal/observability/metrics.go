package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pathprob"

// Metrics holds the Prometheus counters and gauges of one batch run. They
// live on a private registry so that a run can be exported as a textfile
// for the node exporter.
type Metrics struct {
	Registry *prometheus.Registry

	// Node log ingestion.
	NodeRows      *prometheus.CounterVec // labels: node, outcome={retained,discarded,malformed}
	NodePoints    *prometheus.GaugeVec   // labels: node
	NodeDistanceM *prometheus.GaugeVec   // labels: node; closest approach of the track

	// Telemetry decoding.
	TelemetryMessages prometheus.Counter
	TelemetryFixes    prometheus.Counter

	// Alignment.
	AlignedRows     prometheus.Gauge
	UnmatchedRows   prometheus.Gauge
	JointTableRows  prometheus.Gauge
	DegenerateScale prometheus.Gauge

	StageDuration *prometheus.HistogramVec // labels: stage
	LastSuccess   prometheus.Gauge
}

// NewMetrics creates and registers all metrics with a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		NodeRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_rows_total",
			Help:      "Node log rows by outcome.",
		}, []string{"node", "outcome"}),
		NodePoints: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "node_points",
			Help:      "Distinct timestamps in each normalized node series.",
		}, []string{"node"}),
		NodeDistanceM: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "node_closest_approach_meters",
			Help:      "Closest distance between the drone track and each node.",
		}, []string{"node"}),
		TelemetryMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_messages_total",
			Help:      "Messages read from the flight log.",
		}),
		TelemetryFixes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_fixes_total",
			Help:      "GPS fixes decoded from the flight log.",
		}),
		AlignedRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "aligned_rows",
			Help:      "Rows in the aligned output table.",
		}),
		UnmatchedRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unmatched_rows",
			Help:      "Aligned rows with no node match within tolerance.",
		}),
		JointTableRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "joint_table_rows",
			Help:      "Distinct node timestamps after merging.",
		}),
		DegenerateScale: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "degenerate_scale",
			Help:      "1 when the display range fell back to [0,1].",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each processing stage.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}, []string{"stage"}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
	}

	m.Registry.MustRegister(
		m.NodeRows,
		m.NodePoints,
		m.NodeDistanceM,
		m.TelemetryMessages,
		m.TelemetryFixes,
		m.AlignedRows,
		m.UnmatchedRows,
		m.JointTableRows,
		m.DegenerateScale,
		m.StageDuration,
		m.LastSuccess,
	)

	return m
}

// WriteTextfile writes every metric in the text exposition format. The file
// is written atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
