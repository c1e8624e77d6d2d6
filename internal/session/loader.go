package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/roman-kulish/drone-path-prob/internal/align"
	"github.com/roman-kulish/drone-path-prob/internal/config"
	"github.com/roman-kulish/drone-path-prob/internal/dataflash"
	"github.com/roman-kulish/drone-path-prob/internal/node"
	"github.com/roman-kulish/drone-path-prob/internal/observability"
	"github.com/roman-kulish/drone-path-prob/internal/projection"
	"github.com/roman-kulish/drone-path-prob/internal/telemetry"
)

// SourceOpener opens a flight log for decoding.
type SourceOpener func(path string) (telemetry.Source, error)

func openDataflash(path string) (telemetry.Source, error) {
	return dataflash.Open(path)
}

// Loader runs the whole pipeline for one session directory.
type Loader struct {
	config  *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock
	open    SourceOpener
}

type LoaderOption func(*Loader)

func WithMetrics(m *observability.Metrics) LoaderOption {
	return func(l *Loader) {
		l.metrics = m
	}
}

func WithClock(c clockwork.Clock) LoaderOption {
	return func(l *Loader) {
		l.clock = c
	}
}

// WithSourceOpener replaces the DataFlash reader, e.g. for other log formats.
func WithSourceOpener(open SourceOpener) LoaderOption {
	return func(l *Loader) {
		l.open = open
	}
}

func NewLoader(cfg *config.Config, logger *slog.Logger, opts ...LoaderOption) *Loader {
	l := &Loader{
		config: cfg,
		logger: logger,
		clock:  clockwork.NewRealClock(),
		open:   openDataflash,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.metrics == nil {
		l.metrics = observability.NewMetrics()
	}
	return l
}

// Load discovers the inputs of the configured session directory and aligns
// them. Nothing is written; the returned Session is handed to writers.
func (l *Loader) Load(ctx context.Context) (*Session, error) {
	in, err := Discover(l.config.Input.Dir, DiscoverOptions{
		Name:       l.config.Input.Name,
		NodePrefix: l.config.Nodes.DirPrefix,
		DroneDir:   l.config.Input.DroneDir,
		FlightLog:  l.config.Telemetry.Path,
	})
	if err != nil {
		return nil, err
	}
	return l.LoadInputs(ctx, in)
}

// LoadInputs aligns already discovered inputs.
func (l *Loader) LoadInputs(ctx context.Context, in *Inputs) (*Session, error) {
	s := &Session{
		RunID:       uuid.New(),
		Name:        in.Name,
		Dir:         in.Dir,
		FlightLog:   in.FlightLog,
		ProcessedAt: l.clock.Now().UTC(),
	}

	l.logger.Info("processing session",
		slog.String("session", s.Name),
		slog.String("runId", s.RunID.String()),
		slog.Int("nodes", len(in.Nodes)),
		slog.String("flightLog", in.FlightLog))

	steps := []struct {
		stage string
		fn    func(context.Context, *Session, *Inputs) error
	}{
		{"nodes", l.loadNodes},
		{"telemetry", l.loadTelemetry},
		{"align", l.alignRows},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := l.clock.Now()
		if err := step.fn(ctx, s, in); err != nil {
			return nil, err
		}
		l.metrics.StageDuration.WithLabelValues(step.stage).Observe(l.clock.Since(start).Seconds())
	}

	l.metrics.LastSuccess.Set(float64(s.ProcessedAt.Unix()))
	return s, nil
}

func (l *Loader) loadNodes(ctx context.Context, s *Session, in *Inputs) error {
	schema, err := l.config.Schema()
	if err != nil {
		return err
	}

	var usable int
	series := make([]*node.Series, 0, len(in.Nodes))
	for _, files := range in.Nodes {
		if err = ctx.Err(); err != nil {
			return err
		}

		samples, stats, err := node.ReadFiles(files.Files, schema)
		if err != nil {
			return fmt.Errorf("reading node %s: %w", files.ID, err)
		}

		ser, err := node.Normalize(files.ID, samples, node.AllowEmpty())
		if err != nil {
			return err
		}

		n := &Node{ID: files.ID, Files: files.Files, Read: stats, Series: ser}
		s.Nodes = append(s.Nodes, n)
		series = append(series, ser)

		l.metrics.NodeRows.WithLabelValues(n.ID, "retained").Add(float64(ser.Stats.Retained))
		l.metrics.NodeRows.WithLabelValues(n.ID, "discarded").Add(float64(ser.Stats.Rows - ser.Stats.Retained))
		l.metrics.NodeRows.WithLabelValues(n.ID, "malformed").Add(float64(stats.Malformed))
		l.metrics.NodePoints.WithLabelValues(n.ID).Set(float64(ser.Len()))

		if ser.Len() == 0 {
			l.logger.Warn("node has no usable samples, its column will be filled",
				slog.String("node", n.ID),
				slog.Int("rows", ser.Stats.Rows),
				slog.Int("retained", ser.Stats.Retained))
			continue
		}
		usable++

		start, end := ser.Span()
		l.logger.Info("node loaded",
			slog.String("node", n.ID),
			slog.Group("stats",
				slog.String("rows", humanize.Comma(int64(ser.Stats.Rows))),
				slog.Int("retained", ser.Stats.Retained),
				slog.Int("malformed", stats.Malformed),
				slog.Int("duplicates", ser.Stats.Duplicates),
				slog.Int("points", ser.Len()),
				slog.String("start", start.Format(time.DateTime)),
				slog.String("end", end.Format(time.DateTime)),
				slog.String("probability", fmt.Sprintf("%0.2f..%0.2f", ser.Stats.MinValue, ser.Stats.MaxValue)),
			))
	}

	if usable == 0 {
		return fmt.Errorf("%w: %w", ErrNoUsableData, node.ErrNoSamples)
	}

	s.Table = align.Merge(series...)
	l.metrics.JointTableRows.Set(float64(s.Table.Len()))
	return nil
}

func (l *Loader) loadTelemetry(_ context.Context, s *Session, in *Inputs) error {
	src, err := l.open(in.FlightLog)
	if err != nil {
		return fmt.Errorf("opening flight log: %w", err)
	}

	fixes, stats, err := telemetry.Decode(src, l.config.DecodeOptions()...)
	l.metrics.TelemetryMessages.Add(float64(stats.Messages))
	if errors.Is(err, telemetry.ErrNoTelemetry) {
		return fmt.Errorf("%w: %w", ErrNoUsableData, err)
	}
	if err != nil {
		return fmt.Errorf("decoding flight log: %w", err)
	}
	l.metrics.TelemetryFixes.Add(float64(stats.Fixes))

	s.Fixes = fixes
	s.Telemetry = stats
	s.ThreeD = true
	for _, f := range fixes {
		if f.Altitude == nil {
			s.ThreeD = false
			break
		}
	}

	l.logger.Info("flight log decoded",
		slog.Group("stats",
			slog.String("messages", humanize.Comma(int64(stats.Messages))),
			slog.Int("candidates", stats.Candidates),
			slog.Int("incomplete", stats.Incomplete),
			slog.Int("fixes", stats.Fixes),
			slog.Bool("altitude", s.ThreeD),
		))
	return nil
}

func (l *Loader) alignRows(_ context.Context, s *Session, _ *Inputs) error {
	projector, err := projection.NewProjectorForFixes(s.Fixes)
	if err != nil {
		return fmt.Errorf("projecting track: %w", err)
	}
	s.Projector = projector

	opts := append(l.config.AlignOptions(), align.WithProjector(projector))
	if s.Rows, err = align.Align(s.Fixes, s.Table, opts...); err != nil {
		return fmt.Errorf("aligning: %w", err)
	}

	var ok bool
	s.Range, ok = align.ScaleRange(s.Rows)
	s.Degenerate = !ok
	if s.Degenerate {
		l.logger.Warn("node values have no spread, using the default display range",
			slog.Float64("min", s.Range.Min),
			slog.Float64("max", s.Range.Max))
		l.metrics.DegenerateScale.Set(1)
	}

	for _, n := range s.Nodes {
		loc := n.Series.Location
		if loc == nil {
			continue
		}
		pt := projector.Project(loc.Latitude, loc.Longitude)
		n.Position = &pt

		if n.Closest = closestApproach(s.Rows, loc); n.Closest != nil {
			l.metrics.NodeDistanceM.WithLabelValues(n.ID).Set(n.Closest.Distance)
			l.logger.Debug("closest approach",
				slog.String("node", n.ID),
				slog.String("distance", humanize.SIWithDigits(n.Closest.Distance, 1, "m")),
				slog.String("at", n.Closest.Timestamp.Format(time.DateTime)))
		}
	}

	unmatched := s.Unmatched()
	l.metrics.AlignedRows.Set(float64(len(s.Rows)))
	l.metrics.UnmatchedRows.Set(float64(unmatched))

	originLat, originLon := projector.Origin()
	l.logger.Info("aligned",
		slog.Group("stats",
			slog.Int("rows", len(s.Rows)),
			slog.Int("unmatched", unmatched),
			slog.Int("tableRows", s.Table.Len()),
			slog.String("origin", fmt.Sprintf("%0.6f,%0.6f", originLat, originLon)),
			slog.String("range", fmt.Sprintf("%0.3f..%0.3f", s.Range.Min, s.Range.Max)),
		))
	return nil
}
