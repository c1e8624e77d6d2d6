package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/drone-path-prob/internal/render"
	"github.com/roman-kulish/drone-path-prob/internal/storage"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	return renderSession(ctx, store, config, logger)
}

// readFlightMap loads a stored session into a flight map, applying the
// configured time filters.
func readFlightMap(ctx context.Context, store storage.Store, config *Config, logger *slog.Logger) (*render.FlightMap, error) {
	var opts []storage.ReaderOption
	var filters []any
	switch {
	case config.MinTimestamp != nil && config.MaxTimestamp != nil:
		opts = append(opts, storage.WithTimeRange(config.MinTimestamp.UTC(), config.MaxTimestamp.UTC()))

		filters = append(filters,
			slog.String("minTimestamp", config.MinTimestamp.UTC().Format(time.DateTime)),
			slog.String("maxTimestamp", config.MaxTimestamp.UTC().Format(time.DateTime)))

	case config.MinTimestamp != nil:
		opts = append(opts, storage.WithStartTime(config.MinTimestamp.UTC()))
		filters = append(filters, slog.String("minTimestamp", config.MinTimestamp.UTC().Format(time.DateTime)))

	case config.MaxTimestamp != nil:
		opts = append(opts, storage.WithEndTime(config.MaxTimestamp.UTC()))
		filters = append(filters, slog.String("maxTimestamp", config.MaxTimestamp.UTC().Format(time.DateTime)))
	}

	logger.Info("iterator configuration", filters...)

	iter, err := store.ReadRows(ctx, config.SessionID, opts...)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	sess := iter.Session()
	m := &render.FlightMap{
		Title: render.Title(sess.Name, sess.ThreeD),
		Range: sess.Range,
	}

	for iter.Next(ctx) {
		row := iter.Current()
		if len(m.Track) == 0 {
			m.Start = row.Fix.Timestamp
		}
		m.End = row.Fix.Timestamp
		m.Track = append(m.Track, render.TrackPoint{Position: row.Position, Value: row.MaxConcern})
	}
	if err = iter.Error(); err != nil {
		return nil, err
	}

	nodes, err := store.Nodes(ctx, config.SessionID)
	if err != nil {
		return nil, fmt.Errorf("reading nodes: %w", err)
	}
	for _, n := range nodes {
		if n.Position == nil {
			logger.Debug("node has no position", slog.String("node", n.ID))
			continue
		}
		m.Markers = append(m.Markers, render.Marker{Label: n.ID, Position: *n.Position})
	}

	logger.Info("finished reading rows",
		slog.Group("stats",
			slog.String("session", sess.Name),
			slog.String("processedAt", humanize.Time(sess.ProcessedAt)),
			slog.String("rows", humanize.Comma(int64(len(m.Track)))),
			slog.Int("nodes", len(m.Markers)),
			slog.String("minConcern", humanize.FtoaWithDigits(sess.Range.Min, 3)),
			slog.String("maxConcern", humanize.FtoaWithDigits(sess.Range.Max, 3)),
		))
	return m, nil
}

func renderSession(ctx context.Context, store storage.Store, config *Config, logger *slog.Logger) error {
	m, err := readFlightMap(ctx, store, config, logger)
	if err != nil {
		return err
	}
	if len(m.Track) == 0 && len(m.Markers) == 0 {
		return errors.New("no rows in the selected time range")
	}

	renderer, err := render.NewRenderer(render.Config{
		Width:         config.Width,
		Height:        config.Height,
		Theme:         config.Theme,
		Location:      config.TimeZone,
		NoAnnotations: config.NoAnnotations,
	})
	if err != nil {
		return fmt.Errorf("creating flight map renderer: %w", err)
	}

	logger.Info("rendering flight map",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(config.Theme)),
			slog.Int("width", config.Width),
			slog.Int("height", config.Height),
		))

	img, err := renderer.Render(m)
	if err != nil {
		return fmt.Errorf("rendering flight map: %w", err)
	}

	_, err = render.WriteFile(config.OutputFile, img, string(config.Format))
	return err
}
