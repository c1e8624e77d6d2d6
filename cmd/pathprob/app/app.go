package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/drone-path-prob/internal/config"
	"github.com/roman-kulish/drone-path-prob/internal/observability"
	"github.com/roman-kulish/drone-path-prob/internal/output"
	"github.com/roman-kulish/drone-path-prob/internal/render"
	"github.com/roman-kulish/drone-path-prob/internal/session"
	"github.com/roman-kulish/drone-path-prob/internal/storage"
)

// Run aligns one session and writes every configured output. The output
// table is always written; the database, flight map and metrics textfile
// only when configured.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	return run(ctx, cfg, logger, observability.NewMetrics())
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, opts ...session.LoaderOption) error {
	// Render settings are checked before anything is written.
	renderer, err := newRenderer(cfg)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	opts = append([]session.LoaderOption{session.WithMetrics(metrics)}, opts...)
	loader := session.NewLoader(cfg, logger, opts...)

	s, err := loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}

	steps := []struct {
		msg     string
		enabled bool
		fn      func(context.Context, *session.Session) error
	}{
		{"writing output table", true, func(_ context.Context, s *session.Session) error {
			return writeTable(cfg, s, logger)
		}},
		{"storing session", cfg.Storage.DBPath != "", func(ctx context.Context, s *session.Session) error {
			return storeSession(ctx, cfg, s, logger)
		}},
		{"rendering flight map", renderer != nil, func(_ context.Context, s *session.Session) error {
			return renderMap(cfg, renderer, s, logger)
		}},
	}
	for _, step := range steps {
		if !step.enabled {
			continue
		}
		if err = step.fn(ctx, s); err != nil {
			return fmt.Errorf("%s: %w", step.msg, err)
		}
	}

	if cfg.Output.Metrics != "" {
		if err = metrics.WriteTextfile(cfg.Output.Metrics); err != nil {
			return err
		}
		logger.Debug("metrics written", slog.String("path", cfg.Output.Metrics))
	}

	logger.Info("session processed",
		slog.String("session", s.Name),
		slog.String("runId", s.RunID.String()))
	return nil
}

// outputPath resolves relative output paths against the session directory.
func outputPath(cfg *config.Config, s *session.Session) string {
	if filepath.IsAbs(cfg.Output.File) {
		return cfg.Output.File
	}
	return filepath.Join(s.Dir, cfg.Output.File)
}

func writeTable(cfg *config.Config, s *session.Session, logger *slog.Logger) error {
	path := outputPath(cfg, s)
	table := output.NewTable(s, cfg.Output.Projected)
	if err := output.WriteFile(path, table); err != nil {
		return err
	}

	logger.Info("output table written",
		slog.String("path", path),
		slog.String("rows", humanize.Comma(int64(len(table.Rows)))),
		slog.Int("columns", len(table.Header())))
	return nil
}

func storeSession(ctx context.Context, cfg *config.Config, s *session.Session, logger *slog.Logger) error {
	store := storage.NewSqliteStore(cfg.Storage.DBPath)
	defer store.Close()

	start := time.Now()
	id, err := store.SaveSession(ctx, s, cfg)
	if err != nil {
		return err
	}

	logger.Info("session stored",
		slog.String("db", cfg.Storage.DBPath),
		slog.Int64("sessionId", id),
		slog.String("rows", humanize.Comma(int64(len(s.Rows)))),
		slog.Duration("took", time.Since(start)))
	return nil
}

// newRenderer validates the render settings and builds the flight map
// renderer. It returns nil when no map file is configured.
func newRenderer(cfg *config.Config) (*render.Renderer, error) {
	theme, err := render.ParseTheme(cfg.Render.Theme)
	if err != nil {
		return nil, err
	}
	if cfg.Render.File == "" {
		return nil, nil
	}

	renderer, err := render.NewRenderer(render.Config{
		Width:         cfg.Render.Width,
		Height:        cfg.Render.Height,
		Theme:         theme,
		NoAnnotations: cfg.Render.NoAnnotations,
	})
	if err != nil {
		return nil, fmt.Errorf("creating renderer: %w", err)
	}
	return renderer, nil
}

func renderMap(cfg *config.Config, renderer *render.Renderer, s *session.Session, logger *slog.Logger) error {
	img, err := renderer.Render(render.FromSession(s))
	if err != nil {
		return err
	}

	path, err := render.WriteFile(cfg.Render.File, img, string(cfg.Render.Format))
	if err != nil {
		return err
	}

	logger.Info("flight map rendered",
		slog.Group("image",
			slog.String("destination", path),
			slog.String("format", string(cfg.Render.Format)),
			slog.String("theme", cfg.Render.Theme),
			slog.Int("width", cfg.Render.Width),
			slog.Int("height", cfg.Render.Height),
		))
	return nil
}
