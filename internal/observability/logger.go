package observability

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// NewLogger builds a slog logger writing to w. The returned LevelVar can be
// raised or lowered after construction, e.g. once a config file is read.
func NewLogger(w io.Writer, format, level string) (*slog.Logger, *slog.LevelVar, error) {
	var logLevel slog.LevelVar
	if level != "" {
		if err := logLevel.UnmarshalText([]byte(level)); err != nil {
			return nil, nil, fmt.Errorf("invalid log level: %s", level)
		}
	}

	opts := &slog.HandlerOptions{Level: &logLevel}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "", LogFormatText:
		handler = slog.NewTextHandler(w, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, nil, fmt.Errorf("invalid log format: %s", format)
	}

	return slog.New(handler), &logLevel, nil
}
