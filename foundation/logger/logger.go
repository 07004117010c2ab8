// Package logger builds the structured logger shared by the agent.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
)

// NewCustomLogger is going to setup a *slog.Logger writing to w and return it.
// Records are written as JSON in production and as text otherwise.
func NewCustomLogger(w io.Writer, level slog.Level, isProd bool, attrs ...slog.Attr) *slog.Logger {
	//we do not want that long file path, just the file name and line number
	replacer := func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.SourceKey {
			if source, ok := a.Value.Any().(*slog.Source); ok {
				return slog.Attr{
					Key:   slog.SourceKey,
					Value: slog.StringValue(fmt.Sprintf("file:%s:%d", filepath.Base(source.File), source.Line)),
				}
			}
		}
		return a
	}

	opts := &slog.HandlerOptions{
		AddSource:   true,
		Level:       level,
		ReplaceAttr: replacer,
	}

	handler := customLogHandler{
		jsonHandler: slog.NewJSONHandler(w, opts).WithAttrs(attrs),
		textHandler: slog.NewTextHandler(w, opts).WithAttrs(attrs),
		isProd:      isProd,
	}

	return slog.New(&handler)
}

// ParseLevel maps a level name onto a slog.Level, unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// customLogHandler is a type that represent a custom logger that is able to base
// on environment switch it's handler
type customLogHandler struct {
	jsonHandler slog.Handler
	textHandler slog.Handler
	isProd      bool
}

func (ch *customLogHandler) active() slog.Handler {
	if ch.isProd {
		return ch.jsonHandler
	}
	return ch.textHandler
}

func (ch *customLogHandler) Handle(ctx context.Context, record slog.Record) error {
	return ch.active().Handle(ctx, record)
}

func (ch *customLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return ch.active().Enabled(ctx, level)
}

func (ch *customLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &customLogHandler{
		jsonHandler: ch.jsonHandler.WithAttrs(attrs),
		textHandler: ch.textHandler.WithAttrs(attrs),
		isProd:      ch.isProd,
	}
}

func (ch *customLogHandler) WithGroup(name string) slog.Handler {
	return &customLogHandler{
		jsonHandler: ch.jsonHandler.WithGroup(name),
		textHandler: ch.textHandler.WithGroup(name),
		isProd:      ch.isProd,
	}
}
