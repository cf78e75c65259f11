package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options controls the process logger.
type Options struct {
	Env     string
	Level   string
	Version string
	Out     io.Writer
}

// New returns the process logger. Local and dev runs log human-readable text
// at debug level; everything else logs JSON at info unless Level overrides it.
func New(o Options) *slog.Logger {
	out := o.Out
	if out == nil {
		out = os.Stdout
	}
	local := o.Env == "local" || o.Env == "dev"

	level := slog.LevelInfo
	if local {
		level = slog.LevelDebug
	}
	if o.Level != "" {
		level = ParseLevel(o.Level, level)
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if local {
		h = slog.NewTextHandler(out, opts)
	} else {
		h = slog.NewJSONHandler(out, opts)
	}
	l := slog.New(h).With("service", "memoir")
	if o.Version != "" {
		l = l.With("version", o.Version)
	}
	return l
}

// ParseLevel maps debug/info/warn/error to a slog level, returning def for
// anything else.
func ParseLevel(s string, def slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return def
}

type ctxKey struct{}

// With stores a logger in context.
func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From gets a logger from context, falling back to slog.Default().
func From(ctx context.Context) *slog.Logger {
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}
