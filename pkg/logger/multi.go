package logger

import (
	"context"
	"errors"
	"log/slog"
)

// fanout dispatches each record to every wrapped handler that accepts its
// level. The serve command uses it to write pretty output to the terminal and
// JSON to a log file at the same time.
type fanout []slog.Handler

// Multi returns a logger that writes every record through the handlers of all
// given loggers.
func Multi(loggers ...*slog.Logger) *slog.Logger {
	hs := make(fanout, 0, len(loggers))
	for _, l := range loggers {
		hs = append(hs, l.Handler())
	}
	return slog.New(hs)
}

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle keeps writing to the remaining handlers when one fails and returns
// the joined errors.
func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanout) WithGroup(name string) slog.Handler {
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanout) derive(fn func(slog.Handler) slog.Handler) fanout {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = fn(h)
	}
	return out
}
