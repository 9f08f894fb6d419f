package logging

import (
	"context"
	"errors"
	"log/slog"
)

// teeHandler writes each record to every child handler that accepts its level.
// The daemon uses it to mirror console output into the log file.
type teeHandler struct {
	children []slog.Handler
}

// TeeHandler combines handlers. Nil entries are dropped; zero handlers yield a
// NoopHandler and a single handler is returned unwrapped.
func TeeHandler(handlers ...slog.Handler) slog.Handler {
	children := make([]slog.Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			children = append(children, h)
		}
	}
	switch len(children) {
	case 0:
		return NoopHandler{}
	case 1:
		return children[0]
	}
	return &teeHandler{children: children}
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, child := range h.children {
		if child.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	last := len(h.children) - 1
	for i, child := range h.children {
		if !child.Enabled(ctx, record.Level) {
			continue
		}
		rec := record
		if i < last {
			rec = record.Clone()
		}
		if err := child.Handle(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.each(func(child slog.Handler) slog.Handler { return child.WithAttrs(attrs) })
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	return h.each(func(child slog.Handler) slog.Handler { return child.WithGroup(name) })
}

func (h *teeHandler) each(fn func(slog.Handler) slog.Handler) slog.Handler {
	next := make([]slog.Handler, len(h.children))
	for i, child := range h.children {
		next[i] = fn(child)
	}
	return &teeHandler{children: next}
}
