package ui

import (
	"context"
	"errors"
	"log/slog"
)

// MultiHandler fans out log records to several handlers. A record is
// handled by every handler enabled for its level.
type MultiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler returns a handler writing to all of handlers.
func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

// Enabled reports whether any handler accepts level.
func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: hs}
}

func (m *MultiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &MultiHandler{handlers: hs}
}

// EventLogger logs every session event as an "rdpc.event" record.
type EventLogger struct {
	Logger *slog.Logger
}

func (l EventLogger) Emit(ev Event) {
	attrs := []any{"type", ev.Type.String()}
	if ev.Step != "" {
		attrs = append(attrs, "step", ev.Step)
	}
	if ev.Detail != "" {
		attrs = append(attrs, "detail", ev.Detail)
	}
	if ev.Width != 0 {
		attrs = append(attrs, "width", ev.Width, "height", ev.Height)
	}
	if ev.Code != 0 {
		attrs = append(attrs, "code", ev.Code)
	}
	if ev.Error != nil {
		attrs = append(attrs, "error", ev.Error)
	}
	l.Logger.Debug("rdpc.event", attrs...)
}
