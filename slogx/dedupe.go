package slogx

import (
	"context"
	"log/slog"
	"slices"
)

var _ slog.Handler = (*dedupeHandler)(nil)

// dedupeHandler holds attributes back from the wrapped handler until a record is handled, so repeated keys can be collapsed first.
type dedupeHandler struct {
	group string
	attrs []slog.Attr
	next  slog.Handler
}

// Dedupe wraps a handler so that each attribute key is written at most once per record, with the most recent value winning.
// Keys added after [slog.Logger.WithGroup] are qualified with the group name, so "group.key" and "key" stay distinct.
//
// Passing a nil handler will panic.
func Dedupe(next slog.Handler) slog.Handler {
	if next == nil {
		panic("nil handler passed to Dedupe")
	}
	return &dedupeHandler{next: next}
}

func (h *dedupeHandler) qualify(key string) string {
	if len(h.group) == 0 {
		return key
	}
	return h.group + "." + key
}

func (h *dedupeHandler) merge(attrs []slog.Attr) []slog.Attr {
	merged := slices.Clone(h.attrs)
	for _, attr := range attrs {
		attr.Key = h.qualify(attr.Key)
		i := slices.IndexFunc(merged, func(existing slog.Attr) bool {
			return existing.Key == attr.Key
		})
		if i >= 0 {
			merged[i] = attr
			continue
		}
		merged = append(merged, attr)
	}
	return merged
}

func (h *dedupeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *dedupeHandler) Handle(ctx context.Context, record slog.Record) error {
	attrs := h.attrs
	if record.NumAttrs() > 0 {
		recordAttrs := make([]slog.Attr, 0, record.NumAttrs())
		record.Attrs(func(attr slog.Attr) bool {
			recordAttrs = append(recordAttrs, attr)
			return true
		})
		attrs = h.merge(recordAttrs)
		record = slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	}
	return h.next.WithAttrs(attrs).Handle(ctx, record)
}

func (h *dedupeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return &dedupeHandler{
		group: h.group,
		attrs: h.merge(attrs),
		next:  h.next,
	}
}

func (h *dedupeHandler) WithGroup(name string) slog.Handler {
	if len(name) == 0 {
		return h
	}
	return &dedupeHandler{
		group: h.qualify(name),
		attrs: h.attrs,
		next:  h.next,
	}
}
