package slogx

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/saylorsolutions/propagate/syncx"
)

// Record is a flattened copy of a [slog.Record] kept by a [Recorder].
// Attribute keys include their group prefix, like "group.key".
type Record struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   map[string]string
}

// Attr returns the string value of an attribute, or an empty string if it's not set.
func (r Record) Attr(key string) string {
	return r.Attrs[key]
}

type recordStore struct {
	mux     sync.Mutex
	records []Record
}

var _ slog.Handler = (*Recorder)(nil)

// Recorder is a [slog.Handler] that keeps every enabled record in memory.
// Handlers derived with WithAttrs or WithGroup share the same records.
type Recorder struct {
	level slog.Leveler
	store *recordStore
	group string
	attrs map[string]string
}

// NewRecorder creates a [Recorder] that keeps records at or above level.
// A nil level keeps everything, including [LevelTrace].
func NewRecorder(level slog.Leveler) *Recorder {
	if level == nil {
		level = LevelTrace
	}
	return &Recorder{
		level: level,
		store: new(recordStore),
	}
}

func (r *Recorder) prefix() string {
	if len(r.group) == 0 {
		return ""
	}
	return r.group + "."
}

func (r *Recorder) Enabled(_ context.Context, level slog.Level) bool {
	return level >= r.level.Level()
}

func (r *Recorder) Handle(_ context.Context, record slog.Record) error {
	rec := Record{
		Time:    record.Time,
		Level:   record.Level,
		Message: record.Message,
		Attrs:   map[string]string{},
	}
	for k, v := range r.attrs {
		rec.Attrs[k] = v
	}
	prefix := r.prefix()
	record.Attrs(func(attr slog.Attr) bool {
		flatten(rec.Attrs, prefix, attr)
		return true
	})
	syncx.LockFunc(&r.store.mux, func() {
		r.store.records = append(r.store.records, rec)
	})
	return nil
}

func flatten(into map[string]string, prefix string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		groupPrefix := prefix
		if len(attr.Key) > 0 {
			groupPrefix = prefix + attr.Key + "."
		}
		for _, member := range attr.Value.Group() {
			flatten(into, groupPrefix, member)
		}
		return
	}
	if len(attr.Key) == 0 {
		return
	}
	into[prefix+attr.Key] = attr.Value.String()
}

func (r *Recorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return r
	}
	cp := *r
	cp.attrs = make(map[string]string, len(r.attrs)+len(attrs))
	for k, v := range r.attrs {
		cp.attrs[k] = v
	}
	prefix := r.prefix()
	for _, attr := range attrs {
		flatten(cp.attrs, prefix, attr)
	}
	return &cp
}

func (r *Recorder) WithGroup(name string) slog.Handler {
	if len(name) == 0 {
		return r
	}
	cp := *r
	cp.group = r.prefix() + name
	return &cp
}

// Records returns a copy of everything recorded so far, oldest first.
func (r *Recorder) Records() []Record {
	return syncx.LockFuncT(&r.store.mux, func() []Record {
		return slices.Clone(r.store.records)
	})
}

// Messages returns only the message of each record, oldest first.
func (r *Recorder) Messages() []string {
	records := r.Records()
	msgs := make([]string, len(records))
	for i, rec := range records {
		msgs[i] = rec.Message
	}
	return msgs
}

// Find returns the records with the given message.
func (r *Recorder) Find(message string) []Record {
	var found []Record
	for _, rec := range r.Records() {
		if rec.Message == message {
			found = append(found, rec)
		}
	}
	return found
}

// Reset discards all records.
func (r *Recorder) Reset() {
	syncx.LockFunc(&r.store.mux, func() {
		r.store.records = nil
	})
}
