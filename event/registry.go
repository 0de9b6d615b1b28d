package event

import (
	"slices"
	"sync"

	"github.com/saylorsolutions/propagate/syncx"
)

// Entry is a single [Listener] registration within a [Registry] bucket.
type Entry[N comparable] struct {
	listener Listener[N]
	capture  bool
	passive  bool
	once     bool
	removed  bool
	inFlight bool
}

func (e Entry[N]) Listener() Listener[N] {
	return e.listener
}

func (e Entry[N]) Capture() bool {
	return e.capture
}

func (e Entry[N]) Passive() bool {
	return e.passive
}

func (e Entry[N]) Once() bool {
	return e.once
}

func (e *Entry[N]) matches(l Listener[N], capture bool) bool {
	return !e.removed && e.capture == capture && e.listener == l
}

type listenResult int

const (
	entryAdded listenResult = iota
	entryUpdated
)

// Registry maps event types to listener entries for a single object.
// Entries within a type are kept in registration order, and a type with no entries is dropped.
//
// A Registry is created by [Engine.Construct] and only mutated through the [Engine].
type Registry[N comparable] struct {
	owner N

	mux     sync.RWMutex
	buckets map[string][]*Entry[N]
}

func newRegistry[N comparable](owner N) *Registry[N] {
	return &Registry[N]{
		owner:   owner,
		buckets: map[string][]*Entry[N]{},
	}
}

// Owner returns the object this [Registry] belongs to.
func (r *Registry[N]) Owner() N {
	return r.owner
}

// Len returns the number of live entries registered for the event type.
func (r *Registry[N]) Len(eventType string) int {
	return syncx.RLockFuncT(&r.mux, func() int {
		return len(r.buckets[eventType])
	})
}

// Types returns the event types that have at least one entry, sorted.
func (r *Registry[N]) Types() []string {
	return syncx.RLockFuncT(&r.mux, func() []string {
		if len(r.buckets) == 0 {
			return nil
		}
		types := make([]string, 0, len(r.buckets))
		for t := range r.buckets {
			types = append(types, t)
		}
		slices.Sort(types)
		return types
	})
}

// Entries returns a copy of the entries registered for the event type, in registration order.
func (r *Registry[N]) Entries(eventType string) []Entry[N] {
	return syncx.RLockFuncT(&r.mux, func() []Entry[N] {
		bucket := r.buckets[eventType]
		if len(bucket) == 0 {
			return nil
		}
		entries := make([]Entry[N], len(bucket))
		for i, e := range bucket {
			entries[i] = *e
		}
		return entries
	})
}

func (r *Registry[N]) listen(eventType string, l Listener[N], conf listenConf) listenResult {
	return syncx.LockFuncT(&r.mux, func() listenResult {
		bucket := r.buckets[eventType]
		for _, e := range bucket {
			if e.matches(l, conf.capture) {
				e.passive = conf.passive
				e.once = conf.once
				return entryUpdated
			}
		}
		r.buckets[eventType] = append(bucket, &Entry[N]{
			listener: l,
			capture:  conf.capture,
			passive:  conf.passive,
			once:     conf.once,
		})
		return entryAdded
	})
}

// unlisten removes the entry matching (l, capture), reporting whether one was found.
func (r *Registry[N]) unlisten(eventType string, l Listener[N], capture bool) bool {
	return syncx.LockFuncT(&r.mux, func() bool {
		for _, e := range r.buckets[eventType] {
			if e.matches(l, capture) {
				return r.removeLocked(eventType, e)
			}
		}
		return false
	})
}

// removeLocked tombstones the exact entry and then drops it from its bucket.
// The tombstone is what in-flight snapshots observe.
func (r *Registry[N]) removeLocked(eventType string, entry *Entry[N]) bool {
	bucket := r.buckets[eventType]
	idx := slices.Index(bucket, entry)
	if idx < 0 {
		return false
	}
	entry.removed = true
	bucket = slices.Delete(bucket, idx, idx+1)
	if len(bucket) == 0 {
		delete(r.buckets, eventType)
		return true
	}
	r.buckets[eventType] = bucket
	return true
}

// snapshot copies the entry pointers of a bucket so the bucket may change while they're iterated.
func (r *Registry[N]) snapshot(eventType string) []*Entry[N] {
	return syncx.RLockFuncT(&r.mux, func() []*Entry[N] {
		return slices.Clone(r.buckets[eventType])
	})
}

type claimed struct {
	passive bool
	once    bool
}

// claim decides whether a snapshot entry should be invoked for the current phase.
// A claimed once entry stays registered but is marked in flight, so no other dispatch can claim it until [Registry.release].
func (r *Registry[N]) claim(entry *Entry[N], capture bool) (claimed, bool) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if entry.removed || entry.inFlight || entry.capture != capture {
		return claimed{}, false
	}
	if entry.once {
		entry.inFlight = true
	}
	return claimed{passive: entry.passive, once: entry.once}, true
}

// release removes a claimed once entry after its invocation, reporting whether it was still registered.
func (r *Registry[N]) release(eventType string, entry *Entry[N]) bool {
	return syncx.LockFuncT(&r.mux, func() bool {
		entry.inFlight = false
		if entry.removed {
			return false
		}
		return r.removeLocked(eventType, entry)
	})
}

func (r *Registry[N]) clear() {
	syncx.LockFunc(&r.mux, func() {
		for _, bucket := range r.buckets {
			for _, e := range bucket {
				e.removed = true
			}
		}
		r.buckets = map[string][]*Entry[N]{}
	})
}
