package event

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/saylorsolutions/propagate/slogx"
	"github.com/saylorsolutions/propagate/syncx"
)

// AncestorFunc returns the owners of node, starting with its nearest parent and ending with the root.
// A node without a parent has no ancestors.
type AncestorFunc[N comparable] func(node N) []N

// Engine holds a [Registry] per object and dispatches events across object hierarchies.
//
// Objects are identified by N, and must be introduced with [Engine.Construct] before they can listen for or receive events.
// The shape of the hierarchy is up to the [AncestorFunc] given to [New].
//
// An Engine is safe for concurrent use, and a [Listener] may call back into the Engine while it's handling an event.
type Engine[N comparable] struct {
	ancestors AncestorFunc[N]
	conf      engineConf
	log       *slog.Logger

	mux        sync.RWMutex
	registries map[N]*Registry[N]
}

// New creates an [Engine] that resolves ancestor chains with ancestors.
// If ancestors is nil, then every object is treated as a root.
func New[N comparable](ancestors AncestorFunc[N], opts ...Option) *Engine[N] {
	if ancestors == nil {
		ancestors = func(N) []N {
			return nil
		}
	}
	conf := defaultEngineConf()
	for _, opt := range opts {
		if opt != nil {
			opt(&conf)
		}
	}
	return &Engine[N]{
		ancestors:  ancestors,
		conf:       conf,
		log:        conf.log,
		registries: map[N]*Registry[N]{},
	}
}

// Construct creates the [Registry] for obj.
// This should happen exactly once per object, before anything else is done with it.
func (e *Engine[N]) Construct(obj N) {
	created := syncx.LockFuncT(&e.mux, func() bool {
		if _, ok := e.registries[obj]; ok {
			return false
		}
		e.registries[obj] = newRegistry(obj)
		return true
	})
	if !created {
		e.log.Error("Object constructed more than once, keeping existing registry", "object", obj)
		return
	}
	e.log.Debug("Created registry", "object", obj)
}

// Destruct discards the [Registry] for obj, along with all of its listeners.
// The object can't listen, unlisten, or be visited by a dispatch after this.
func (e *Engine[N]) Destruct(obj N) {
	reg := syncx.LockFuncT(&e.mux, func() *Registry[N] {
		reg, ok := e.registries[obj]
		if !ok {
			return nil
		}
		delete(e.registries, obj)
		return reg
	})
	if reg == nil {
		e.log.Debug("No registry to delete", "object", obj)
		return
	}
	reg.clear()
	e.log.Debug("Deleted registry", "object", obj)
}

// Constructed reports whether obj currently has a [Registry].
func (e *Engine[N]) Constructed(obj N) bool {
	_, ok := e.Registry(obj)
	return ok
}

// Registry returns the [Registry] for obj, if it's been constructed.
func (e *Engine[N]) Registry(obj N) (*Registry[N], bool) {
	e.mux.RLock()
	defer e.mux.RUnlock()
	reg, ok := e.registries[obj]
	return reg, ok
}

// Listeners returns the number of listeners registered on obj for the event type, regardless of phase.
func (e *Engine[N]) Listeners(obj N, eventType string) int {
	reg, ok := e.Registry(obj)
	if !ok {
		return 0
	}
	return reg.Len(eventType)
}

func (e *Engine[N]) registry(op string, obj N) (*Registry[N], error) {
	reg, ok := e.Registry(obj)
	if !ok {
		err := fmt.Errorf("%w: cannot %s on object '%v'", ErrRegistryMissing, op, obj)
		e.log.Error("Object has no registry", "op", op, "object", obj, "error", err)
		return nil, err
	}
	return reg, nil
}

// Listen registers l to receive events of the given type on obj.
//
// Registering the same [Listener] again for the same type and capture mode updates its [Passive] and [Once] settings in place.
// A nil [Listener] is ignored.
func (e *Engine[N]) Listen(obj N, eventType string, l Listener[N], opts ...ListenOption) error {
	reg, err := e.registry("listen", obj)
	if err != nil {
		return err
	}
	if isNilListener(l) {
		return nil
	}
	if !isComparableListener(l) {
		return fmt.Errorf("%w: %T", ErrIncomparableListener, l)
	}
	conf := newListenConf(opts)
	switch reg.listen(eventType, l, conf) {
	case entryAdded:
		e.log.Debug("Added listener", "object", obj, "type", eventType, "capture", conf.capture, "passive", conf.passive, "once", conf.once)
	case entryUpdated:
		e.log.Debug("Updated listener", "object", obj, "type", eventType, "capture", conf.capture, "passive", conf.passive, "once", conf.once)
	}
	return nil
}

// Unlisten removes the registration of l for the event type and capture mode on obj.
// Only [Capture] is meaningful here.
// Nothing happens if there is no such registration.
func (e *Engine[N]) Unlisten(obj N, eventType string, l Listener[N], opts ...ListenOption) error {
	reg, err := e.registry("unlisten", obj)
	if err != nil {
		return err
	}
	if isNilListener(l) || !isComparableListener(l) {
		return nil
	}
	conf := newListenConf(opts)
	if reg.unlisten(eventType, l, conf.capture) {
		e.log.Debug("Removed listener", "object", obj, "type", eventType, "capture", conf.capture)
	}
	return nil
}

// Dispatch sends an event of the given type to target without a scope.
// See [Engine.DispatchScope].
func (e *Engine[N]) Dispatch(target N, eventType string) (bool, error) {
	return e.dispatch(target, eventType, nil, e.creationStack())
}

// DispatchScope sends an event of the given type to target, running capture listeners of its ancestors, then listeners on target itself, then bubble listeners of its ancestors.
// Every listener runs before this returns.
//
// The result is false if propagation was stopped, and true otherwise.
// [Event.PreventDefault] doesn't affect the result.
//
// An error wrapping [ErrRegistryMissing] is returned if the traversal reaches an object that hasn't been constructed, and the traversal is abandoned.
func (e *Engine[N]) DispatchScope(target N, eventType string, scope any) (bool, error) {
	return e.dispatch(target, eventType, scope, e.creationStack())
}

func (e *Engine[N]) creationStack() string {
	if e.conf.captureStacks {
		return string(debug.Stack())
	}
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s#%d", file, line)
}

func (e *Engine[N]) dispatch(target N, eventType string, scope any, stack string) (bool, error) {
	var (
		ancestors = e.ancestors(target)
		dc        = newDispatchContext(target)
		evt       = newEvent(dc, eventType, scope, stack, e.conf.now())
		log       = e.log.With("type", eventType, "target", target)
	)
	defer func() {
		dc.phase = PhaseNone
	}()
	log.Log(context.Background(), slogx.LevelCheckpoint, "Dispatch started", "ancestors", len(ancestors))

	for i := len(ancestors) - 1; i >= 0; i-- {
		if dc.stopped {
			break
		}
		e.transition(log, dc, PhaseCapturing, ancestors[i])
		if err := e.fireListeners(log, dc, evt, true); err != nil {
			return false, err
		}
	}

	if !dc.stopped {
		e.transition(log, dc, PhaseAtTarget, target)
		if err := e.fireListeners(log, dc, evt, true); err != nil {
			return false, err
		}
		if !dc.stopped {
			if err := e.fireListeners(log, dc, evt, false); err != nil {
				return false, err
			}
		}
	}

	if !dc.stopped {
		for _, ancestor := range ancestors {
			if dc.stopped {
				break
			}
			e.transition(log, dc, PhaseBubbling, ancestor)
			if err := e.fireListeners(log, dc, evt, false); err != nil {
				return false, err
			}
		}
	}

	dc.phase = PhaseNone
	result := !dc.stopped
	log.Log(context.Background(), slogx.LevelCheckpoint, "Dispatch finished", "result", result, "prevented", evt.prevented)
	return result, nil
}

func (e *Engine[N]) transition(log *slog.Logger, dc *dispatchContext[N], phase Phase, handler N) {
	dc.visit(phase, handler)
	log.Log(context.Background(), slogx.LevelTrace, "Entered phase", "phase", phase, "current", handler)
}

func (e *Engine[N]) fireListeners(log *slog.Logger, dc *dispatchContext[N], evt *Event[N], capture bool) error {
	reg, err := e.registry("fire listeners", dc.handler)
	if err != nil {
		return err
	}
	for _, entry := range reg.snapshot(evt.eventType) {
		if dc.stopped {
			break
		}
		state, ok := reg.claim(entry, capture)
		if !ok {
			continue
		}
		dc.align(state.passive)
		if state.once {
			e.invokeOnce(log, dc, evt, reg, entry)
			continue
		}
		e.invoke(log, dc, evt, entry.listener)
	}
	return nil
}

// invokeOnce removes the entry right after its invocation, even if the listener panics.
func (e *Engine[N]) invokeOnce(log *slog.Logger, dc *dispatchContext[N], evt *Event[N], reg *Registry[N], entry *Entry[N]) {
	handler, capture := dc.handler, entry.capture
	defer func() {
		if reg.release(evt.eventType, entry) {
			log.Debug("Removed once listener", "object", handler, "capture", capture)
		}
	}()
	e.invoke(log, dc, evt, entry.listener)
}

func (e *Engine[N]) invoke(log *slog.Logger, dc *dispatchContext[N], evt *Event[N], l Listener[N]) {
	traced := log.Enabled(context.Background(), slogx.LevelTrace)
	if traced {
		log.Log(context.Background(), slogx.LevelTrace, "Invoking listener", "phase", dc.phase, "current", dc.handler, "passive", dc.passive)
	}
	if e.conf.onPanic != nil {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Listener panicked", "phase", dc.phase, "current", dc.handler, "panic", r)
				e.conf.onPanic(evt.eventType, r)
			}
		}()
	}
	l.HandleEvent(evt)
	if traced {
		log.Log(context.Background(), slogx.LevelTrace, "Listener returned", "phase", dc.phase, "current", dc.handler, "stopped", dc.stopped, "prevented", evt.prevented)
	}
}
