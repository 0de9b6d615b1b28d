package event

import (
	"time"
)

// Event is what a [Listener] sees during a dispatch.
// Type, scope, stack, and timestamp are fixed when the dispatch starts.
// Everything else is a live view of the dispatch, so the same Event reports a different [Phase] and current object as traversal moves along.
//
// An Event is only meaningful during the [Engine.Dispatch] call that created it.
type Event[N comparable] struct {
	eventType string
	scope     any
	stack     string
	timestamp time.Time

	ctx       *dispatchContext[N]
	prevented bool
}

func newEvent[N comparable](ctx *dispatchContext[N], eventType string, scope any, stack string, timestamp time.Time) *Event[N] {
	return &Event[N]{
		eventType: eventType,
		scope:     scope,
		stack:     stack,
		timestamp: timestamp,
		ctx:       ctx,
	}
}

// Type is the event type given to [Engine.Dispatch].
func (e *Event[N]) Type() string {
	return e.eventType
}

// Scope is the payload given to [Engine.DispatchScope], or nil.
func (e *Event[N]) Scope() any {
	return e.scope
}

// Stack describes where the dispatch was started from.
// This is the caller's file and line, or a full goroutine stack if the [Engine] was created with [CaptureStacks].
func (e *Event[N]) Stack() string {
	return e.stack
}

// Timestamp is when the dispatch started.
func (e *Event[N]) Timestamp() time.Time {
	return e.timestamp
}

func (e *Event[N]) Phase() Phase {
	return e.ctx.phase
}

// Target is the object the event was dispatched to.
func (e *Event[N]) Target() N {
	return e.ctx.target
}

// Current is the object whose listeners are running right now.
func (e *Event[N]) Current() N {
	return e.ctx.handler
}

func (e *Event[N]) DefaultPrevented() bool {
	return e.prevented
}

func (e *Event[N]) PropagationStopped() bool {
	return e.ctx.stopped
}

// PreventDefault marks the event as prevented, unless called from a passive [Listener].
// This has no effect on propagation or the result of [Engine.Dispatch].
func (e *Event[N]) PreventDefault() {
	if e.ctx.passive {
		return
	}
	e.prevented = true
}

// StopPropagation keeps any [Listener] that hasn't been invoked yet from running, unless called from a passive [Listener].
// Once stopped, the event stays stopped.
func (e *Event[N]) StopPropagation() {
	e.ctx.stop()
}

// ScopeAs asserts that the scope of evt is a T.
// False is returned if there is no scope, or it's some other type.
func ScopeAs[T any, N comparable](evt *Event[N]) (T, bool) {
	var mt T
	if evt == nil || evt.scope == nil {
		return mt, false
	}
	val, ok := evt.scope.(T)
	if !ok {
		return mt, false
	}
	return val, true
}
