package event

import (
	"log/slog"
	"time"

	"github.com/saylorsolutions/propagate/slogx"
)

// PanicHandler is called with the event type and recovered value when a [Listener] panics.
type PanicHandler func(eventType string, recovered any)

// Option configures an [Engine] in [New].
type Option func(conf *engineConf)

type engineConf struct {
	log           *slog.Logger
	now           func() time.Time
	captureStacks bool
	onPanic       PanicHandler
}

func defaultEngineConf() engineConf {
	return engineConf{
		log: slog.New(slogx.Discard()),
		now: time.Now,
	}
}

// WithLogger sets the logger that receives lifecycle, registration, and dispatch checkpoints.
// Nothing is logged by default.
// Trace level output is noisy: it includes every phase transition and listener invocation.
func WithLogger(log *slog.Logger) Option {
	return func(conf *engineConf) {
		if log != nil {
			conf.log = log
		}
	}
}

// WithClock overrides how [Event.Timestamp] is determined.
func WithClock(now func() time.Time) Option {
	return func(conf *engineConf) {
		if now != nil {
			conf.now = now
		}
	}
}

// CaptureStacks records a full goroutine stack for each dispatched [Event].
// This is useful for debugging, but expensive.
func CaptureStacks() Option {
	return func(conf *engineConf) {
		conf.captureStacks = true
	}
}

// WithPanicHandler recovers panics raised by listeners and reports them to handler.
// Traversal continues with the next listener.
// Without a handler, a panic propagates out of [Engine.Dispatch].
func WithPanicHandler(handler PanicHandler) Option {
	return func(conf *engineConf) {
		conf.onPanic = handler
	}
}
