// Package signalx ties OS signals to context cancellation.
package signalx

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// DefaultSignals are the signals [Interrupt] listens for when none are given.
var DefaultSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// Interrupt returns a context that is cancelled when one of the signals is received.
// If a second signal arrives before the returned stop function is called, then the process exits with code 130.
// Calling stop releases the signal subscription, and is safe to call more than once.
func Interrupt(parent context.Context, signals ...os.Signal) (ctx context.Context, stop func()) {
	if len(signals) == 0 {
		signals = DefaultSignals
	}
	ctx, cancel := context.WithCancel(parent)
	sigs := make(chan os.Signal, 2)
	done := make(chan struct{})
	signal.Notify(sigs, signals...)
	go func() {
		select {
		case <-sigs:
			cancel()
		case <-done:
			return
		}
		select {
		case <-sigs:
			os.Exit(130)
		case <-done:
		}
	}()
	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			signal.Stop(sigs)
			close(done)
			cancel()
		})
	}
}
