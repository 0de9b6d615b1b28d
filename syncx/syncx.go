// Package syncx has small helpers that keep lock scopes tied to a function body, so an early return can't leak a held lock.
package syncx

import "sync"

// LockFunc runs fn while holding mux.
func LockFunc(mux sync.Locker, fn func()) {
	mux.Lock()
	defer mux.Unlock()
	fn()
}

// LockFuncT runs fn while holding mux, and returns its result.
func LockFuncT[T any](mux sync.Locker, fn func() T) T {
	mux.Lock()
	defer mux.Unlock()
	return fn()
}

// LockFuncTErr runs fn while holding mux, and returns its result and error.
func LockFuncTErr[T any](mux sync.Locker, fn func() (T, error)) (T, error) {
	mux.Lock()
	defer mux.Unlock()
	return fn()
}

// RLocker is satisfied by [sync.RWMutex].
type RLocker interface {
	RLock()
	RUnlock()
}

// RLockFuncT runs fn while holding a read lock on mux, and returns its result.
func RLockFuncT[T any](mux RLocker, fn func() T) T {
	mux.RLock()
	defer mux.RUnlock()
	return fn()
}
