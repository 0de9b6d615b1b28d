package event

import "errors"

var (
	// ErrRegistryMissing means an object was used before [Engine.Construct] or after [Engine.Destruct].
	// This is a lifecycle bug in the calling code, so it's never retried.
	ErrRegistryMissing = errors.New("listener registry missing")
	// ErrIncomparableListener is returned when a [Listener] can't be compared for identity.
	// Use a pointer type, or wrap functions with [Func].
	ErrIncomparableListener = errors.New("listener is not comparable")
)
