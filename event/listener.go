package event

import (
	"reflect"
)

// Listener receives events dispatched to the object it was registered on, or to one of that object's descendants.
//
// Listener identity is interface equality, which is how duplicate registrations and [Engine.Unlisten] find entries.
// That means implementations should be pointer types.
type Listener[N comparable] interface {
	HandleEvent(evt *Event[N])
}

// FuncListener is a [Listener] handle that wraps a function.
// Functions can't be compared in Go, so the handle itself is the identity: keep it around to unlisten later.
type FuncListener[N comparable] struct {
	fn func(evt *Event[N])
}

// Func creates a new [FuncListener] handle for fn.
// Each call creates a distinct identity, even for the same function.
func Func[N comparable](fn func(evt *Event[N])) *FuncListener[N] {
	return &FuncListener[N]{fn: fn}
}

func (f *FuncListener[N]) HandleEvent(evt *Event[N]) {
	if f.fn != nil {
		f.fn(evt)
	}
}

func isNilListener[N comparable](l Listener[N]) bool {
	if l == nil {
		return true
	}
	val := reflect.ValueOf(l)
	switch val.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return val.IsNil()
	default:
		return false
	}
}

// isComparableListener checks the dynamic value, since a comparable struct type may still hold an incomparable value in an interface field.
func isComparableListener[N comparable](l Listener[N]) bool {
	return reflect.ValueOf(l).Comparable()
}

// ListenOption configures how a [Listener] is registered with [Engine.Listen] and matched with [Engine.Unlisten].
type ListenOption func(conf *listenConf)

type listenConf struct {
	capture bool
	passive bool
	once    bool
}

func newListenConf(opts []ListenOption) listenConf {
	var conf listenConf
	for _, opt := range opts {
		if opt != nil {
			opt(&conf)
		}
	}
	return conf
}

// Capture registers the [Listener] for the capturing phase instead of the bubbling phase.
// A capture listener and a bubble listener are separate registrations, even with the same [Listener].
// Both kinds fire when their object is the dispatch target.
func Capture() ListenOption {
	return func(conf *listenConf) {
		conf.capture = true
	}
}

// Passive suppresses [Event.PreventDefault] and [Event.StopPropagation] while the [Listener] runs.
// This is ignored by [Engine.Unlisten].
func Passive() ListenOption {
	return func(conf *listenConf) {
		conf.passive = true
	}
}

// Once removes the [Listener] after it is first invoked.
// This is ignored by [Engine.Unlisten].
func Once() ListenOption {
	return func(conf *listenConf) {
		conf.once = true
	}
}
