// Package set is a small generic set, mostly used for membership checks while walking graphs.
package set

// Set formalizes set semantics for a map of comparable keys.
type Set[T comparable] map[T]struct{}

// New creates a new [Set] from the given values.
// The returned [Set] will have no values if none are given.
func New[T comparable](vals ...T) Set[T] {
	s := make(Set[T], len(vals))
	for _, v := range vals {
		s[v] = struct{}{}
	}
	return s
}

// Add adds values to the [Set], allocating it if it's nil, and returns it.
func (s Set[T]) Add(val T, others ...T) Set[T] {
	if s == nil {
		s = Set[T]{}
	}
	s[val] = struct{}{}
	for _, v := range others {
		s[v] = struct{}{}
	}
	return s
}

// Remove deletes values from the [Set]. Removing from a nil [Set] does nothing.
func (s Set[T]) Remove(val T, others ...T) Set[T] {
	delete(s, val)
	for _, v := range others {
		delete(s, v)
	}
	return s
}

func (s Set[T]) Has(val T) bool {
	_, ok := s[val]
	return ok
}

// TryAdd adds val and reports whether it was new to the [Set].
// The [Set] must not be nil.
func (s Set[T]) TryAdd(val T) bool {
	if s.Has(val) {
		return false
	}
	s[val] = struct{}{}
	return true
}

// Slice returns the values in no particular order, or nil for an empty [Set].
func (s Set[T]) Slice() []T {
	if len(s) == 0 {
		return nil
	}
	vals := make([]T, 0, len(s))
	for val := range s {
		vals = append(vals, val)
	}
	return vals
}
