// Package hierarchy provides an ownership tree of comparable nodes.
// It can produce the ancestor chain of a node, and notifies [Lifecycle] observers as nodes come and go, which is everything an event.Engine needs from a hierarchy.
package hierarchy

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/saylorsolutions/propagate/slogx"
	"github.com/saylorsolutions/propagate/structures/set"
	"github.com/saylorsolutions/propagate/syncx"
)

var (
	ErrNodeExists   = errors.New("node already exists")
	ErrNodeNotFound = errors.New("node not found")
	ErrCycle        = errors.New("node cannot be moved beneath itself")
)

// Lifecycle is notified when nodes are added to or removed from a [Tree].
type Lifecycle[N comparable] interface {
	// Construct is called after a node is linked into the tree, so its parent is already constructed.
	Construct(node N)
	// Destruct is called after a node is unlinked from the tree, children before their parents.
	Destruct(node N)
}

// Option configures a [Tree] in [New].
type Option func(conf *treeConf)

type treeConf struct {
	log *slog.Logger
}

// WithLogger sets the logger that receives tree mutations at debug level.
func WithLogger(log *slog.Logger) Option {
	return func(conf *treeConf) {
		if log != nil {
			conf.log = log
		}
	}
}

// Tree is a forest of nodes, where each node has at most one parent.
// Children are kept in the order they were added.
// A Tree is safe for concurrent use, and [Lifecycle] hooks are never called while the tree is locked.
type Tree[N comparable] struct {
	log *slog.Logger

	mux      sync.RWMutex
	nodes    set.Set[N]
	roots    []N
	parents  map[N]N
	children map[N][]N
	hooks    []Lifecycle[N]
}

// New creates an empty [Tree].
func New[N comparable](opts ...Option) *Tree[N] {
	conf := treeConf{log: slog.New(slogx.Discard())}
	for _, opt := range opts {
		if opt != nil {
			opt(&conf)
		}
	}
	return &Tree[N]{
		log:      conf.log,
		nodes:    set.New[N](),
		parents:  map[N]N{},
		children: map[N][]N{},
	}
}

// Observe registers hooks to be notified of node changes.
// Nodes that are already in the tree are reported to hooks right away, parents before children.
func (t *Tree[N]) Observe(hooks Lifecycle[N]) {
	if hooks == nil {
		return
	}
	existing := syncx.LockFuncT(&t.mux, func() []N {
		t.hooks = append(t.hooks, hooks)
		return t.breadthFirstLocked(t.roots)
	})
	for _, node := range existing {
		hooks.Construct(node)
	}
}

func (t *Tree[N]) lifecycle() []Lifecycle[N] {
	return slices.Clone(t.hooks)
}

// AddRoot adds a node without a parent.
func (t *Tree[N]) AddRoot(node N) error {
	hooks, err := syncx.LockFuncTErr(&t.mux, func() ([]Lifecycle[N], error) {
		if t.nodes.Has(node) {
			return nil, fmt.Errorf("%w: '%v'", ErrNodeExists, node)
		}
		t.nodes.Add(node)
		t.roots = append(t.roots, node)
		return t.lifecycle(), nil
	})
	if err != nil {
		return err
	}
	t.log.Debug("Added root", "node", node)
	for _, h := range hooks {
		h.Construct(node)
	}
	return nil
}

// AddChild adds node as the last child of parent.
func (t *Tree[N]) AddChild(parent, node N) error {
	hooks, err := syncx.LockFuncTErr(&t.mux, func() ([]Lifecycle[N], error) {
		if !t.nodes.Has(parent) {
			return nil, fmt.Errorf("%w: parent '%v'", ErrNodeNotFound, parent)
		}
		if t.nodes.Has(node) {
			return nil, fmt.Errorf("%w: '%v'", ErrNodeExists, node)
		}
		t.nodes.Add(node)
		t.linkLocked(parent, node)
		return t.lifecycle(), nil
	})
	if err != nil {
		return err
	}
	t.log.Debug("Added child", "parent", parent, "node", node)
	for _, h := range hooks {
		h.Construct(node)
	}
	return nil
}

// Remove unlinks node and all of its descendants.
// [Lifecycle.Destruct] is called for descendants before their parents.
func (t *Tree[N]) Remove(node N) error {
	var removed []N
	hooks, err := syncx.LockFuncTErr(&t.mux, func() ([]Lifecycle[N], error) {
		if !t.nodes.Has(node) {
			return nil, fmt.Errorf("%w: '%v'", ErrNodeNotFound, node)
		}
		removed = t.postOrderLocked(node)
		t.unlinkLocked(node)
		for _, n := range removed {
			t.nodes.Remove(n)
			delete(t.children, n)
			delete(t.parents, n)
		}
		return t.lifecycle(), nil
	})
	if err != nil {
		return err
	}
	t.log.Debug("Removed subtree", "node", node, "count", len(removed))
	for _, n := range removed {
		for _, h := range hooks {
			h.Destruct(n)
		}
	}
	return nil
}

// Move makes node the last child of newParent, bringing its descendants along.
// No [Lifecycle] hooks are called.
func (t *Tree[N]) Move(node, newParent N) error {
	err := syncx.LockFuncT(&t.mux, func() error {
		if !t.nodes.Has(node) {
			return fmt.Errorf("%w: '%v'", ErrNodeNotFound, node)
		}
		if !t.nodes.Has(newParent) {
			return fmt.Errorf("%w: parent '%v'", ErrNodeNotFound, newParent)
		}
		if slices.Contains(t.postOrderLocked(node), newParent) {
			return fmt.Errorf("%w: '%v' under '%v'", ErrCycle, node, newParent)
		}
		t.unlinkLocked(node)
		t.linkLocked(newParent, node)
		return nil
	})
	if err != nil {
		return err
	}
	t.log.Debug("Moved node", "node", node, "parent", newParent)
	return nil
}

// Detach makes node a root, bringing its descendants along.
// No [Lifecycle] hooks are called.
func (t *Tree[N]) Detach(node N) error {
	err := syncx.LockFuncT(&t.mux, func() error {
		if !t.nodes.Has(node) {
			return fmt.Errorf("%w: '%v'", ErrNodeNotFound, node)
		}
		if _, ok := t.parents[node]; !ok {
			return nil
		}
		t.unlinkLocked(node)
		t.roots = append(t.roots, node)
		return nil
	})
	if err != nil {
		return err
	}
	t.log.Debug("Detached node", "node", node)
	return nil
}

// Ancestors returns the owners of node, nearest parent first.
// Unknown nodes and roots have no ancestors.
// This can be passed to event.New as its ancestor function.
func (t *Tree[N]) Ancestors(node N) []N {
	return syncx.RLockFuncT(&t.mux, func() []N {
		var (
			chain []N
			seen  = set.New(node)
		)
		for parent, ok := t.parents[node]; ok; parent, ok = t.parents[parent] {
			if !seen.TryAdd(parent) {
				t.log.Error("Cycle in ancestor chain", "node", node, "repeated", parent)
				break
			}
			chain = append(chain, parent)
		}
		return chain
	})
}

// Parent returns the parent of node, and false if node is a root or unknown.
func (t *Tree[N]) Parent(node N) (N, bool) {
	t.mux.RLock()
	defer t.mux.RUnlock()
	parent, ok := t.parents[node]
	return parent, ok
}

// Children returns a copy of the children of node, in the order they were added.
func (t *Tree[N]) Children(node N) []N {
	return syncx.RLockFuncT(&t.mux, func() []N {
		return slices.Clone(t.children[node])
	})
}

// Roots returns a copy of the nodes without a parent, in the order they became roots.
func (t *Tree[N]) Roots() []N {
	return syncx.RLockFuncT(&t.mux, func() []N {
		return slices.Clone(t.roots)
	})
}

func (t *Tree[N]) Has(node N) bool {
	return syncx.RLockFuncT(&t.mux, func() bool {
		return t.nodes.Has(node)
	})
}

// Len returns the number of nodes in the tree.
func (t *Tree[N]) Len() int {
	return syncx.RLockFuncT(&t.mux, func() int {
		return len(t.nodes)
	})
}

func (t *Tree[N]) linkLocked(parent, node N) {
	t.parents[node] = parent
	t.children[parent] = append(t.children[parent], node)
}

func (t *Tree[N]) unlinkLocked(node N) {
	parent, ok := t.parents[node]
	if !ok {
		if idx := slices.Index(t.roots, node); idx >= 0 {
			t.roots = slices.Delete(t.roots, idx, idx+1)
		}
		return
	}
	delete(t.parents, node)
	siblings := t.children[parent]
	if idx := slices.Index(siblings, node); idx >= 0 {
		siblings = slices.Delete(siblings, idx, idx+1)
	}
	if len(siblings) == 0 {
		delete(t.children, parent)
		return
	}
	t.children[parent] = siblings
}

// postOrderLocked lists node and its descendants, children before parents.
func (t *Tree[N]) postOrderLocked(node N) []N {
	var out []N
	for _, child := range t.children[node] {
		out = append(out, t.postOrderLocked(child)...)
	}
	return append(out, node)
}

func (t *Tree[N]) breadthFirstLocked(start []N) []N {
	var (
		out   []N
		queue = slices.Clone(start)
	)
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		out = append(out, node)
		queue = append(queue, t.children[node]...)
	}
	return out
}
