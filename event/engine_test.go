package event

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/saylorsolutions/propagate/slogx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTree is a parent map standing in for a real hierarchy.
type testTree map[string]string

func (tt testTree) ancestors(node string) []string {
	var chain []string
	for parent, ok := tt[node]; ok; parent, ok = tt[parent] {
		chain = append(chain, parent)
	}
	return chain
}

func testEngine(t *testing.T, tree testTree, nodes ...string) *Engine[string] {
	t.Helper()
	e := New(tree.ancestors)
	for _, n := range nodes {
		e.Construct(n)
	}
	return e
}

type firing struct {
	name    string
	phase   Phase
	current string
	target  string
}

func (f firing) String() string {
	return fmt.Sprintf("%s@%s:%s", f.name, f.current, f.phase)
}

type firingLog struct {
	firings []firing
}

func (l *firingLog) listener(name string, then ...func(evt *Event[string])) *FuncListener[string] {
	return Func(func(evt *Event[string]) {
		l.firings = append(l.firings, firing{
			name:    name,
			phase:   evt.Phase(),
			current: evt.Current(),
			target:  evt.Target(),
		})
		for _, fn := range then {
			fn(evt)
		}
	})
}

func (l *firingLog) strings() []string {
	out := make([]string, len(l.firings))
	for i, f := range l.firings {
		out[i] = f.String()
	}
	return out
}

func stop(evt *Event[string]) {
	evt.StopPropagation()
}

func prevent(evt *Event[string]) {
	evt.PreventDefault()
}

func TestEngine_SingleObject(t *testing.T) {
	var (
		log  firingLog
		seen *Event[string]
	)
	e := testEngine(t, nil, "A")
	cb := log.listener("cb", func(evt *Event[string]) {
		seen = evt
	})
	require.NoError(t, e.Listen("A", "x", cb))

	result, err := e.Dispatch("A", "x")
	require.NoError(t, err)
	assert.True(t, result)
	require.Len(t, log.firings, 1)
	f := log.firings[0]
	assert.Equal(t, PhaseAtTarget, f.phase)
	assert.Equal(t, "A", f.target)
	assert.Equal(t, "A", f.current)
	assert.Equal(t, PhaseNone, seen.Phase(), "Phase should be reset when dispatch returns")
	assert.Equal(t, "x", seen.Type())
	assert.Nil(t, seen.Scope())
	assert.Contains(t, seen.Stack(), "engine_test.go#", "Stack should point at the dispatching caller")
}

func TestEngine_StopDuringCapture(t *testing.T) {
	var log firingLog
	tree := testTree{"C": "P"}
	e := testEngine(t, tree, "P", "C")
	stopper := log.listener("stopper", stop)
	bubble := log.listener("bubble")
	require.NoError(t, e.Listen("P", "x", stopper, Capture()))
	require.NoError(t, e.Listen("C", "x", bubble))

	result, err := e.Dispatch("C", "x")
	require.NoError(t, err)
	assert.False(t, result)
	assert.Equal(t, []string{"stopper@P:CAPTURING"}, log.strings())
}

func TestEngine_OnceFiresOnce(t *testing.T) {
	var log firingLog
	e := testEngine(t, nil, "A")
	cb := log.listener("cb")
	require.NoError(t, e.Listen("A", "y", cb, Once()))

	for i := 0; i < 2; i++ {
		result, err := e.Dispatch("A", "y")
		require.NoError(t, err)
		assert.True(t, result)
	}
	assert.Len(t, log.firings, 1)
	assert.Equal(t, 0, e.Listeners("A", "y"))
	reg, ok := e.Registry("A")
	require.True(t, ok)
	assert.Empty(t, reg.Types(), "Bucket should be deleted once empty")
}

func TestEngine_PassiveSuppressesEffects(t *testing.T) {
	var (
		log  firingLog
		seen *Event[string]
	)
	e := testEngine(t, nil, "A")
	cb := log.listener("cb", prevent, stop, func(evt *Event[string]) {
		seen = evt
	})
	require.NoError(t, e.Listen("A", "z", cb, Passive()))

	result, err := e.Dispatch("A", "z")
	require.NoError(t, err)
	assert.True(t, result)
	assert.False(t, seen.DefaultPrevented())
	assert.False(t, seen.PropagationStopped())
}

func TestEngine_NoListeners(t *testing.T) {
	e := testEngine(t, testTree{"A": "R"}, "R", "A")
	result, err := e.Dispatch("A", "w")
	assert.NoError(t, err)
	assert.True(t, result)
}

func TestEngine_PhaseOrder(t *testing.T) {
	var log firingLog
	tree := testTree{"mid": "root", "leaf": "mid"}
	e := testEngine(t, tree, "root", "mid", "leaf")
	for _, n := range []string{"root", "mid", "leaf"} {
		require.NoError(t, e.Listen(n, "x", log.listener(n+"-cap"), Capture()))
		require.NoError(t, e.Listen(n, "x", log.listener(n+"-bub")))
	}

	result, err := e.Dispatch("leaf", "x")
	require.NoError(t, err)
	assert.True(t, result)
	assert.Equal(t, []string{
		"root-cap@root:CAPTURING",
		"mid-cap@mid:CAPTURING",
		"leaf-cap@leaf:AT_TARGET",
		"leaf-bub@leaf:AT_TARGET",
		"mid-bub@mid:BUBBLING",
		"root-bub@root:BUBBLING",
	}, log.strings())
	for _, f := range log.firings {
		assert.Equal(t, "leaf", f.target, "Target should never change during a dispatch")
	}
}

func TestEngine_AtTargetCaptureBeforeBubble(t *testing.T) {
	var log firingLog
	e := testEngine(t, nil, "A")
	require.NoError(t, e.Listen("A", "x", log.listener("bub")))
	require.NoError(t, e.Listen("A", "x", log.listener("cap"), Capture()))

	_, err := e.Dispatch("A", "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"cap@A:AT_TARGET", "bub@A:AT_TARGET"}, log.strings())
}

func TestEngine_StopAtTargetCaptureSkipsTargetBubble(t *testing.T) {
	var log firingLog
	e := testEngine(t, testTree{"A": "R"}, "R", "A")
	require.NoError(t, e.Listen("A", "x", log.listener("cap", stop), Capture()))
	require.NoError(t, e.Listen("A", "x", log.listener("bub")))
	require.NoError(t, e.Listen("R", "x", log.listener("parent")))

	result, err := e.Dispatch("A", "x")
	require.NoError(t, err)
	assert.False(t, result)
	assert.Equal(t, []string{"cap@A:AT_TARGET"}, log.strings())
}

func TestEngine_StopDuringBubble(t *testing.T) {
	var log firingLog
	tree := testTree{"mid": "root", "leaf": "mid"}
	e := testEngine(t, tree, "root", "mid", "leaf")
	require.NoError(t, e.Listen("mid", "x", log.listener("first", stop)))
	require.NoError(t, e.Listen("mid", "x", log.listener("second")))
	require.NoError(t, e.Listen("root", "x", log.listener("root")))

	result, err := e.Dispatch("leaf", "x")
	require.NoError(t, err)
	assert.False(t, result)
	assert.Equal(t, []string{"first@mid:BUBBLING"}, log.strings(), "Stop should also skip the rest of the current bucket")
}

func TestEngine_PreventDefaultKeepsResult(t *testing.T) {
	var seen *Event[string]
	e := testEngine(t, nil, "A")
	require.NoError(t, e.Listen("A", "x", Func(func(evt *Event[string]) {
		evt.PreventDefault()
		seen = evt
	})))

	result, err := e.Dispatch("A", "x")
	require.NoError(t, err)
	assert.True(t, result)
	assert.True(t, seen.DefaultPrevented())
	assert.False(t, seen.PropagationStopped())
}

func TestEngine_PassiveOnlyGatesItsOwnInvocation(t *testing.T) {
	var seen *Event[string]
	e := testEngine(t, nil, "A")
	require.NoError(t, e.Listen("A", "x", Func(func(evt *Event[string]) {
		evt.PreventDefault()
		evt.StopPropagation()
	}), Passive()))
	require.NoError(t, e.Listen("A", "x", Func(func(evt *Event[string]) {
		evt.PreventDefault()
		seen = evt
	})))
	late := false
	require.NoError(t, e.Listen("A", "x", Func(func(evt *Event[string]) {
		evt.StopPropagation()
	})))
	require.NoError(t, e.Listen("A", "x", Func(func(evt *Event[string]) {
		late = true
	})))

	result, err := e.Dispatch("A", "x")
	require.NoError(t, err)
	assert.False(t, result)
	assert.True(t, seen.DefaultPrevented(), "Non-passive listener after a passive one should be able to prevent")
	assert.False(t, late, "Listener after stop should not run")
}

func TestEngine_ListenDedup(t *testing.T) {
	var log firingLog
	e := testEngine(t, nil, "A")
	cb := log.listener("cb")
	require.NoError(t, e.Listen("A", "x", cb))
	require.NoError(t, e.Listen("A", "x", cb, Passive(), Once()))
	assert.Equal(t, 1, e.Listeners("A", "x"), "Re-listen should update in place")

	reg, _ := e.Registry("A")
	entries := reg.Entries("x")
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Passive())
	assert.True(t, entries[0].Once())
	assert.False(t, entries[0].Capture())
	assert.Equal(t, Listener[string](cb), entries[0].Listener())

	require.NoError(t, e.Listen("A", "x", cb, Capture()))
	assert.Equal(t, 2, e.Listeners("A", "x"), "Capture registration is a separate entry")
}

func TestEngine_ListenKeepsRegistrationOrder(t *testing.T) {
	var log firingLog
	e := testEngine(t, nil, "A")
	a, b, c := log.listener("a"), log.listener("b"), log.listener("c")
	require.NoError(t, e.Listen("A", "x", a))
	require.NoError(t, e.Listen("A", "x", b, Capture()))
	require.NoError(t, e.Listen("A", "x", c, Passive()))
	require.NoError(t, e.Listen("A", "x", a, Once()))

	reg, _ := e.Registry("A")
	entries := reg.Entries("x")
	require.Len(t, entries, 3)
	assert.Equal(t, Listener[string](a), entries[0].Listener(), "Update should not move the entry")
	assert.Equal(t, Listener[string](b), entries[1].Listener())
	assert.Equal(t, Listener[string](c), entries[2].Listener())
}

func TestEngine_Unlisten(t *testing.T) {
	var log firingLog
	e := testEngine(t, nil, "A")
	cb := log.listener("cb")
	other := log.listener("other")

	assert.NoError(t, e.Unlisten("A", "x", cb), "Unlisten without a bucket is a no-op")
	require.NoError(t, e.Listen("A", "x", cb))
	assert.NoError(t, e.Unlisten("A", "x", other), "Unlisten of an unknown listener is a no-op")
	assert.NoError(t, e.Unlisten("A", "x", cb, Capture()), "Capture mode must match")
	assert.Equal(t, 1, e.Listeners("A", "x"))

	assert.NoError(t, e.Unlisten("A", "x", cb, Passive()), "Passive is ignored when matching")
	assert.Equal(t, 0, e.Listeners("A", "x"))
	reg, _ := e.Registry("A")
	assert.Empty(t, reg.Types())

	_, err := e.Dispatch("A", "x")
	require.NoError(t, err)
	assert.Empty(t, log.firings)
}

func TestEngine_UnlistenDuringDispatch(t *testing.T) {
	var log firingLog
	e := testEngine(t, nil, "A")
	var (
		first, second, third *FuncListener[string]
	)
	second = log.listener("second")
	third = log.listener("third")
	first = log.listener("first", func(evt *Event[string]) {
		assert.NoError(t, e.Unlisten("A", "x", first))
		assert.NoError(t, e.Unlisten("A", "x", second))
	})
	require.NoError(t, e.Listen("A", "x", first))
	require.NoError(t, e.Listen("A", "x", second))
	require.NoError(t, e.Listen("A", "x", third))

	_, err := e.Dispatch("A", "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"first@A:AT_TARGET", "third@A:AT_TARGET"}, log.strings(),
		"Removed entries should be skipped, without skipping the entry after them")

	log.firings = nil
	_, err = e.Dispatch("A", "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"third@A:AT_TARGET"}, log.strings())
}

func TestEngine_OnceDoesNotSkipNext(t *testing.T) {
	var log firingLog
	e := testEngine(t, nil, "A")
	require.NoError(t, e.Listen("A", "x", log.listener("a"), Once()))
	require.NoError(t, e.Listen("A", "x", log.listener("b"), Once()))
	require.NoError(t, e.Listen("A", "x", log.listener("c")))

	_, err := e.Dispatch("A", "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"a@A:AT_TARGET", "b@A:AT_TARGET", "c@A:AT_TARGET"}, log.strings())
	assert.Equal(t, 1, e.Listeners("A", "x"))
}

func TestEngine_OnceRecursiveDispatch(t *testing.T) {
	var (
		e     = testEngine(t, nil, "A")
		calls int
	)
	require.NoError(t, e.Listen("A", "x", Func(func(evt *Event[string]) {
		calls++
		_, err := e.Dispatch("A", "x")
		assert.NoError(t, err)
	}), Once()))

	_, err := e.Dispatch("A", "x")
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "A once listener must not fire again from a nested dispatch")
}

func TestEngine_OnceRelistenDuringInvocation(t *testing.T) {
	var (
		e       = testEngine(t, nil, "A")
		visible int
		self    *FuncListener[string]
	)
	self = Func(func(evt *Event[string]) {
		visible = e.Listeners("A", "x")
		assert.NoError(t, e.Listen("A", "x", self, Once()))
	})
	require.NoError(t, e.Listen("A", "x", self, Once()))

	_, err := e.Dispatch("A", "x")
	require.NoError(t, err)
	assert.Equal(t, 1, visible, "A once listener is still registered while it runs")
	assert.Equal(t, 0, e.Listeners("A", "x"), "Re-listening updates the running entry, which is then removed")
}

func TestEngine_OnceRemovedAfterPanic(t *testing.T) {
	e := testEngine(t, nil, "A")
	require.NoError(t, e.Listen("A", "x", Func(func(evt *Event[string]) {
		panic("boom")
	}), Once()))
	assert.Panics(t, func() {
		_, _ = e.Dispatch("A", "x")
	})
	assert.Equal(t, 0, e.Listeners("A", "x"))
}

func TestEngine_ListenDuringDispatchWaitsForNextDispatch(t *testing.T) {
	var log firingLog
	e := testEngine(t, nil, "A")
	late := log.listener("late")
	require.NoError(t, e.Listen("A", "x", log.listener("adder", func(evt *Event[string]) {
		assert.NoError(t, e.Listen("A", "x", late))
	})))

	_, err := e.Dispatch("A", "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"adder@A:AT_TARGET"}, log.strings())

	log.firings = nil
	_, err = e.Dispatch("A", "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"adder@A:AT_TARGET", "late@A:AT_TARGET"}, log.strings())
}

func TestEngine_StopLatchAcrossPhases(t *testing.T) {
	var (
		log  firingLog
		seen []bool
	)
	tree := testTree{"A": "R"}
	e := testEngine(t, tree, "R", "A")
	require.NoError(t, e.Listen("R", "x", log.listener("stopper", stop), Capture()))
	require.NoError(t, e.Listen("R", "x", log.listener("capture-2", func(evt *Event[string]) {
		seen = append(seen, evt.PropagationStopped())
	}), Capture()))

	result, err := e.Dispatch("A", "x")
	require.NoError(t, err)
	assert.False(t, result)
	assert.Empty(t, seen, "Later capture listeners on the same object should not run")
	assert.Equal(t, []string{"stopper@R:CAPTURING"}, log.strings())
}

func TestEngine_RegistryMissing(t *testing.T) {
	rec := slogx.NewRecorder(slog.LevelError)
	e := New(testTree{"A": "R"}.ancestors, WithLogger(slog.New(rec)))
	cb := Func(func(evt *Event[string]) {})

	assert.ErrorIs(t, e.Listen("A", "x", cb), ErrRegistryMissing)
	assert.ErrorIs(t, e.Unlisten("A", "x", cb), ErrRegistryMissing)

	e.Construct("A")
	require.NoError(t, e.Listen("A", "x", cb))
	result, err := e.Dispatch("A", "x")
	assert.ErrorIs(t, err, ErrRegistryMissing, "Ancestor R was never constructed")
	assert.False(t, result)

	assert.Len(t, rec.Find("Object has no registry"), 3)
}

func TestEngine_Destruct(t *testing.T) {
	var log firingLog
	e := testEngine(t, nil, "A")
	cb := log.listener("cb")
	require.NoError(t, e.Listen("A", "x", cb))
	reg, _ := e.Registry("A")
	snapshot := reg.snapshot("x")

	e.Destruct("A")
	assert.False(t, e.Constructed("A"))
	assert.True(t, snapshot[0].removed, "Destruct should tombstone live entries")
	assert.ErrorIs(t, e.Listen("A", "x", cb), ErrRegistryMissing)
	_, err := e.Dispatch("A", "x")
	assert.ErrorIs(t, err, ErrRegistryMissing)
	assert.Equal(t, 0, e.Listeners("A", "x"))
	assert.NotPanics(t, func() {
		e.Destruct("A")
	})
}

func TestEngine_ConstructTwiceKeepsListeners(t *testing.T) {
	rec := slogx.NewRecorder(slog.LevelError)
	e := New[string](nil, WithLogger(slog.New(rec)))
	e.Construct("A")
	require.NoError(t, e.Listen("A", "x", Func(func(evt *Event[string]) {})))
	e.Construct("A")
	assert.Equal(t, 1, e.Listeners("A", "x"))
	assert.Len(t, rec.Records(), 1)
}

func TestEngine_NilAndIncomparableListeners(t *testing.T) {
	e := testEngine(t, nil, "A")
	assert.NoError(t, e.Listen("A", "x", nil))
	var nilFunc *FuncListener[string]
	assert.NoError(t, e.Listen("A", "x", nilFunc))
	assert.Equal(t, 0, e.Listeners("A", "x"))

	assert.ErrorIs(t, e.Listen("A", "x", sliceListener{}), ErrIncomparableListener)
	assert.NoError(t, e.Unlisten("A", "x", sliceListener{}))
	assert.Equal(t, 0, e.Listeners("A", "x"))

	holder := anyListener{v: []int{1}}
	assert.ErrorIs(t, e.Listen("A", "x", holder), ErrIncomparableListener)
	assert.NotPanics(t, func() {
		assert.ErrorIs(t, e.Listen("A", "x", holder), ErrIncomparableListener)
		assert.NoError(t, e.Unlisten("A", "x", holder))
	})
	assert.Equal(t, 0, e.Listeners("A", "x"))

	assert.NoError(t, e.Listen("A", "x", anyListener{v: 1}), "A comparable value in an interface field is fine")
	assert.Equal(t, 1, e.Listeners("A", "x"))
}

type sliceListener []int

func (sliceListener) HandleEvent(*Event[string]) {}

type anyListener struct {
	v any
}

func (anyListener) HandleEvent(*Event[string]) {}

func TestEngine_ScopeAndTimestamp(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	e := New[string](nil, WithClock(func() time.Time {
		return now
	}))
	e.Construct("A")
	var (
		scope string
		ok    bool
		ts    time.Time
	)
	require.NoError(t, e.Listen("A", "x", Func(func(evt *Event[string]) {
		scope, ok = ScopeAs[string](evt)
		ts = evt.Timestamp()
		_, wrongType := ScopeAs[int](evt)
		assert.False(t, wrongType)
	})))
	_, err := e.DispatchScope("A", "x", "payload")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "payload", scope)
	assert.Equal(t, now, ts)
}

func TestEngine_CaptureStacks(t *testing.T) {
	e := New[string](nil, CaptureStacks())
	e.Construct("A")
	var stack string
	require.NoError(t, e.Listen("A", "x", Func(func(evt *Event[string]) {
		stack = evt.Stack()
	})))
	_, err := e.Dispatch("A", "x")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stack, "goroutine "), "Expected a full stack, got %q", stack)
}

func TestEngine_PanicPropagatesByDefault(t *testing.T) {
	e := testEngine(t, nil, "A")
	var seen *Event[string]
	require.NoError(t, e.Listen("A", "x", Func(func(evt *Event[string]) {
		seen = evt
		panic("boom")
	})))
	assert.PanicsWithValue(t, "boom", func() {
		_, _ = e.Dispatch("A", "x")
	})
	assert.Equal(t, PhaseNone, seen.Phase())
}

func TestEngine_PanicHandler(t *testing.T) {
	var (
		log       firingLog
		recovered []any
	)
	e := New[string](nil, WithPanicHandler(func(eventType string, r any) {
		assert.Equal(t, "x", eventType)
		recovered = append(recovered, r)
	}))
	e.Construct("A")
	require.NoError(t, e.Listen("A", "x", Func(func(evt *Event[string]) {
		panic("boom")
	})))
	require.NoError(t, e.Listen("A", "x", log.listener("after")))

	result, err := e.Dispatch("A", "x")
	require.NoError(t, err)
	assert.True(t, result)
	assert.Equal(t, []any{"boom"}, recovered)
	assert.Equal(t, []string{"after@A:AT_TARGET"}, log.strings())
}

func TestEngine_Logging(t *testing.T) {
	rec := slogx.NewRecorder(slogx.LevelTrace)
	e := New(testTree{"A": "R"}.ancestors, WithLogger(slog.New(rec)))
	e.Construct("R")
	e.Construct("A")
	cb := Func(func(evt *Event[string]) {})
	require.NoError(t, e.Listen("R", "x", cb, Capture()))
	require.NoError(t, e.Listen("R", "x", cb, Capture(), Passive()))
	_, err := e.Dispatch("A", "x")
	require.NoError(t, err)
	require.NoError(t, e.Unlisten("R", "x", cb, Capture()))
	e.Destruct("A")

	assert.Equal(t, []string{
		"Created registry",
		"Created registry",
		"Added listener",
		"Updated listener",
		"Dispatch started",
		"Entered phase",
		"Invoking listener",
		"Listener returned",
		"Entered phase",
		"Entered phase",
		"Dispatch finished",
		"Removed listener",
		"Deleted registry",
	}, rec.Messages())

	started := rec.Find("Dispatch started")[0]
	assert.Equal(t, slogx.LevelCheckpoint, started.Level)
	assert.Equal(t, "x", started.Attr("type"))
	assert.Equal(t, "A", started.Attr("target"))
	assert.Equal(t, "1", started.Attr("ancestors"))

	phases := rec.Find("Entered phase")
	assert.Equal(t, "CAPTURING", phases[0].Attr("phase"))
	assert.Equal(t, "R", phases[0].Attr("current"))
	assert.Equal(t, "AT_TARGET", phases[1].Attr("phase"))
	assert.Equal(t, "BUBBLING", phases[2].Attr("phase"))

	invoked := rec.Find("Invoking listener")[0]
	assert.Equal(t, "true", invoked.Attr("passive"))
	assert.Equal(t, "true", rec.Find("Dispatch finished")[0].Attr("result"))
}

func TestEngine_ConcurrentUse(t *testing.T) {
	tree := testTree{"A": "R"}
	e := testEngine(t, tree, "R", "A")
	var (
		wg    sync.WaitGroup
		mux   sync.Mutex
		count int
	)
	cb := Func(func(evt *Event[string]) {
		mux.Lock()
		defer mux.Unlock()
		count++
	})
	require.NoError(t, e.Listen("R", "x", cb))
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := e.Dispatch("A", "x")
			assert.NoError(t, err)
		}()
		go func(i int) {
			defer wg.Done()
			l := Func(func(evt *Event[string]) {})
			assert.NoError(t, e.Listen("A", fmt.Sprintf("t%d", i), l))
			assert.NoError(t, e.Unlisten("A", fmt.Sprintf("t%d", i), l))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, count)
}
