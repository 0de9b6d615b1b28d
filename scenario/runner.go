package scenario

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/saylorsolutions/propagate/assert"
	"github.com/saylorsolutions/propagate/event"
	"github.com/saylorsolutions/propagate/hierarchy"
	"github.com/saylorsolutions/propagate/slogx"
	"gopkg.in/yaml.v3"
)

// RunOption configures [Run].
type RunOption func(conf *runConf)

type runConf struct {
	log *slog.Logger
}

// WithLogger passes a logger to the engine and tree used by [Run].
func WithLogger(log *slog.Logger) RunOption {
	return func(conf *runConf) {
		if log != nil {
			conf.log = log
		}
	}
}

// StepResult is the observed outcome of a [Step].
type StepResult struct {
	Index     int      `yaml:"index"`
	Op        string   `yaml:"op"`
	Result    *bool    `yaml:"result,omitempty"`
	Prevented *bool    `yaml:"prevented,omitempty"`
	Fired     []string `yaml:"fired,omitempty"`
	Scopes    []string `yaml:"scopes,omitempty"`
	Error     string   `yaml:"error,omitempty"`
	Failures  []string `yaml:"failures,omitempty"`
}

// Report is the outcome of a whole [Scenario].
type Report struct {
	Name   string       `yaml:"name"`
	Passed bool         `yaml:"passed"`
	Steps  []StepResult `yaml:"steps"`
}

// Failures returns the number of failed expectations across all steps.
func (r *Report) Failures() int {
	var count int
	for _, step := range r.Steps {
		count += len(step.Failures)
	}
	return count
}

// YAML renders the [Report].
func (r *Report) YAML() ([]byte, error) {
	data, err := yaml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("yaml marshal: %w", err)
	}
	return data, nil
}

type runner struct {
	tree      *hierarchy.Tree[string]
	engine    *event.Engine[string]
	listeners map[string]*scriptListener

	current   *StepResult
	lastEvent *event.Event[string]
}

// scriptListener is the identity behind a named [Listener].
type scriptListener struct {
	name    string
	actions []Action
	run     *runner
}

func (l *scriptListener) HandleEvent(evt *event.Event[string]) {
	r := l.run
	r.lastEvent = evt
	if r.current != nil {
		r.current.Fired = append(r.current.Fired, formatFiring(l.name, evt.Current(), evt.Phase()))
	}
	for _, action := range l.actions {
		switch action {
		case ActionStop:
			evt.StopPropagation()
		case ActionPrevent:
			evt.PreventDefault()
		case ActionUnlistenSelf:
			// Both modes, since a listener running at the target can't tell which registration fired.
			_ = r.engine.Unlisten(evt.Current(), evt.Type(), l, event.Capture())
			_ = r.engine.Unlisten(evt.Current(), evt.Type(), l)
		case ActionRecordScope:
			if r.current != nil {
				r.current.Scopes = append(r.current.Scopes, fmt.Sprint(evt.Scope()))
			}
		}
	}
}

// Run validates and runs the [Scenario] against a fresh hierarchy and engine.
// Every step is run even when an earlier expectation fails.
// If any expectation failed, then the returned error wraps [ErrExpectation], and the [Report] is still returned.
func Run(s *Scenario, opts ...RunOption) (*Report, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	conf := runConf{log: slog.New(slogx.Discard())}
	for _, opt := range opts {
		if opt != nil {
			opt(&conf)
		}
	}

	tree := hierarchy.New[string](hierarchy.WithLogger(conf.log))
	r := &runner{
		tree:      tree,
		engine:    event.New(tree.Ancestors, event.WithLogger(conf.log)),
		listeners: map[string]*scriptListener{},
	}
	tree.Observe(r.engine)
	for _, n := range s.Nodes {
		if err := r.addNode("", n); err != nil {
			return nil, err
		}
	}
	for _, l := range s.Listeners {
		r.listeners[l.Name] = &scriptListener{
			name:    l.Name,
			actions: slices.Clone(l.Actions),
			run:     r,
		}
	}

	report := &Report{Name: s.Name}
	errs := assert.CollectErrors()
	for i, step := range s.Steps {
		result := r.runStep(i, step)
		for _, failure := range result.Failures {
			errs.AddString("step %d (%s): %s", i, result.Op, failure)
		}
		report.Steps = append(report.Steps, result)
	}
	report.Passed = errs.Len() == 0
	if err := errs.Result(); err != nil {
		return report, fmt.Errorf("%w: %w", ErrExpectation, err)
	}
	return report, nil
}

func (r *runner) addNode(parent string, n *Node) error {
	var err error
	if len(parent) == 0 {
		err = r.tree.AddRoot(n.ID)
	} else {
		err = r.tree.AddChild(parent, n.ID)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}
	for _, child := range n.Children {
		if err := r.addNode(n.ID, child); err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) runStep(i int, step Step) StepResult {
	result := StepResult{Index: i}
	r.current = &result
	r.lastEvent = nil
	defer func() {
		r.current = nil
	}()

	var err error
	switch {
	case step.Listen != nil:
		reg := step.Listen
		result.Op = reg.describe("listen")
		err = r.engine.Listen(reg.Node, reg.Type, r.listeners[reg.Listener], reg.options()...)
	case step.Unlisten != nil:
		reg := step.Unlisten
		result.Op = reg.describe("unlisten")
		err = r.engine.Unlisten(reg.Node, reg.Type, r.listeners[reg.Listener], reg.options()...)
	case step.Dispatch != nil:
		d := step.Dispatch
		result.Op = fmt.Sprintf("dispatch '%s' to %s", d.Type, d.Node)
		var ok bool
		ok, err = r.engine.DispatchScope(d.Node, d.Type, d.Scope)
		if err == nil {
			prevented := r.lastEvent != nil && r.lastEvent.DefaultPrevented()
			result.Result = &ok
			result.Prevented = &prevented
		}
	case step.Remove != nil:
		result.Op = fmt.Sprintf("remove %s", step.Remove.Node)
		err = r.tree.Remove(step.Remove.Node)
	}
	if err != nil {
		result.Error = errorCode(err)
	}
	r.check(&result, step)
	return result
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, event.ErrRegistryMissing):
		return CodeRegistryMissing
	case errors.Is(err, hierarchy.ErrNodeNotFound):
		return CodeNodeNotFound
	default:
		return err.Error()
	}
}

func (r *runner) check(result *StepResult, step Step) {
	exp := step.Expect
	if exp == nil {
		exp = new(Expect)
	}
	fail := func(format string, args ...any) {
		result.Failures = append(result.Failures, fmt.Sprintf(format, args...))
	}
	if result.Error != exp.Error {
		switch {
		case len(exp.Error) == 0:
			fail("unexpected error: %s", result.Error)
		case len(result.Error) == 0:
			fail("expected error '%s', but there was none", exp.Error)
		default:
			fail("expected error '%s', got '%s'", exp.Error, result.Error)
		}
	}
	if exp.Result != nil && (result.Result == nil || *result.Result != *exp.Result) {
		fail("expected result %t, got %s", *exp.Result, boolString(result.Result))
	}
	if exp.Prevented != nil && (result.Prevented == nil || *result.Prevented != *exp.Prevented) {
		fail("expected prevented %t, got %s", *exp.Prevented, boolString(result.Prevented))
	}
	if exp.NoneFired && len(result.Fired) > 0 {
		fail("expected no listeners to fire, got [%s]", strings.Join(result.Fired, ", "))
	}
	if len(exp.Fired) > 0 && !slices.Equal(exp.Fired, result.Fired) {
		fail("expected fired [%s], got [%s]", strings.Join(exp.Fired, ", "), strings.Join(result.Fired, ", "))
	}
	if len(exp.Scopes) > 0 && !slices.Equal(exp.Scopes, result.Scopes) {
		fail("expected scopes [%s], got [%s]", strings.Join(exp.Scopes, ", "), strings.Join(result.Scopes, ", "))
	}
	keys := make([]string, 0, len(exp.Listeners))
	for key := range exp.Listeners {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		node, typ, _ := strings.Cut(key, ":")
		if got := r.engine.Listeners(node, typ); got != exp.Listeners[key] {
			fail("expected %d listeners for '%s', got %d", exp.Listeners[key], key, got)
		}
	}
}

func boolString(b *bool) string {
	if b == nil {
		return "nothing"
	}
	return fmt.Sprintf("%t", *b)
}
