// Package scenario runs scripted sequences of listen, unlisten, dispatch, and remove operations against an event.Engine, checking expectations along the way.
// Scenarios are written in YAML, so behavior can be explored and pinned down without writing Go.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/saylorsolutions/propagate/assert"
	"github.com/saylorsolutions/propagate/event"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidScenario = errors.New("invalid scenario")
	ErrExpectation     = errors.New("expectation failed")
)

// Scenario is a tree of nodes, a set of named listeners, and the steps to run against them.
type Scenario struct {
	Name      string     `yaml:"name"`
	Nodes     []*Node    `yaml:"nodes"`
	Listeners []Listener `yaml:"listeners,omitempty"`
	Steps     []Step     `yaml:"steps"`
}

// Node is an object in the hierarchy, identified by ID.
type Node struct {
	ID       string  `yaml:"id"`
	Children []*Node `yaml:"children,omitempty"`
}

// Action is something a [Listener] does when it's invoked.
type Action string

const (
	ActionStop         Action = "stop"          // ActionStop calls StopPropagation.
	ActionPrevent      Action = "prevent"       // ActionPrevent calls PreventDefault.
	ActionUnlistenSelf Action = "unlisten-self" // ActionUnlistenSelf removes the listener's capture and bubble registrations for the event type on the current node.
	ActionRecordScope  Action = "record-scope"  // ActionRecordScope records the event scope in the step result.
)

var knownActions = map[Action]bool{
	ActionStop:         true,
	ActionPrevent:      true,
	ActionUnlistenSelf: true,
	ActionRecordScope:  true,
}

// Listener is a named listener identity.
// Every registration using the same name uses the same identity, so registering it twice on the same node, type, and capture mode updates the existing registration.
type Listener struct {
	Name    string   `yaml:"name"`
	Actions []Action `yaml:"actions,omitempty"`
}

// Step is a single operation, with optional expectations about its outcome.
// Exactly one of Listen, Unlisten, Dispatch, or Remove must be set.
type Step struct {
	Listen   *Registration `yaml:"listen,omitempty"`
	Unlisten *Registration `yaml:"unlisten,omitempty"`
	Dispatch *Dispatch     `yaml:"dispatch,omitempty"`
	Remove   *Removal      `yaml:"remove,omitempty"`
	Expect   *Expect       `yaml:"expect,omitempty"`
}

// Registration names a listener registration on a node.
type Registration struct {
	Node     string `yaml:"node"`
	Type     string `yaml:"type"`
	Listener string `yaml:"listener"`
	Capture  bool   `yaml:"capture,omitempty"`
	Passive  bool   `yaml:"passive,omitempty"`
	Once     bool   `yaml:"once,omitempty"`
}

func (r Registration) options() []event.ListenOption {
	var opts []event.ListenOption
	if r.Capture {
		opts = append(opts, event.Capture())
	}
	if r.Passive {
		opts = append(opts, event.Passive())
	}
	if r.Once {
		opts = append(opts, event.Once())
	}
	return opts
}

func (r Registration) describe(op string) string {
	var flags []string
	if r.Capture {
		flags = append(flags, "capture")
	}
	if r.Passive {
		flags = append(flags, "passive")
	}
	if r.Once {
		flags = append(flags, "once")
	}
	desc := fmt.Sprintf("%s %s on %s for '%s'", op, r.Listener, r.Node, r.Type)
	if len(flags) > 0 {
		desc += " (" + strings.Join(flags, ", ") + ")"
	}
	return desc
}

// Dispatch sends an event to a node, with an optional scope.
type Dispatch struct {
	Node  string `yaml:"node"`
	Type  string `yaml:"type"`
	Scope any    `yaml:"scope,omitempty"`
}

// Removal removes a node and its descendants from the hierarchy.
type Removal struct {
	Node string `yaml:"node"`
}

// Error codes used by [Expect.Error] and [StepResult.Error].
const (
	CodeRegistryMissing = "registry-missing"
	CodeNodeNotFound    = "node-not-found"
)

// Expect describes the expected outcome of a [Step].
// Unset fields aren't checked.
type Expect struct {
	// Result is the expected return value of a dispatch.
	Result *bool `yaml:"result,omitempty"`
	// Prevented is whether the dispatched event should end up with its default prevented.
	Prevented *bool `yaml:"prevented,omitempty"`
	// Fired lists the expected invocations in order, formatted as "listener@node:PHASE".
	Fired []string `yaml:"fired,omitempty"`
	// NoneFired expects a dispatch to invoke nothing.
	NoneFired bool `yaml:"none-fired,omitempty"`
	// Scopes lists the scopes recorded by listeners with the record-scope action.
	Scopes []string `yaml:"scopes,omitempty"`
	// Listeners maps "node:type" to the expected number of registrations after the step.
	Listeners map[string]int `yaml:"listeners,omitempty"`
	// Error is the expected error code of the step.
	Error string `yaml:"error,omitempty"`
}

// Parse decodes and validates a [Scenario].
// Unknown fields are rejected, since they're most likely typos.
func Parse(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Scenario
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidScenario)
		}
		return nil, fmt.Errorf("%w: yaml unmarshal: %w", ErrInvalidScenario, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads and parses a scenario file.
// If the scenario doesn't have a name, then the file name is used.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(s.Name) == 0 {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return s, nil
}

// Validate reports every structural problem with the [Scenario] in one error wrapping [ErrInvalidScenario].
func (s *Scenario) Validate() error {
	errs := assert.CollectErrors("; ")
	nodes := map[string]bool{}
	var walk func(n *Node, path string)
	walk = func(n *Node, path string) {
		if n == nil {
			errs.AddString("nil node under '%s'", path)
			return
		}
		errs.Check(len(n.ID) > 0, "node under '%s' has no id", path)
		if len(n.ID) > 0 {
			errs.Check(!nodes[n.ID], "duplicate node id '%s'", n.ID)
			nodes[n.ID] = true
		}
		for _, child := range n.Children {
			walk(child, n.ID)
		}
	}
	for _, n := range s.Nodes {
		walk(n, "")
	}
	errs.Check(len(nodes) > 0, "no nodes declared")

	listeners := map[string]bool{}
	for i, l := range s.Listeners {
		errs.Check(len(l.Name) > 0, "listener %d has no name", i)
		errs.Check(!listeners[l.Name], "duplicate listener name '%s'", l.Name)
		listeners[l.Name] = true
		for _, a := range l.Actions {
			errs.Check(knownActions[a], "listener '%s' has unknown action '%s'", l.Name, a)
		}
	}

	for i, step := range s.Steps {
		s.validateStep(errs, i, step, nodes, listeners)
	}
	if err := errs.Result(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}
	return nil
}

func (s *Scenario) validateStep(errs *assert.Collector, i int, step Step, nodes, listeners map[string]bool) {
	ops := 0
	checkReg := func(op string, reg *Registration) {
		if reg == nil {
			return
		}
		ops++
		errs.Check(nodes[reg.Node], "step %d: %s references unknown node '%s'", i, op, reg.Node)
		errs.Check(listeners[reg.Listener], "step %d: %s references unknown listener '%s'", i, op, reg.Listener)
		errs.Check(len(reg.Type) > 0, "step %d: %s has no event type", i, op)
	}
	checkReg("listen", step.Listen)
	checkReg("unlisten", step.Unlisten)
	if step.Dispatch != nil {
		ops++
		errs.Check(nodes[step.Dispatch.Node], "step %d: dispatch references unknown node '%s'", i, step.Dispatch.Node)
		errs.Check(len(step.Dispatch.Type) > 0, "step %d: dispatch has no event type", i)
	}
	if step.Remove != nil {
		ops++
		errs.Check(nodes[step.Remove.Node], "step %d: remove references unknown node '%s'", i, step.Remove.Node)
	}
	errs.Check(ops == 1, "step %d: expected exactly one operation, found %d", i, ops)

	exp := step.Expect
	if exp == nil {
		return
	}
	if step.Dispatch == nil {
		noDispatch := exp.Result == nil && exp.Prevented == nil && len(exp.Fired) == 0 && !exp.NoneFired && len(exp.Scopes) == 0
		errs.Check(noDispatch, "step %d: dispatch expectations on a step that doesn't dispatch", i)
	}
	errs.Check(!(exp.NoneFired && len(exp.Fired) > 0), "step %d: none-fired conflicts with fired", i)
	for _, f := range exp.Fired {
		if _, _, _, err := parseFiring(f); err != nil {
			errs.Add(fmt.Errorf("step %d: %w", i, err))
		}
	}
	for key := range exp.Listeners {
		node, typ, found := strings.Cut(key, ":")
		errs.Check(found && len(typ) > 0, "step %d: listener count key '%s' should be 'node:type'", i, key)
		errs.Check(!found || nodes[node], "step %d: listener count references unknown node '%s'", i, node)
	}
	switch exp.Error {
	case "", CodeRegistryMissing, CodeNodeNotFound:
	default:
		errs.AddString("step %d: unknown error code '%s'", i, exp.Error)
	}
}

func formatFiring(listener, node string, phase event.Phase) string {
	return fmt.Sprintf("%s@%s:%s", listener, node, phase)
}

func parseFiring(s string) (listener, node string, phase event.Phase, err error) {
	listener, rest, found := strings.Cut(s, "@")
	if !found || len(listener) == 0 {
		return "", "", event.PhaseNone, fmt.Errorf("firing '%s' should be 'listener@node:PHASE'", s)
	}
	node, phaseName, found := strings.Cut(rest, ":")
	if !found || len(node) == 0 {
		return "", "", event.PhaseNone, fmt.Errorf("firing '%s' should be 'listener@node:PHASE'", s)
	}
	phase, err = event.ParsePhase(phaseName)
	if err != nil {
		return "", "", event.PhaseNone, fmt.Errorf("firing '%s': %w", s, err)
	}
	return listener, node, phase, nil
}
