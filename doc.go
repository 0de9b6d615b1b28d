/*
Package propagate is the root of an in-process event propagation library.
Events are dispatched through a capture, at-target, and bubble pipeline across a hierarchy of objects, following the rules most people know from the DOM.

The interesting parts live in sub-packages:
  - event holds the listener registry and the dispatch algorithm.
  - hierarchy is a simple ownership tree that can feed ancestor chains and lifecycle hooks to an event.Engine.
  - scenario runs YAML scripted listen/dispatch sequences, which is how I check behavior without writing Go.

The propagate command in cmd/propagate wraps the scenario runner.
*/
package propagate
