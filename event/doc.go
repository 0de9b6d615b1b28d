/*
Package event dispatches typed events through a hierarchy of objects, in the same capture, at-target, and bubble order as DOM events.

# Objects and Registries

An object is any comparable value N that the [Engine] has been told about with [Engine.Construct].
Each constructed object gets its own [Registry] mapping event types to listeners, which is discarded again by [Engine.Destruct].
Using an object outside that window results in an error wrapping [ErrRegistryMissing].
The hierarchy package provides a tree that calls these hooks as nodes are added and removed.

The [Engine] doesn't know how objects relate to each other.
That's the job of the [AncestorFunc] given to [New], which returns an object's owners from the nearest parent up to the root.

# Listening

A [Listener] is registered for an event type with [Engine.Listen], and a few options:
  - [Capture] registers for the capturing phase instead of the bubbling phase.
  - [Passive] suppresses [Event.PreventDefault] and [Event.StopPropagation] while that listener runs.
  - [Once] removes the listener the first time it's invoked.

A listener is identified by the listener value itself and its capture mode.
Registering the same pair again only updates the passive and once settings.
Plain functions can't be compared in Go, so use [Func] to get a handle for them.

# Dispatching

[Engine.Dispatch] and [Engine.DispatchScope] run synchronously, and every listener is finished by the time they return.
For a target with ancestors root -> parent -> target, the visiting order is:
  - root, then parent, running capture listeners (CAPTURING).
  - target, running capture listeners and then bubble listeners (AT_TARGET).
  - parent, then root, running bubble listeners (BUBBLING).

Listeners on one object run in registration order.
Calling [Event.StopPropagation] keeps every listener that hasn't run yet from running, and makes the dispatch return false.
[Event.PreventDefault] is recorded on the [Event], but doesn't change the result.

Listeners may listen, unlisten, and dispatch from within a callback.
A listener added to an object while that object is being visited waits for the next dispatch, and a listener removed before its turn is skipped.
*/
package event
