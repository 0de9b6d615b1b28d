package event

// dispatchContext is the traversal state shared by every phase and every listener invocation of one dispatch.
type dispatchContext[N comparable] struct {
	phase   Phase
	target  N
	handler N
	passive bool
	stopped bool
}

func newDispatchContext[N comparable](target N) *dispatchContext[N] {
	return &dispatchContext[N]{
		phase:   PhaseNone,
		target:  target,
		handler: target,
	}
}

// align switches the passive mode to match the listener about to run.
func (c *dispatchContext[N]) align(passive bool) {
	if c.passive != passive {
		c.passive = passive
	}
}

// visit moves the traversal to handler in the given phase.
func (c *dispatchContext[N]) visit(phase Phase, handler N) {
	c.phase = phase
	c.handler = handler
}

func (c *dispatchContext[N]) stop() {
	if c.passive {
		return
	}
	c.stopped = true
}
