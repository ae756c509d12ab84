package traced

// Controller bundles an attribute handle with its graph for callers that
// prefer method calls over the package-level functions.
type Controller[T any] struct {
	attr  *Attribute[T]
	graph *Graph
}

// Accessor creates a controller for an attribute. The attribute must belong
// to g; controllers never bridge graphs.
func Accessor[T any](g *Graph, attr *Attribute[T]) *Controller[T] {
	mustOwn(g, attr)

	return &Controller[T]{
		attr:  attr,
		graph: g,
	}
}

// Get returns the attribute's current value, recomputing if stale.
func (c *Controller[T]) Get() (T, error) {
	return Resolve(c.graph, c.attr)
}

// Peek returns the last committed value without evaluating anything. The
// value may be stale; the second result is false if the attribute has never
// held a value.
func (c *Controller[T]) Peek() (T, bool) {
	c.graph.mu.Lock()
	defer c.graph.mu.Unlock()

	n := c.graph.node(c.attr.id)
	if !n.hasValue {
		var zero T
		return zero, false
	}
	val, err := SafeTypeAssertion[T](n.value)
	if err != nil {
		var zero T
		return zero, false
	}
	return val, true
}

// Update writes a new value and invalidates dependents. Sources only.
func (c *Controller[T]) Update(newVal T) error {
	return Update(c.graph, c.attr, newVal)
}

// Set is an alias for Update
func (c *Controller[T]) Set(newVal T) error {
	return c.Update(newVal)
}

// Override pins a derived attribute to a value until ClearOverride.
func (c *Controller[T]) Override(newVal T) error {
	return Override(c.graph, c.attr, newVal)
}

// ClearOverride unpins the attribute so the next read recomputes it.
func (c *Controller[T]) ClearOverride() error {
	return ClearOverride(c.graph, c.attr)
}

// Invalidate force-marks the attribute stale. The next read recomputes it.
func (c *Controller[T]) Invalidate() error {
	return Invalidate(c.graph, c.attr)
}

// Subscribe registers a change callback; the returned function unsubscribes.
func (c *Controller[T]) Subscribe(fn func(newVal, oldVal T)) func() {
	return Subscribe(c.graph, c.attr, fn)
}

// IsStale reports whether the attribute needs recomputation before its value
// can be trusted. Sources are never stale.
func (c *Controller[T]) IsStale() bool {
	c.graph.mu.Lock()
	defer c.graph.mu.Unlock()
	return c.graph.node(c.attr.id).state != stateClean
}

// IsOverridden reports whether the attribute is pinned to an override value.
func (c *Controller[T]) IsOverridden() bool {
	c.graph.mu.Lock()
	defer c.graph.mu.Unlock()
	return c.graph.node(c.attr.id).overridden
}

// Version returns the attribute's monotonic version counter. It moves on
// every successful recomputation and on every effective write or override.
func (c *Controller[T]) Version() uint64 {
	c.graph.mu.Lock()
	defer c.graph.mu.Unlock()
	return c.graph.node(c.attr.id).version
}
