package traced

import "fmt"

// Update writes a new value to a source attribute, bumps its version and
// marks every transitive dependent stale. Nothing is recomputed here; the
// stale marking is a promise discharged by the next read. Writing a derived
// attribute fails; writes from inside a compute function fail.
//
// With WithCompareOnWrite, writing a value equal to the current one is a
// complete no-op.
func Update[T any](g *Graph, attr *Attribute[T], value T) error {
	if attr.graph != g {
		return &InvalidOperationError{
			AttributeID: attr.id,
			Reason:      "attribute belongs to a different graph",
		}
	}

	if err := g.checkReentrancy(attr.id, "written"); err != nil {
		return err
	}

	op := &Operation{Kind: OpWrite, AttributeID: attr.id, Graph: g}
	_, err := g.runWrapped(op, func() (any, error) {
		g.mu.Lock()
		err := g.writeSource(attr.id, value)
		notes := g.takePending()
		g.mu.Unlock()

		g.deliver(notes)
		return nil, err
	})
	return err
}

// writeSource assigns a source's value and walks its dependents. Caller
// holds g.mu, so the write and the full invalidation fan-out are atomic with
// respect to readers.
func (g *Graph) writeSource(id string, value any) error {
	n := g.node(id)
	if n.kind != KindSource {
		return &InvalidOperationError{
			AttributeID: id,
			Reason:      "write target is a derived attribute; use Override to pin it",
		}
	}

	if n.compareOnWrite && n.hasValue && n.equal(value, n.value) {
		return nil
	}

	old, hadValue := n.value, n.hasValue
	n.value = value
	n.hasValue = true
	n.version++
	n.state = stateClean
	g.stats.Writes++

	g.invalidateDependents(n.id)

	if !hadValue {
		g.queueNotification(n, value, nil)
	} else if !n.equal(value, old) {
		g.queueNotification(n, value, old)
	}

	return nil
}

// invalidateDependents walks the reverse edges from a changed node, marking
// reachable derived nodes stale. The walk stops at nodes already stale (a
// stale node cannot make its dependents more stale) and at overridden nodes
// (a pinned value never changes, so nothing past it needs re-verifying).
// Value and version are untouched; those only move on actual recomputation.
func (g *Graph) invalidateDependents(id string) {
	stack := append(make([]string, 0, 32), g.dependents[id]...)

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := g.node(cur)
		if n == nil || n.kind == KindSource {
			continue
		}
		if n.overridden || n.state == stateStale {
			continue
		}

		n.state = stateStale
		g.stats.Invalidations++
		stack = append(stack, g.dependents[cur]...)
	}
}

// Override pins a derived attribute to a caller-supplied value. The node
// becomes clean, its version bumps, and dependents are invalidated exactly as
// for a source write. While pinned, the compute function never runs and
// upstream invalidation stops at this node.
func Override[T any](g *Graph, attr *Attribute[T], value T) error {
	if attr.graph != g {
		return &InvalidOperationError{
			AttributeID: attr.id,
			Reason:      "attribute belongs to a different graph",
		}
	}

	if err := g.checkReentrancy(attr.id, "overridden"); err != nil {
		return err
	}

	op := &Operation{Kind: OpOverride, AttributeID: attr.id, Graph: g}
	_, err := g.runWrapped(op, func() (any, error) {
		g.mu.Lock()
		err := g.overrideNode(attr.id, value)
		notes := g.takePending()
		g.mu.Unlock()

		g.deliver(notes)
		return nil, err
	})
	return err
}

func (g *Graph) overrideNode(id string, value any) error {
	n := g.node(id)
	if n.kind != KindDerived {
		return &InvalidOperationError{
			AttributeID: id,
			Reason:      "override target is a source attribute; use Update",
		}
	}

	if n.compareOnWrite && n.overridden && n.equal(value, n.value) {
		return nil
	}

	old, hadValue := n.value, n.hasValue
	n.value = value
	n.hasValue = true
	n.version++
	n.overridden = true
	n.forced = false
	n.state = stateClean
	g.stats.Writes++

	g.invalidateDependents(n.id)

	if !hadValue {
		g.queueNotification(n, value, nil)
	} else if !n.equal(value, old) {
		g.queueNotification(n, value, old)
	}

	return nil
}

// ClearOverride unpins a previously overridden derived attribute. The node is
// forced stale, so the next read recomputes it even if dependency versions
// look unchanged, and dependents are invalidated. Clearing issues no
// notification; the pinned value may coincide with what recomputation yields.
// Clearing an attribute that is not overridden does nothing.
func ClearOverride[T any](g *Graph, attr *Attribute[T]) error {
	if attr.graph != g {
		return &InvalidOperationError{
			AttributeID: attr.id,
			Reason:      "attribute belongs to a different graph",
		}
	}

	if err := g.checkReentrancy(attr.id, "un-overridden"); err != nil {
		return err
	}

	op := &Operation{Kind: OpOverride, AttributeID: attr.id, Graph: g}
	_, err := g.runWrapped(op, func() (any, error) {
		g.mu.Lock()
		defer g.mu.Unlock()
		return nil, g.clearOverrideNode(attr.id)
	})
	return err
}

func (g *Graph) clearOverrideNode(id string) error {
	n := g.node(id)
	if n.kind != KindDerived {
		return &InvalidOperationError{
			AttributeID: id,
			Reason:      "override target is a source attribute; use Update",
		}
	}
	if !n.overridden {
		return nil
	}

	n.overridden = false
	n.state = stateStale
	n.forced = true
	g.invalidateDependents(n.id)

	return nil
}

// Invalidate force-marks a derived attribute stale, bypassing the
// dependency-version cutoff on its next read, and invalidates its dependents.
// Invalidating an already stale attribute changes nothing. Sources cannot be
// invalidated; they are never recomputed.
func Invalidate[T any](g *Graph, attr *Attribute[T]) error {
	if attr.graph != g {
		return &InvalidOperationError{
			AttributeID: attr.id,
			Reason:      "attribute belongs to a different graph",
		}
	}

	if err := g.checkReentrancy(attr.id, "invalidated"); err != nil {
		return err
	}

	op := &Operation{Kind: OpInvalidate, AttributeID: attr.id, Graph: g}
	_, err := g.runWrapped(op, func() (any, error) {
		g.mu.Lock()
		defer g.mu.Unlock()
		return nil, g.invalidateNode(attr.id)
	})
	return err
}

func (g *Graph) invalidateNode(id string) error {
	n := g.node(id)
	if n.kind != KindDerived {
		return &InvalidOperationError{
			AttributeID: id,
			Reason:      "source attributes are never recomputed and cannot be invalidated",
		}
	}
	if n.overridden {
		return &InvalidOperationError{
			AttributeID: id,
			Reason:      "attribute is overridden; clear the override first",
		}
	}

	n.forced = true
	if n.state == stateClean {
		n.state = stateStale
		g.stats.Invalidations++
	}
	g.invalidateDependents(n.id)

	return nil
}

// checkReentrancy rejects graph mutations issued from inside a compute
// function. The check runs before the graph lock is taken: the evaluating
// goroutine already holds the lock, so letting it proceed would deadlock
// rather than fail. Other goroutines pass and simply block until the
// evaluation finishes.
func (g *Graph) checkReentrancy(id, verb string) error {
	if gid := g.evalGID.Load(); gid != 0 && gid == goroutineID() {
		return &InvalidOperationError{
			AttributeID: id,
			Reason:      fmt.Sprintf("attribute cannot be %s from inside a compute function", verb),
		}
	}
	return nil
}
