package traced

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
)

// EvalCtx is the read-capable context handed to a compute function. Every
// Read performed through it is recorded as a dependency of the attribute
// being computed. The context is only valid for the duration of that one
// compute invocation.
type EvalCtx struct {
	graph *Graph
	frame *evalFrame
}

// Graph returns the graph the evaluation is running on.
func (ctx *EvalCtx) Graph() *Graph {
	return ctx.graph
}

// evalFrame records the dependencies observed during one compute invocation.
// Frames nest: an inner attribute's recomputation gets its own frame, and the
// outer frame only records the inner attribute itself, never its
// sub-dependencies. Transitivity lives in the graph structure.
type evalFrame struct {
	node *node
	deps []string
}

func (f *evalFrame) record(id string) {
	f.deps = appendUnique(f.deps, id)
}

// Read returns an attribute's current value from inside a compute function,
// recomputing it first if it is stale, and records it as a dependency of the
// attribute being computed.
func Read[T any](ctx *EvalCtx, attr *Attribute[T]) (T, error) {
	var zero T
	if ctx.frame == nil || ctx.frame.node == nil {
		return zero, &InvalidOperationError{
			AttributeID: attr.id,
			Reason:      "evaluation context used outside its compute function",
		}
	}
	if attr.graph != ctx.graph {
		return zero, &InvalidOperationError{
			AttributeID: attr.id,
			Reason:      "attribute belongs to a different graph",
		}
	}

	g := ctx.graph
	n := g.node(attr.id)
	if err := g.readNode(n); err != nil {
		return zero, err
	}

	ctx.frame.record(n.id)
	return SafeTypeAssertion[T](n.value)
}

// Resolve returns an attribute's current value, recomputing anything stale on
// the path. The common case, a clean node, is a pure cache hit.
func Resolve[T any](g *Graph, attr *Attribute[T]) (T, error) {
	var zero T
	if attr.graph != g {
		return zero, &InvalidOperationError{
			AttributeID: attr.id,
			Reason:      "attribute belongs to a different graph",
		}
	}
	if gid := g.evalGID.Load(); gid != 0 && gid == goroutineID() {
		return zero, &InvalidOperationError{
			AttributeID: attr.id,
			Reason:      "Resolve called from inside a compute function; use Read with the evaluation context",
		}
	}

	op := &Operation{Kind: OpRead, AttributeID: attr.id, Graph: g}
	result, err := g.runWrapped(op, func() (any, error) {
		g.mu.Lock()
		n := g.node(attr.id)
		err := g.readNode(n)
		var val any
		if err == nil {
			val = n.value
		}
		notes := g.takePending()
		g.mu.Unlock()

		g.deliver(notes)
		if err != nil {
			return nil, err
		}
		return val, nil
	})
	if err != nil {
		return zero, err
	}
	return SafeTypeAssertion[T](result)
}

// readNode brings a node up to date. Caller holds g.mu.
func (g *Graph) readNode(n *node) error {
	g.stats.Reads++
	wasClean := n.kind == KindSource || n.state == stateClean
	if err := g.refresh(n); err != nil {
		return err
	}
	if wasClean {
		g.stats.CacheHits++
	}
	return nil
}

// refresh is the per-node state machine. Sources and clean nodes return
// immediately; a node already evaluating on this stack is a cycle; a stale
// node whose dependencies turn out unchanged is marked clean without
// recomputing; anything else recomputes.
func (g *Graph) refresh(n *node) error {
	if n.kind == KindSource || n.state == stateClean {
		return nil
	}
	if n.state == stateEvaluating {
		return g.cycleError(n)
	}

	if n.version > 0 && !n.forced && g.dependencyVersionsUnchanged(n) {
		n.state = stateClean
		return nil
	}

	return g.recompute(n)
}

// dependencyVersionsUnchanged reports whether every dependency recorded by
// the last computation, once brought up to date itself, still has the version
// observed back then. Staleness is a promise to re-verify, not proof of
// change; this is the cutoff that discharges the promise cheaply.
//
// Versions move on every successful recomputation and effective write, so a
// true result means no dependency has committed anything since this node last
// computed: the node was marked stale spuriously and its cached value still
// holds.
func (g *Graph) dependencyVersionsUnchanged(n *node) bool {
	for _, depID := range g.dependencies[n.id] {
		dep := g.node(depID)
		if dep == nil {
			return false
		}
		if err := g.refresh(dep); err != nil {
			return false
		}
		if dep.version != n.depVersions[depID] {
			return false
		}
	}
	return true
}

// recompute runs a derived node's compute function inside a fresh tracking
// frame and commits value, version and the re-traced dependency set on
// success. On failure nothing is committed and the node reverts to stale, so
// the next read retries cleanly.
func (g *Graph) recompute(n *node) error {
	n.state = stateEvaluating
	frame := &evalFrame{node: n, deps: make([]string, 0, 8)}
	g.evalStack = append(g.evalStack, frame)
	if len(g.evalStack) == 1 {
		g.evalGID.Store(goroutineID())
	}
	ctx := &EvalCtx{graph: g, frame: frame}

	value, err := g.invokeCompute(n, ctx)

	g.evalStack = g.evalStack[:len(g.evalStack)-1]
	if len(g.evalStack) == 0 {
		g.evalGID.Store(0)
	}
	frame.node = nil // invalidate any stashed EvalCtx

	if err != nil {
		n.state = stateStale
		g.stats.ComputeFailures++
		return err
	}

	g.setDependencies(n.id, frame.deps)
	snap := make(map[string]uint64, len(frame.deps))
	for _, depID := range frame.deps {
		snap[depID] = g.node(depID).version
	}
	n.depVersions = snap

	old, hadValue := n.value, n.hasValue
	n.value = value
	n.hasValue = true
	n.version++
	n.forced = false
	n.state = stateClean
	g.stats.Recomputes++

	if !hadValue {
		g.queueNotification(n, value, nil)
	} else if !n.equal(value, old) {
		g.queueNotification(n, value, old)
	}

	return nil
}

func (g *Graph) invokeCompute(n *node, ctx *EvalCtx) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = &ComputeError{
				AttributeID: n.id,
				Cause:       fmt.Errorf("panic: %v", r),
				StackTrace:  debug.Stack(),
			}
		}
	}()

	value, err = n.compute(ctx)
	if err != nil && !isEngineError(err) {
		err = &ComputeError{
			AttributeID: n.id,
			Cause:       err,
			StackTrace:  debug.Stack(),
		}
	}
	return value, err
}

// isEngineError keeps cycle and nested failures from being double-wrapped as
// they travel up through enclosing compute functions.
func isEngineError(err error) bool {
	var cycleErr *CycleError
	var computeErr *ComputeError
	var invalidErr *InvalidOperationError
	return errors.As(err, &cycleErr) ||
		errors.As(err, &computeErr) ||
		errors.As(err, &invalidErr)
}

// cycleError names the full cycle: the repeated node first, then the stack
// slice above it. The last member is the one whose compute function read the
// first again.
func (g *Graph) cycleError(n *node) *CycleError {
	members := []string{n.id}
	idx := -1
	for i, frame := range g.evalStack {
		if frame.node == n {
			idx = i
			break
		}
	}
	if idx >= 0 {
		for _, frame := range g.evalStack[idx+1:] {
			members = append(members, frame.node.id)
		}
	}
	return &CycleError{Members: members}
}

// goroutineID parses the current goroutine's id out of its stack header
// ("goroutine N [running]: ..."). Only consulted when evalGID is set, so the
// cached-read fast path pays one atomic load.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := strings.Fields(string(buf[:n]))
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// runWrapped chains registered extensions around one top-level operation,
// middleware style: the last registered extension wraps first.
func (g *Graph) runWrapped(op *Operation, core func() (any, error)) (any, error) {
	exts := g.snapshotExtensions()

	next := core
	for i := len(exts) - 1; i >= 0; i-- {
		ext := exts[i]
		currentNext := next
		next = func() (any, error) {
			return ext.Wrap(context.Background(), currentNext, op)
		}
	}

	result, err := next()
	if err != nil {
		for _, ext := range exts {
			ext.OnError(err, op, g)
		}
	}
	return result, err
}
