package traced

import (
	"fmt"
	"reflect"
)

// Kind distinguishes source attributes (externally written leaves) from
// derived attributes (computed from other attributes).
type Kind int

const (
	// KindSource is a leaf attribute whose value is set by the caller.
	KindSource Kind = iota
	// KindDerived is an attribute computed lazily from other attributes.
	KindDerived
)

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindDerived:
		return "derived"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

type nodeState int

const (
	stateClean nodeState = iota
	stateStale
	stateEvaluating
)

func (s nodeState) String() string {
	switch s {
	case stateClean:
		return "clean"
	case stateStale:
		return "stale"
	case stateEvaluating:
		return "evaluating"
	default:
		return fmt.Sprintf("nodeState(%d)", int(s))
	}
}

// node is the graph-owned record backing one attribute. All fields are
// guarded by the owning graph's lock.
type node struct {
	id   string
	kind Kind

	state    nodeState
	value    any
	hasValue bool
	version  uint64

	// forced marks a node explicitly invalidated, bypassing the
	// dependency-version cutoff on the next read.
	forced bool

	// overridden pins a derived node to a caller-supplied value. While set,
	// the compute function never runs and invalidation stops here.
	overridden bool

	compute func(*EvalCtx) (any, error)
	equal   func(a, b any) bool

	compareOnWrite bool

	// depVersions snapshots the version of every dependency as observed by
	// the last successful computation.
	depVersions map[string]uint64

	tags map[any]any
	subs map[uint64]func(newVal, oldVal any)
}

// AnyAttribute is a type-erased view of an attribute handle, used by tags
// and extensions.
type AnyAttribute interface {
	ID() string
	Kind() Kind
	Graph() *Graph
	GetTag(tag any) (any, bool)
	SetTag(tag any, val any)
}

// Attribute is a typed handle to one node on a graph. Handles are cheap to
// copy and remain valid for the lifetime of the graph.
type Attribute[T any] struct {
	graph *Graph
	id    string
	kind  Kind
}

// ID returns the attribute's stable identity on its graph.
func (a *Attribute[T]) ID() string {
	return a.id
}

// Kind reports whether the attribute is a source or derived.
func (a *Attribute[T]) Kind() Kind {
	return a.kind
}

// Graph returns the graph that owns this attribute.
func (a *Attribute[T]) Graph() *Graph {
	return a.graph
}

// GetTag retrieves a metadata tag from the attribute.
func (a *Attribute[T]) GetTag(tag any) (any, bool) {
	a.graph.mu.Lock()
	defer a.graph.mu.Unlock()
	val, ok := a.graph.nodes[a.id].tags[tag]
	return val, ok
}

// SetTag stores a metadata tag on the attribute.
func (a *Attribute[T]) SetTag(tag any, val any) {
	a.graph.mu.Lock()
	defer a.graph.mu.Unlock()
	n := a.graph.nodes[a.id]
	if n.tags == nil {
		n.tags = make(map[any]any)
	}
	n.tags[tag] = val
}

func (a *Attribute[T]) String() string {
	return fmt.Sprintf("attribute %s", a.id)
}

// attrConfig collects attribute options before the node is registered.
type attrConfig struct {
	name           string
	compareOnWrite bool
	equal          func(a, b any) bool
	tags           map[any]any
}

// AttrOption is a modifier for attributes at creation time.
type AttrOption func(*attrConfig)

// WithName sets the attribute's id on the graph. Without it, an id of the
// form attr-N is generated.
func WithName(name string) AttrOption {
	return func(c *attrConfig) {
		c.name = name
	}
}

// WithCompareOnWrite makes writes of a value equal to the current one a
// no-op: no version bump, no invalidation, no notification. Off by default;
// every write is treated as a change.
func WithCompareOnWrite() AttrOption {
	return func(c *attrConfig) {
		c.compareOnWrite = true
	}
}

// WithEqual supplies the equality function used by compare-on-write and by
// change notifications. Defaults to reflect.DeepEqual.
func WithEqual[T any](eq func(a, b T) bool) AttrOption {
	return func(c *attrConfig) {
		c.equal = func(a, b any) bool {
			av, aok := a.(T)
			bv, bok := b.(T)
			if !aok || !bok {
				return false
			}
			return eq(av, bv)
		}
	}
}

// WithAttrTag returns an option that sets a tag on an attribute
func WithAttrTag[V any](tag Tag[V], val V) AttrOption {
	return func(c *attrConfig) {
		if c.tags == nil {
			c.tags = make(map[any]any)
		}
		c.tags[tag] = val
	}
}

func defaultEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// Source registers a source attribute with an initial value. Sources are
// created clean and stay clean: a write assigns the value and invalidates
// dependents, it never marks the source itself stale.
//
// Registration is idempotent: calling Source again with the same name returns
// a handle to the existing node. Re-registering an id with a different kind
// panics.
func Source[T any](g *Graph, initial T, opts ...AttrOption) *Attribute[T] {
	cfg := applyOptions(opts)

	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.resolveID(cfg.name)
	if existing, ok := g.nodes[id]; ok {
		mustMatchKind(existing, KindSource)
		return &Attribute[T]{graph: g, id: id, kind: KindSource}
	}

	n := &node{
		id:             id,
		kind:           KindSource,
		state:          stateClean,
		value:          initial,
		hasValue:       true,
		version:        1,
		equal:          cfg.equalOrDefault(),
		compareOnWrite: cfg.compareOnWrite,
		tags:           cfg.tags,
	}
	g.nodes[id] = n

	return &Attribute[T]{graph: g, id: id, kind: KindSource}
}

// Derived registers a derived attribute computed by fn. The node starts
// stale with no value; fn runs on the first read and again whenever a read
// finds the node stale with changed dependencies. Dependencies are discovered
// by observing Read calls made through the supplied EvalCtx, so they may
// differ between evaluations.
func Derived[T any](g *Graph, fn func(*EvalCtx) (T, error), opts ...AttrOption) *Attribute[T] {
	cfg := applyOptions(opts)

	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.resolveID(cfg.name)
	if existing, ok := g.nodes[id]; ok {
		mustMatchKind(existing, KindDerived)
		return &Attribute[T]{graph: g, id: id, kind: KindDerived}
	}

	n := &node{
		id:    id,
		kind:  KindDerived,
		state: stateStale,
		compute: func(ctx *EvalCtx) (any, error) {
			return fn(ctx)
		},
		equal:          cfg.equalOrDefault(),
		compareOnWrite: cfg.compareOnWrite,
		tags:           cfg.tags,
	}
	g.nodes[id] = n

	return &Attribute[T]{graph: g, id: id, kind: KindDerived}
}

func applyOptions(opts []AttrOption) *attrConfig {
	cfg := &attrConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func (c *attrConfig) equalOrDefault() func(a, b any) bool {
	if c.equal != nil {
		return c.equal
	}
	return defaultEqual
}

// mustOwn rejects a handle used with a graph other than the one it was
// created on. Operations that return errors report the mismatch as
// InvalidOperationError instead; this guards the error-less surfaces.
func mustOwn[T any](g *Graph, attr *Attribute[T]) {
	if attr.graph != g {
		panic(fmt.Sprintf("attribute %s belongs to a different graph", attr.id))
	}
}

func mustMatchKind(n *node, kind Kind) {
	if n.kind != kind {
		panic(fmt.Sprintf("attribute %s already registered as %s, cannot re-register as %s",
			n.id, n.kind, kind))
	}
}
