package traced

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Graph is the owning registry of attributes and the directed edges between
// them. Edges run dependent -> dependency and are mirrored in a reverse index
// so invalidation walks cost O(fan-out).
//
// All reads and writes on one graph are serialized: a source write together
// with the invalidation walk it triggers is atomic with respect to reads, and
// no two evaluations ever interleave. Independent graphs do not share state.
type Graph struct {
	mu sync.Mutex
	id string

	nodes map[string]*node

	// dependencies[d] lists what d was built from on its last evaluation,
	// in first-read order. dependents is the exact inverse, maintained in
	// lock-step by setDependencies.
	dependencies map[string][]string
	dependents   map[string][]string

	// evalStack holds the frames of in-progress evaluations, innermost last.
	// A node found on this stack again is a cycle.
	evalStack []*evalFrame

	// evalGID is the id of the goroutine currently evaluating, or 0. Used
	// to fail reentrant API calls from compute functions instead of
	// deadlocking on mu.
	evalGID atomic.Uint64

	extensions []Extension
	tags       sync.Map

	pending []notification

	idCounter  atomic.Uint64
	subCounter atomic.Uint64
	stats      GraphStats
}

// GraphStats counts engine activity since the graph was created.
type GraphStats struct {
	Reads           uint64
	CacheHits       uint64
	Recomputes      uint64
	ComputeFailures uint64
	Writes          uint64
	Invalidations   uint64
}

// GraphOption is a modifier for graphs
type GraphOption func(*Graph)

// WithExtension returns an option that registers an extension to a graph
func WithExtension(ext Extension) GraphOption {
	return func(g *Graph) {
		if err := g.UseExtension(ext); err != nil {
			panic(err)
		}
	}
}

// WithGraphTag returns an option that sets a tag on a graph
func WithGraphTag[T any](tag Tag[T], val T) GraphOption {
	return func(g *Graph) {
		tag.SetOnGraph(g, val)
	}
}

// NewGraph creates an empty graph with optional configuration.
func NewGraph(opts ...GraphOption) *Graph {
	g := &Graph{
		id:           uuid.NewString(),
		nodes:        make(map[string]*node),
		dependencies: make(map[string][]string),
		dependents:   make(map[string][]string),
		extensions:   []Extension{},
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// ID returns the graph's unique instance id, useful for telling interleaved
// graphs apart in logs.
func (g *Graph) ID() string {
	return g.id
}

func (g *Graph) String() string {
	return fmt.Sprintf("graph %s", g.id)
}

// resolveID returns the id for a new attribute, generating one when no name
// was supplied. Caller holds g.mu.
func (g *Graph) resolveID(name string) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("attr-%d", g.idCounter.Add(1))
}

func (g *Graph) node(id string) *node {
	return g.nodes[id]
}

// setDependencies atomically replaces a dependent's outgoing edges with the
// freshly traced set and fixes the reverse index: reverse entries for edges
// no longer read are dropped, entries for new edges are added. Caller holds
// g.mu, so no intermediate state is observable.
func (g *Graph) setDependencies(dependent string, newDeps []string) {
	old := g.dependencies[dependent]

	for _, dep := range old {
		if !contains(newDeps, dep) {
			g.dependents[dep] = removeElement(g.dependents[dep], dependent)
			if len(g.dependents[dep]) == 0 {
				delete(g.dependents, dep)
			}
		}
	}

	for _, dep := range newDeps {
		if !contains(old, dep) {
			g.dependents[dep] = appendUnique(g.dependents[dep], dependent)
		}
	}

	if len(newDeps) == 0 {
		delete(g.dependencies, dependent)
		return
	}
	g.dependencies[dependent] = append([]string(nil), newDeps...)
}

// DependenciesOf returns what the attribute read on its last evaluation, in
// first-read order.
func (g *Graph) DependenciesOf(id string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.dependencies[id]...)
}

// DependentsOf returns the direct dependents of an attribute.
func (g *Graph) DependentsOf(id string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.dependents[id]...)
}

// ExportDependencyGraph returns a copy of the forward edges, keyed by
// dependency id and listing its direct dependents. Used by debugging
// extensions.
func (g *Graph) ExportDependencyGraph() map[string][]string {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[string][]string, len(g.dependents))
	for id, deps := range g.dependents {
		out[id] = append([]string(nil), deps...)
	}
	return out
}

// AttributeIDs returns the ids of all registered attributes, sorted.
func (g *Graph) AttributeIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NodeInfo is a read-only snapshot of one attribute's runtime state.
type NodeInfo struct {
	ID          string
	Kind        Kind
	State       string
	Version     uint64
	HasValue    bool
	Overridden  bool
	Description string
}

// Inspect returns a snapshot of an attribute's state, or false if the id is
// not registered.
func (g *Graph) Inspect(id string) (NodeInfo, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return NodeInfo{}, false
	}
	info := NodeInfo{
		ID:         n.id,
		Kind:       n.kind,
		State:      n.state.String(),
		Version:    n.version,
		HasValue:   n.hasValue,
		Overridden: n.overridden,
	}
	if v, ok := n.tags[DescriptionTag]; ok {
		info.Description, _ = v.(string)
	}
	return info, true
}

// Stats returns a copy of the graph's activity counters.
func (g *Graph) Stats() GraphStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}

// UseExtension registers an extension to the graph
func (g *Graph) UseExtension(ext Extension) error {
	g.mu.Lock()
	g.extensions = append(g.extensions, ext)
	sort.SliceStable(g.extensions, func(i, j int) bool {
		return g.extensions[i].Order() < g.extensions[j].Order()
	})
	g.mu.Unlock()

	return ext.Init(g)
}

func (g *Graph) snapshotExtensions() []Extension {
	g.mu.Lock()
	defer g.mu.Unlock()
	exts := make([]Extension, len(g.extensions))
	copy(exts, g.extensions)
	return exts
}

// Dispose tears the graph down, disposing all registered extensions. The
// graph must not be used afterwards.
func (g *Graph) Dispose() error {
	for _, ext := range g.snapshotExtensions() {
		if err := ext.Dispose(g); err != nil {
			return fmt.Errorf("disposing extension %s: %w", ext.Name(), err)
		}
	}
	return nil
}

// GetTag retrieves a tag value from the graph
func (g *Graph) GetTag(tag any) (any, bool) {
	return g.tags.Load(tag)
}

// SetTag stores a tag value on the graph
func (g *Graph) SetTag(tag any, val any) {
	g.tags.Store(tag, val)
}

// Utility functions for working with edge slices

func appendUnique[T comparable](slice []T, item T) []T {
	for _, existing := range slice {
		if existing == item {
			return slice
		}
	}
	return append(slice, item)
}

func removeElement[T comparable](slice []T, item T) []T {
	for i, existing := range slice {
		if existing == item {
			return append(slice[:i], slice[i+1:]...)
		}
	}
	return slice
}

func contains[T comparable](slice []T, item T) bool {
	for _, existing := range slice {
		if existing == item {
			return true
		}
	}
	return false
}
