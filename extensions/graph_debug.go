package extensions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/m1gwings/treedrawer/tree"

	traced "github.com/traced-fn/traced-go"
)

// GraphDebugExtension logs a dependency-graph visualization and the recent
// operation history when an operation fails.
//
// Usage:
//
//	// Human-readable formatted output (with line breaks)
//	handler := extensions.NewHumanHandler(os.Stdout, slog.LevelError)
//	ext, _ := extensions.NewGraphDebugExtension(handler, 64)
//
//	// Structured JSON logging (compact, machine-readable)
//	handler := slog.NewJSONHandler(os.Stdout, nil)
//	ext, _ := extensions.NewGraphDebugExtension(handler, 64)
//
//	// Silent (for testing)
//	ext, _ := extensions.NewGraphDebugExtension(extensions.NewSilentHandler(), 64)
//
// The extension logs at ERROR level.
type GraphDebugExtension struct {
	traced.BaseExtension

	mu      sync.Mutex
	history *lru.Cache[uint64, opRecord]
	seq     atomic.Uint64
	logger  *slog.Logger
}

type opRecord struct {
	kind      traced.OperationKind
	attribute string
	err       error
}

// NewGraphDebugExtension creates a graph debug extension keeping a bounded
// history of the most recent historySize operations.
func NewGraphDebugExtension(logHandler slog.Handler, historySize int) (*GraphDebugExtension, error) {
	history, err := lru.New[uint64, opRecord](historySize)
	if err != nil {
		return nil, fmt.Errorf("creating operation history: %w", err)
	}

	return &GraphDebugExtension{
		BaseExtension: traced.NewBaseExtension("graph-debug"),
		history:       history,
		logger:        slog.New(logHandler),
	}, nil
}

// Wrap records every operation into the bounded history
func (e *GraphDebugExtension) Wrap(ctx context.Context, next func() (any, error), op *traced.Operation) (any, error) {
	result, err := next()

	e.mu.Lock()
	e.history.Add(e.seq.Add(1), opRecord{
		kind:      op.Kind,
		attribute: op.AttributeID,
		err:       err,
	})
	e.mu.Unlock()

	return result, err
}

// OnError logs the dependency graph and recent history when an operation
// fails
func (e *GraphDebugExtension) OnError(err error, op *traced.Operation, g *traced.Graph) {
	e.logger.Error("Attribute Operation Error",
		"attribute", op.AttributeID,
		"operation", string(op.Kind),
		"graph", g.ID(),
		"error", err.Error(),
		"dependency_graph", e.formatDependencyGraph(g, op.AttributeID),
		"recent_operations", e.formatHistory(),
	)
}

// formatDependencyGraph renders each root attribute (one with dependents but
// no dependencies of its own) as a tree of its transitive dependents.
func (e *GraphDebugExtension) formatDependencyGraph(g *traced.Graph, failedID string) string {
	edges := g.ExportDependencyGraph()
	if len(edges) == 0 {
		return "\n(empty - no dependencies traced yet)"
	}

	var sb strings.Builder
	sb.WriteString("\n")

	for _, id := range g.AttributeIDs() {
		if len(edges[id]) == 0 {
			continue
		}
		if len(g.DependenciesOf(id)) > 0 {
			continue // not a root, rendered under its dependencies
		}

		t := tree.NewTree(tree.NodeString(e.label(g, id, failedID)))
		e.addDependents(t, g, edges, id, map[string]bool{id: true}, failedID)
		sb.WriteString(t.String())
		sb.WriteString("\n")
	}

	return sb.String()
}

func (e *GraphDebugExtension) addDependents(t *tree.Tree, g *traced.Graph, edges map[string][]string, id string, visited map[string]bool, failedID string) {
	for i, dep := range edges[id] {
		t.AddChild(tree.NodeString(e.label(g, dep, failedID)))
		if visited[dep] {
			continue
		}
		visited[dep] = true

		child, err := t.Child(i)
		if err != nil {
			continue
		}
		e.addDependents(child, g, edges, dep, visited, failedID)
	}
}

func (e *GraphDebugExtension) label(g *traced.Graph, id, failedID string) string {
	info, ok := g.Inspect(id)
	if !ok {
		return id
	}

	name := id
	if info.Description != "" {
		name = fmt.Sprintf("%s (%s)", id, info.Description)
	}
	label := fmt.Sprintf("%s [%s, %s, v%d]", name, info.Kind, info.State, info.Version)
	if info.Overridden {
		label += " (overridden)"
	}
	if id == failedID {
		label += " FAILED"
	}
	return label
}

func (e *GraphDebugExtension) formatHistory() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("\n")
	for _, key := range e.history.Keys() {
		record, ok := e.history.Get(key)
		if !ok {
			continue
		}
		if record.err != nil {
			sb.WriteString(fmt.Sprintf("  %d. %s %s -> %v\n", key, record.kind, record.attribute, record.err))
		} else {
			sb.WriteString(fmt.Sprintf("  %d. %s %s -> ok\n", key, record.kind, record.attribute))
		}
	}
	return sb.String()
}
