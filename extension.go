package traced

import "context"

// Extension provides hooks into the evaluation lifecycle
type Extension interface {
	// Name returns the extension's name
	Name() string

	// Order determines extension execution order (lower = earlier)
	Order() int

	// Init is called when the extension is registered to a graph
	Init(g *Graph) error

	// Wrap intercepts top-level operations (read, write, override,
	// invalidate)
	Wrap(ctx context.Context, next func() (any, error), op *Operation) (any, error)

	// OnError handles errors surfaced by an operation
	OnError(err error, op *Operation, g *Graph)

	// Dispose is called when the graph is disposed
	Dispose(g *Graph) error
}

// BaseExtension provides default implementations for Extension methods
type BaseExtension struct {
	name string
}

// NewBaseExtension creates a new base extension with the given name
func NewBaseExtension(name string) BaseExtension {
	return BaseExtension{name: name}
}

func (e *BaseExtension) Name() string {
	return e.name
}

func (e *BaseExtension) Order() int {
	return 100
}

func (e *BaseExtension) Init(g *Graph) error {
	return nil
}

func (e *BaseExtension) Wrap(ctx context.Context, next func() (any, error), op *Operation) (any, error) {
	return next()
}

func (e *BaseExtension) OnError(err error, op *Operation, g *Graph) {
}

func (e *BaseExtension) Dispose(g *Graph) error {
	return nil
}

// Operation describes what operation is happening
type Operation struct {
	Kind        OperationKind
	AttributeID string
	Graph       *Graph
}

// OperationKind represents the type of operation
type OperationKind string

const (
	// OpRead indicates an attribute read
	OpRead OperationKind = "read"
	// OpWrite indicates a source write
	OpWrite OperationKind = "write"
	// OpOverride indicates setting or clearing a derived override
	OpOverride OperationKind = "override"
	// OpInvalidate indicates a manual invalidation
	OpInvalidate OperationKind = "invalidate"
)
