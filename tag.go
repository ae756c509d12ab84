package traced

// Tag is a type-safe key for metadata on attributes and graphs.
type Tag[T any] struct {
	key string
}

// DescriptionTag annotates an attribute with a human-readable description.
// Inspect surfaces it, and debugging extensions render it next to the id.
var DescriptionTag = NewTag[string]("description")

// NewTag creates a new tag with the given key
func NewTag[T any](key string) Tag[T] {
	return Tag[T]{key: key}
}

// Key returns the tag's key (for debugging)
func (t Tag[T]) Key() string {
	return t.key
}

// Get retrieves the tag value from an attribute
func (t Tag[T]) Get(attr AnyAttribute) (T, bool) {
	val, ok := attr.GetTag(t)
	if !ok {
		var zero T
		return zero, false
	}
	return val.(T), true
}

// MustGet retrieves the tag value or panics if not found
func (t Tag[T]) MustGet(attr AnyAttribute) T {
	val, ok := t.Get(attr)
	if !ok {
		panic("tag " + t.key + " not found")
	}
	return val
}

// GetOrDefault retrieves the tag value or returns a default
func (t Tag[T]) GetOrDefault(attr AnyAttribute, defaultVal T) T {
	if val, ok := t.Get(attr); ok {
		return val
	}
	return defaultVal
}

// Set stores the tag value on an attribute
func (t Tag[T]) Set(attr AnyAttribute, val T) {
	attr.SetTag(t, val)
}

// GetFromGraph retrieves the tag value from a graph
func (t Tag[T]) GetFromGraph(g *Graph) (T, bool) {
	val, ok := g.GetTag(t)
	if !ok {
		var zero T
		return zero, false
	}
	return val.(T), true
}

// SetOnGraph stores the tag value on a graph
func (t Tag[T]) SetOnGraph(g *Graph, val T) {
	g.SetTag(t, val)
}
