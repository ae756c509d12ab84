package traced

import (
	"fmt"
	"strings"
)

// InvalidOperationError reports misuse of the attribute API, such as writing
// to a derived attribute or mutating the graph from inside a compute function.
// It is never retried by the engine.
type InvalidOperationError struct {
	AttributeID string
	Reason      string
}

func (e *InvalidOperationError) Error() string {
	if e.AttributeID != "" {
		return fmt.Sprintf("invalid operation on attribute %s: %s", e.AttributeID, e.Reason)
	}
	return fmt.Sprintf("invalid operation: %s", e.Reason)
}

// CycleError reports that a compute function, directly or transitively, read
// an attribute that is currently being computed higher on the same evaluation
// stack. Members lists the attribute ids along the cycle, starting at the
// repeated attribute; the last member reads the first again.
type CycleError struct {
	Members []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclic dependency of length %d: %s",
		len(e.Members), strings.Join(e.Members, " -> "))
}

// ComputeError wraps a failure raised by a user-supplied compute function.
// The attribute stays stale, so the next read retries cleanly.
type ComputeError struct {
	AttributeID string
	Cause       error
	StackTrace  []byte
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("compute failed for attribute %s: %v", e.AttributeID, e.Cause)
}

func (e *ComputeError) Unwrap() error {
	return e.Cause
}

// SafeTypeAssertion performs a type assertion with a descriptive error
// instead of a panic.
func SafeTypeAssertion[T any](value any) (T, error) {
	if value == nil {
		var zero T
		return zero, nil
	}

	typed, ok := value.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("type assertion error: expected %T, got %T (value: %v)", zero, value, value)
	}

	return typed, nil
}
