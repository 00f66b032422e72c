package job

import (
	"context"
	"encoding/json"
	"fmt"
)

// Handler is the contract a job type implements. Perform may run for a
// long time; it receives the raw parameter payload and a context carrying
// the job's cancellation signal. Cancellation is cooperative; a handler
// that never checks ctx runs to natural completion.
type Handler interface {
	// JobName returns the unique type name this handler serves.
	JobName() string

	// Perform executes the job. The returned value, if non-nil, is
	// retained on the record as its result.
	Perform(ctx context.Context, params json.RawMessage) (any, error)
}

// Validator is optionally implemented by handlers that pre-check their
// parameters. A false result fails the job without calling Perform.
type Validator interface {
	Validate(params json.RawMessage) bool
}

// Func adapts a plain function to a Handler.
type Func struct {
	Name string
	Fn   func(ctx context.Context, params json.RawMessage) (any, error)
}

// JobName implements Handler.
func (f Func) JobName() string { return f.Name }

// Perform implements Handler.
func (f Func) Perform(ctx context.Context, params json.RawMessage) (any, error) {
	return f.Fn(ctx, params)
}

// Definition is a typed job definition with a handler function.
// T is the parameter type (must be JSON-serializable).
type Definition[T any] struct {
	// Name is the unique identifier for this job type.
	Name string

	// Handler is the function that processes the job parameters.
	Handler func(ctx context.Context, params T) (any, error)

	// Validate optionally pre-checks the decoded parameters.
	Validate func(params T) bool
}

// NewDefinition creates a typed job definition.
func NewDefinition[T any](name string, handler func(ctx context.Context, params T) (any, error)) *Definition[T] {
	return &Definition[T]{Name: name, Handler: handler}
}

// typedHandler wraps a Definition so it satisfies Handler (and Validator
// when the definition has a Validate func). The generic decode happens in
// a closure, so the registry stays free of type parameters.
type typedHandler[T any] struct {
	def *Definition[T]
}

// JobName implements Handler.
func (h *typedHandler[T]) JobName() string { return h.def.Name }

// Perform implements Handler.
func (h *typedHandler[T]) Perform(ctx context.Context, params json.RawMessage) (any, error) {
	var t T
	if len(params) > 0 {
		if err := json.Unmarshal(params, &t); err != nil {
			return nil, fmt.Errorf("unmarshal params for job %q: %w", h.def.Name, err)
		}
	}
	return h.def.Handler(ctx, t)
}

// Validate implements Validator. Undecodable parameters are rejected.
func (h *typedHandler[T]) Validate(params json.RawMessage) bool {
	if h.def.Validate == nil {
		return true
	}
	var t T
	if len(params) > 0 {
		if err := json.Unmarshal(params, &t); err != nil {
			return false
		}
	}
	return h.def.Validate(t)
}

// AsHandler converts a typed Definition into a Handler suitable for
// Registry.Register.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func AsHandler[T any](def *Definition[T]) Handler {
	return &typedHandler[T]{def: def}
}
