package job

import (
	"sort"
	"sync"
)

// Registry maps job type names to handlers. It is safe for concurrent use.
//
// Re-registering a name silently replaces the previous handler: the last
// registration wins. This keeps initialization idempotent when handlers
// are registered again during reloads.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler under its JobName.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.JobName()] = h
}

// RegisterDefinition registers a typed definition.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	r.Register(AsHandler(def))
}

// Get returns the handler for the given job type name.
// Returns false if no handler is registered.
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns all registered job type names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
