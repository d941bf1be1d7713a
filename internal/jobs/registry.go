package jobs

import (
	"context"
	"sort"
	"sync"
)

// Handler executes all units of work for one job type.
//
// Execute returns the result payload to store on completion. A returned
// SetupError (or any other error) fails the job; per-unit failures must be
// absorbed inside the handler and surfaced through the progress tracker
// and the result payload instead. Handlers should call tracker.Halted at
// unit boundaries and return ErrHalted when the job was paused or
// cancelled underneath them.
type Handler interface {
	Type() JobType
	Execute(ctx context.Context, job *Job, tracker *Tracker) (any, error)
}

// Registry maps job types to their handlers.
// Adding a job type means registering a new handler at startup, not
// editing a dispatch branch.
type Registry struct {
	handlers map[JobType]Handler
	mu       sync.RWMutex
}

// NewRegistry creates a new handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[JobType]Handler),
	}
}

// Register adds a handler to the registry.
// If a handler for the same job type already exists, it will be replaced.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[h.Type()] = h
}

// Get returns the handler for a job type, or nil if not registered.
func (r *Registry) Get(t JobType) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.handlers[t]
}

// Has returns true if a handler is registered for the given job type.
func (r *Registry) Has(t JobType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.handlers[t]
	return exists
}

// Count returns the number of registered handlers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.handlers)
}

// Types returns all registered job types, sorted alphabetically.
func (r *Registry) Types() []JobType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]JobType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
