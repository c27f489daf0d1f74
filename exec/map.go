package exec

import (
	"context"
	"fmt"
	"sync"
)

// MapRegistry is an in-process Registry backed by a name->Handler map,
// used by tests. A production embedder is
// expected to supply its own Registry wired to whatever dispatches
// firmware-apply or post-install scripts on the target.
type MapRegistry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

var _ Registry = (*MapRegistry)(nil)

// NewMapRegistry creates an empty MapRegistry.
func NewMapRegistry() *MapRegistry {
	return &MapRegistry{handlers: make(map[string]Handler)}
}

// Register adds or replaces the handler for name.
func (r *MapRegistry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

func (r *MapRegistry) Run(ctx context.Context, name string, bodyPath string) error {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("exec: no handler registered for %q", name)
	}

	return h(ctx, bodyPath)
}
