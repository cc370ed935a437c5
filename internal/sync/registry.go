package sync

import (
	"context"
	"encoding/json"
	stdsync "sync"

	"github.com/brightpath-energy/fieldsync/internal/models"
)

// Result is the outcome an apply function reports for a mutation. Business
// failures (validation, conflicts) surface as Success false with a message;
// transport and system errors are returned as errors instead.
type Result struct {
	Success bool
	Message string
}

// ApplyFunc performs the actual remote write for one resource:type pair.
type ApplyFunc func(ctx context.Context, payload json.RawMessage) (Result, error)

// Registry maps resource:type keys to apply functions. It is injected into
// the engine at construction, which keeps the generic drain loop decoupled
// from resource-specific logic.
type Registry struct {
	mu       stdsync.RWMutex
	handlers map[string]ApplyFunc
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]ApplyFunc)}
}

// Register binds an apply function to a resource:type pair, replacing any
// previous binding.
func (r *Registry) Register(resource models.Resource, typ models.MutationType, fn ApplyFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[key(resource, typ)] = fn
}

// Resolve returns the apply function for a resource:type pair, or nil when
// none is registered. An unregistered key is a permanent configuration
// error: the engine drops such mutations instead of retrying them.
func (r *Registry) Resolve(resource models.Resource, typ models.MutationType) ApplyFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[key(resource, typ)]
}

// Keys returns all registered resource:type keys, for diagnostics.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		keys = append(keys, k)
	}
	return keys
}

func key(resource models.Resource, typ models.MutationType) string {
	return string(resource) + ":" + string(typ)
}
