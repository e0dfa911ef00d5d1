package session

import (
	"sync"

	"github.com/zapdesk/zapdesk/internal/wap"
)

// Active is a live protocol connection for one tenant.
type Active struct {
	TenantID string
	Client   wap.Client
}

// Registry tracks live sessions by tenant. It is safe for concurrent use
// and holds no persistent state; entries exist only while a connection
// is established.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Active
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: map[string]*Active{}}
}

// Get returns the live session for a tenant, or ErrNotInitialized when
// no connection is registered.
func (r *Registry) Get(tenantID string) (*Active, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	active, ok := r.sessions[tenantID]
	if !ok {
		return nil, ErrNotInitialized
	}
	return active, nil
}

// Put registers a live session, replacing any previous entry.
func (r *Registry) Put(active *Active) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[active.TenantID] = active
}

// Remove drops the tenant's entry if present.
func (r *Registry) Remove(tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, tenantID)
}

// Len reports how many sessions are live.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
