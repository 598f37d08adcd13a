package session

import (
	"sync"

	"github.com/opensource-utility/dipper/internal/domain"
)

// Registry owns the live sessions of the gateway, keyed by session ID
// with strict tenant isolation.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	newSource func(tenantID string) domain.AnomalySource
	bus       domain.EventBus
	review    domain.ReviewConfig
}

// NewRegistry creates a registry. newSource builds the per-tenant
// source (typically the shared backend client wrapped with that
// tenant's history cache).
func NewRegistry(newSource func(tenantID string) domain.AnomalySource, bus domain.EventBus, review domain.ReviewConfig) *Registry {
	return &Registry{
		sessions:  make(map[string]*Session),
		newSource: newSource,
		bus:       bus,
		review:    review,
	}
}

// Create starts a new idle session for a tenant.
func (r *Registry) Create(tenantID string) *Session {
	s := New(Config{
		TenantID:      tenantID,
		Source:        r.newSource(tenantID),
		Bus:           r.bus,
		Statuses:      r.review.Statuses,
		DefaultStatus: r.review.DefaultStatus,
	})

	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()
	return s
}

// Get returns a session if it exists and belongs to the tenant.
func (r *Registry) Get(tenantID, id string) (*Session, bool) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok || s.TenantID() != tenantID {
		return nil, false
	}
	return s, true
}

// Remove drops a session from the registry.
func (r *Registry) Remove(tenantID, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.TenantID() != tenantID {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
