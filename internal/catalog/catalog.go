// Package catalog defines the adapter contract over heterogeneous
// library catalogs plus the shared plumbing every adapter builds on:
// the error taxonomy, status and material normalization, uniform
// response timing, and the system-to-adapter registry.
package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/arguspanoptes/argus-server/internal/domain"
)

// Result is what one adapter returns for one search.
type Result struct {
	Holdings     []domain.BookHolding
	ResponseTime time.Duration
	Protocol     domain.Protocol
}

// HealthStatus reports the outcome of a health probe. Probes never
// return an error; internal failures set Healthy=false with a message.
type HealthStatus struct {
	SystemID  string          `json:"systemId"`
	Protocol  domain.Protocol `json:"protocol"`
	Healthy   bool            `json:"healthy"`
	LatencyMS int64           `json:"latencyMs"`
	Message   string          `json:"message,omitempty"`
	CheckedAt time.Time       `json:"checkedAt"`
}

// Adapter is the contract all catalog backends implement.
type Adapter interface {
	// Search returns normalized holdings for a 13-digit ISBN. Failures
	// are classified as this package's *Error.
	Search(ctx context.Context, isbn13 string) (*Result, error)
	// HealthCheck probes the upstream.
	HealthCheck(ctx context.Context) HealthStatus
	// SystemID names the owning library system.
	SystemID() string
	// Protocol names the upstream protocol this adapter speaks.
	Protocol() domain.Protocol
}

// Registry maps system ids to their registered adapters. Registration
// happens once at startup; lookups afterwards are read-only and safe
// for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string][]Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string][]Adapter)}
}

// Register appends an adapter for systemID. Order matters: the first
// registered adapter is the system's primary.
func (r *Registry) Register(systemID string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[systemID] = append(r.adapters[systemID], a)
}

// PrimaryAdapter returns the first adapter registered for systemID.
func (r *Registry) PrimaryAdapter(systemID string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.adapters[systemID]
	if len(list) == 0 {
		return nil, false
	}
	return list[0], true
}

// ForSystem returns all adapters registered for systemID, in
// registration order.
func (r *Registry) ForSystem(systemID string) []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Adapter(nil), r.adapters[systemID]...)
}

// SystemIDs lists every system with at least one registered adapter.
func (r *Registry) SystemIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	return ids
}

// Len counts registered adapters across all systems.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, list := range r.adapters {
		n += len(list)
	}
	return n
}
