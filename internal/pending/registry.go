// Package pending tracks mints whose BUY has been detected but whose
// decision-execute stage has not finished. Producers set the flag before
// submitting the BUY, so a concurrently arriving SELL for the same mint can
// wait for the position instead of rejecting with NO_POSITION.
package pending

import "sync"

// Registry is a thread-safe set of mint addresses. State is process-local
// and lost on restart, which is acceptable: the durable ledger and position
// rows carry the real state.
type Registry struct {
	mu    sync.Mutex
	mints map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{mints: make(map[string]struct{})}
}

// Add marks a pending buy for the mint.
func (r *Registry) Add(mint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mints[mint] = struct{}{}
}

// Has reports whether the mint has a pending buy.
func (r *Registry) Has(mint string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.mints[mint]
	return ok
}

// Remove clears the pending flag for the mint.
func (r *Registry) Remove(mint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.mints, mint)
}

// Len returns the number of pending buys, used by metrics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.mints)
}
