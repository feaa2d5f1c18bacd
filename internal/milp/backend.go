package milp

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"irops/internal/model"
)

// Backend is the single seam to a mixed-integer solver. Implementations
// must honor the time limit and return the best incumbent on expiry rather
// than blocking.
type Backend interface {
	Name() string
	Available() bool
	Solve(ctx context.Context, m *Model, limit time.Duration) (Result, error)
}

var (
	regMu    sync.RWMutex
	backends = map[string]Backend{}
)

// Register adds a solver backend to the registry. Called from init.
func Register(b Backend) {
	regMu.Lock()
	defer regMu.Unlock()
	backends[b.Name()] = b
}

// Probe selects a usable backend. An empty name picks the first available
// in lexical order. When nothing usable exists the pipeline cannot produce
// any plan, so the error wraps model.ErrSolverUnavailable.
func Probe(name string) (Backend, error) {
	regMu.RLock()
	defer regMu.RUnlock()
	if name != "" {
		b, ok := backends[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown backend %q", model.ErrSolverUnavailable, name)
		}
		if !b.Available() {
			return nil, fmt.Errorf("%w: backend %q not usable", model.ErrSolverUnavailable, name)
		}
		return b, nil
	}
	names := make([]string, 0, len(backends))
	for n := range backends {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if backends[n].Available() {
			return backends[n], nil
		}
	}
	return nil, fmt.Errorf("%w: no backend registered", model.ErrSolverUnavailable)
}

// Backends lists registered backend names with availability, for
// diagnostics endpoints.
func Backends() map[string]bool {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make(map[string]bool, len(backends))
	for n, b := range backends {
		out[n] = b.Available()
	}
	return out
}
