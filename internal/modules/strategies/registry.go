// Package strategies provides the exit strategy contract and built-in
// implementations. External strategies plug in through the same registry.
package strategies

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kabuplan/kabuplan/internal/domain"
)

// Registry maps strategy names to exit strategy implementations.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]domain.ExitStrategy
	defaultKey string
}

// NewRegistry creates a registry pre-loaded with the built-in strategies.
// The trailing stop is the system default.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[string]domain.ExitStrategy)}

	trailing := NewTrailingStop(DefaultTrailingStopConfig())
	r.Register(trailing)
	r.Register(NewStopProfit(DefaultStopProfitConfig()))
	r.defaultKey = trailing.Name()

	return r
}

// Register adds a strategy under its own name.
func (r *Registry) Register(s domain.ExitStrategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Get returns the strategy for name, falling back to the default when the
// name is empty or unknown.
func (r *Registry) Get(name string) (domain.ExitStrategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = r.defaultKey
	}
	s, ok := r.strategies[name]
	if !ok {
		s, ok = r.strategies[r.defaultKey]
		if !ok {
			return nil, fmt.Errorf("exit strategy %q not registered and no default available", name)
		}
	}
	return s, nil
}

// Names returns registered strategy names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
