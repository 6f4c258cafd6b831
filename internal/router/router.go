// Package router resolves exchange names to their adapters.
package router

import (
	"sort"
	"strings"
	"sync"

	"github.com/crosstide/connector/errs"
	"github.com/crosstide/connector/internal/exchange"
)

// Registry maps case-folded exchange names to adapters. Registration happens
// at startup; resolution happens on every request.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]exchange.Exchange
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{adapters: make(map[string]exchange.Exchange)}
}

// Register adds an adapter under its own name. Names are folded to lower
// case, so two adapters whose names differ only in case conflict: accepting
// both would make resolution order-dependent.
func (r *Registry) Register(adapter exchange.Exchange) error {
	if adapter == nil {
		return errs.New("", errs.CodeInvalid, errs.WithMessage("nil adapter"))
	}
	name := strings.ToLower(strings.TrimSpace(adapter.Name()))
	if name == "" {
		return errs.New("", errs.CodeInvalid, errs.WithMessage("adapter with empty name"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[name]; exists {
		return errs.New(name, errs.CodeInvalid, errs.WithMessage("adapter already registered"))
	}
	r.adapters[name] = adapter
	return nil
}

// Resolve finds the adapter for name, case-insensitively.
func (r *Registry) Resolve(name string) (exchange.Exchange, error) {
	folded := strings.ToLower(strings.TrimSpace(name))

	r.mu.RLock()
	adapter, ok := r.adapters[folded]
	r.mu.RUnlock()
	if !ok {
		return nil, errs.NotFound(name)
	}
	return adapter, nil
}

// Names lists registered exchanges in stable order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
