package strategy

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ErrUnknownType is returned when no factory is registered for a strategy type.
var ErrUnknownType = errors.New("unknown strategy type")

// Factory builds fresh Logic for one instance.
type Factory func() Logic

// Registry maps strategy type identifiers to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry preloaded with the built-in strategies.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(TypeMomentum, func() Logic { return NewMomentum() })
	r.Register(TypeImbalance, func() Logic { return NewImbalance() })
	r.Register(TypeTrend, func() Logic { return NewTrend() })
	return r
}

// Register adds or replaces the factory for kind.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	r.factories[normalize(kind)] = f
	r.mu.Unlock()
}

// Build returns an uninitialized runtime of the given type named name.
func (r *Registry) Build(kind, name string, log zerolog.Logger, opts ...Option) (*Runtime, error) {
	r.mu.RLock()
	f, ok := r.factories[normalize(kind)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, kind)
	}
	if name == "" {
		name = normalize(kind)
	}
	return NewRuntime(name, f(), log, opts...), nil
}

// Types lists registered type identifiers in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normalize(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}
