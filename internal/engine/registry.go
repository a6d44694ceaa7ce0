package engine

import (
	"errors"
	"fmt"
	"sort"
)

// Registry holds the set of constructed engines, keyed by kind. It is
// populated once at startup and read-only afterwards, so no locking is
// required.
type Registry struct {
	engines map[Kind]ScoringEngine
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{engines: make(map[Kind]ScoringEngine)}
}

// Register adds eng under its own kind. Registering the same kind twice is a
// programming error and returns an error rather than silently replacing.
func (r *Registry) Register(eng ScoringEngine) error {
	kind := eng.Kind()
	if !kind.Known() {
		return fmt.Errorf("engine: register: unknown kind %q", kind)
	}
	if _, ok := r.engines[kind]; ok {
		return fmt.Errorf("engine: register: kind %q already registered", kind)
	}
	r.engines[kind] = eng
	return nil
}

// Get returns the engine registered under kind, or an error if none is.
func (r *Registry) Get(kind Kind) (ScoringEngine, error) {
	eng, ok := r.engines[kind]
	if !ok {
		return nil, fmt.Errorf("engine: no engine registered for kind %q", kind)
	}
	return eng, nil
}

// Has reports whether an engine is registered under kind.
func (r *Registry) Has(kind Kind) bool {
	_, ok := r.engines[kind]
	return ok
}

// Kinds returns the registered kinds in stable (sorted) order.
func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.engines))
	for k := range r.engines {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Close closes every registered engine and joins their errors.
func (r *Registry) Close() error {
	var errs []error
	for _, eng := range r.engines {
		if err := eng.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
