package collector

import (
	"fmt"

	"MarketLedger/internal/model"
)

// Binding is the static association of a tracked symbol with its source.
type Binding struct {
	Source         Source
	ProviderSymbol string
}

// Registry is a closed lookup table: source name -> Source, symbol -> Binding.
// It is built once at startup and read-only afterwards.
type Registry struct {
	sources  map[string]Source
	bindings map[string]Binding
}

// NewRegistry creates a registry holding the given sources, keyed by Name().
func NewRegistry(sources ...Source) *Registry {
	r := &Registry{
		sources:  make(map[string]Source, len(sources)),
		bindings: make(map[string]Binding),
	}
	for _, s := range sources {
		r.sources[s.Name()] = s
	}
	return r
}

// Bind associates every symbol of the universe with its configured source.
// An unknown source or a duplicate symbol is a configuration error.
func (r *Registry) Bind(universe model.Universe) error {
	for _, spec := range universe {
		if _, dup := r.bindings[spec.Symbol]; dup {
			return fmt.Errorf("symbol %s configured twice", spec.Symbol)
		}
		src, ok := r.sources[spec.Source]
		if !ok {
			return fmt.Errorf("symbol %s: unknown source %q", spec.Symbol, spec.Source)
		}
		provider := spec.ProviderSymbol
		if provider == "" {
			provider = spec.Symbol
		}
		r.bindings[spec.Symbol] = Binding{Source: src, ProviderSymbol: provider}
	}
	return nil
}

// Lookup returns the binding for a symbol.
func (r *Registry) Lookup(symbol string) (Binding, error) {
	b, ok := r.bindings[symbol]
	if !ok {
		return Binding{}, fmt.Errorf("symbol %s has no bound source", symbol)
	}
	return b, nil
}

// Source returns a registered source by name.
func (r *Registry) Source(name string) (Source, bool) {
	s, ok := r.sources[name]
	return s, ok
}
