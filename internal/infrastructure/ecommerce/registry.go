package ecommerce

import (
	"fmt"
	"slices"

	"github.com/erp/marketsync/internal/domain/integration"
)

// Registry resolves marketplace adapters by code
type Registry struct {
	adapters map[integration.MarketplaceCode]integration.MarketplaceAdapter
}

// NewRegistry creates a registry holding the given adapters
func NewRegistry(adapters ...integration.MarketplaceAdapter) *Registry {
	r := &Registry{adapters: make(map[integration.MarketplaceCode]integration.MarketplaceAdapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Code()] = a
	}
	return r
}

// Get returns the adapter for a marketplace
func (r *Registry) Get(code integration.MarketplaceCode) (integration.MarketplaceAdapter, error) {
	adapter, ok := r.adapters[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", integration.ErrAdapterNotFound, code)
	}
	return adapter, nil
}

// Codes returns the registered marketplaces in sorted order
func (r *Registry) Codes() []integration.MarketplaceCode {
	codes := make([]integration.MarketplaceCode, 0, len(r.adapters))
	for code := range r.adapters {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes
}

var _ integration.AdapterRegistry = (*Registry)(nil)
