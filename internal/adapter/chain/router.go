// Package chain holds the chain adapters that fetch wallet activity from
// indexers.
package chain

import (
	"context"
	"fmt"
	"sort"

	"wallet-risk-monitor/internal/core/domain"
	"wallet-risk-monitor/internal/core/ports"
	"wallet-risk-monitor/pkg/apperror"
)

// Router implements ports.ChainAdapter by dispatching on wallet.Chain.
type Router struct {
	adapters map[string]ports.ChainAdapter
}

func NewRouter() *Router {
	return &Router{adapters: make(map[string]ports.ChainAdapter)}
}

// Register binds an adapter to a chain name, replacing any previous one.
func (r *Router) Register(chain string, a ports.ChainAdapter) {
	r.adapters[chain] = a
}

// Chains lists the registered chain names in order.
func (r *Router) Chains() []string {
	out := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Fetch forwards to the chain's adapter. A wallet on an unconfigured chain
// can never make progress, so that is a permanent unit failure.
func (r *Router) Fetch(ctx context.Context, wallet *domain.Wallet, cursor *domain.Cursor) (*ports.FetchResult, error) {
	a, ok := r.adapters[wallet.Chain]
	if !ok {
		return nil, apperror.ErrPermanentUnitFailure(fmt.Sprintf("no adapter configured for chain %q", wallet.Chain))
	}
	return a.Fetch(ctx, wallet, cursor)
}
