// Package strategy defines the single capability the execution pipeline
// requires of a strategy implementation. Per spec.md §9 ("Dynamic
// dispatch over strategy classes -> a single Strategy capability"),
// there is no inheritance hierarchy: strategies are concrete
// implementations registered by name, each satisfying one method.
package strategy

import (
	"context"
	"time"

	"github.com/alchemiser/tradengine/internal/model"
	"github.com/alchemiser/tradengine/internal/ports"
)

// Strategy is the only capability the core requires of a strategy. The
// DSL evaluator, Nuclear/TECL/KLM signal logic, etc. are black boxes
// behind this interface (spec §1) — their internals are out of scope.
type Strategy interface {
	// ID returns the strategy's process-unique identifier.
	ID() model.StrategyID

	// GenerateSignals asks the strategy for its opinion on its universe
	// of symbols as of timestamp, using the supplied market data. A
	// strategy may return a partial result alongside a non-fatal error;
	// the Signal Aggregator decides what to keep.
	GenerateSignals(ctx context.Context, timestamp time.Time, md ports.MarketDataPort) ([]model.StrategySignal, error)
}

// Registry looks strategies up by ID, replacing the source's global
// singleton strategy factory with an explicit, constructor-built object
// (spec §9 Design Notes).
type Registry struct {
	strategies map[model.StrategyID]Strategy
}

// NewRegistry builds a registry from an explicit list of strategies.
func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[model.StrategyID]Strategy, len(strategies))}
	for _, s := range strategies {
		r.strategies[s.ID()] = s
	}
	return r
}

// All returns every registered strategy.
func (r *Registry) All() []Strategy {
	out := make([]Strategy, 0, len(r.strategies))
	for _, s := range r.strategies {
		out = append(out, s)
	}
	return out
}

// Get looks up a strategy by ID.
func (r *Registry) Get(id model.StrategyID) (Strategy, bool) {
	s, ok := r.strategies[id]
	return s, ok
}
