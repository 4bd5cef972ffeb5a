package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alchemiser/tradengine/internal/errors"
)

// SignalAction is the directional instruction a strategy attaches to a symbol.
type SignalAction string

const (
	ActionBuy  SignalAction = "BUY"
	ActionSell SignalAction = "SELL"
	ActionHold SignalAction = "HOLD"
)

// StrategySignal is one strategy's opinion on one symbol for this run.
type StrategySignal struct {
	Symbol           Symbol
	Action           SignalAction
	Confidence       decimal.Decimal // in [0,1]
	TargetAllocation decimal.Decimal // in [0,1]
	Reasoning        string
	StrategyID       StrategyID
	Timestamp        time.Time
}

// Validate enforces the invariants from spec.md §3: confidence and
// target_allocation bounded in [0,1], and BUY implies a positive
// target allocation.
func (s StrategySignal) Validate() error {
	zero, one := decimal.Zero, decimal.NewFromInt(1)
	if s.Confidence.LessThan(zero) || s.Confidence.GreaterThan(one) {
		return errors.Newf(errors.ErrInvalidStrategyConfig,
			"signal %s/%s: confidence %s out of [0,1]", s.StrategyID, s.Symbol, s.Confidence)
	}
	if s.TargetAllocation.LessThan(zero) || s.TargetAllocation.GreaterThan(one) {
		return errors.Newf(errors.ErrInvalidStrategyConfig,
			"signal %s/%s: target_allocation %s out of [0,1]", s.StrategyID, s.Symbol, s.TargetAllocation)
	}
	if s.Action == ActionBuy && !s.TargetAllocation.IsPositive() {
		return errors.Newf(errors.ErrInvalidStrategyConfig,
			"signal %s/%s: BUY action requires target_allocation > 0", s.StrategyID, s.Symbol)
	}
	return nil
}

// ConsolidatedPortfolio is the aggregator's output: a target weight per
// symbol plus the strategies that contributed to each symbol's weight.
type ConsolidatedPortfolio struct {
	Weights                map[Symbol]decimal.Decimal
	ContributingStrategies map[Symbol][]StrategyID
}

// TotalWeight returns the sum of all target weights.
func (c ConsolidatedPortfolio) TotalWeight() decimal.Decimal {
	total := decimal.Zero
	for _, w := range c.Weights {
		total = total.Add(w)
	}
	return total
}

// PrimaryStrategy returns the attribution strategy for symbol: the
// first contributor in insertion order, as recorded by the aggregator.
// Per spec §9 Open Question #2, ties are broken deterministically by
// the aggregator before this is called, so "first" here is already
// lexicographic among equal-weight contributors.
func (c ConsolidatedPortfolio) PrimaryStrategy(sym Symbol) (StrategyID, bool) {
	ids, ok := c.ContributingStrategies[sym]
	if !ok || len(ids) == 0 {
		return "", false
	}
	return ids[0], true
}
