// Package signal implements the Signal Aggregator (spec.md §4.1):
// consolidating per-strategy signals and strategy weights into a single
// target weight vector with attribution.
package signal

import (
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/alchemiser/tradengine/internal/model"
)

// Portfolio-container placeholder symbols are excluded from direct
// allocation (spec §4.1).
var defaultContainerSymbols = map[model.Symbol]bool{
	"PORT": true,
}

// AggregateResult bundles the Aggregator's output with diagnostics that
// do not fail the run but are surfaced in TradeRunResult.Warnings.
type AggregateResult struct {
	Portfolio model.ConsolidatedPortfolio
	Warnings  []string
}

// Aggregator consolidates strategy signals into a target portfolio.
type Aggregator struct {
	logger            *zap.Logger
	cashProxySymbol   model.Symbol
	containerSymbols  map[model.Symbol]bool
	maxPositionWeight decimal.Decimal
}

// New builds an Aggregator. cashProxySymbol is the defensive-cash
// fallback (e.g. "BIL") used when no strategy emits a BUY/LONG signal.
// maxPositionWeight caps any single symbol's consolidated weight (spec
// §3 ConsolidatedPortfolio invariant: "each weight ≤ max position
// cap"); a non-positive value disables the cap.
func New(logger *zap.Logger, cashProxySymbol model.Symbol, maxPositionWeight decimal.Decimal) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		logger:            logger,
		cashProxySymbol:   cashProxySymbol,
		containerSymbols:  defaultContainerSymbols,
		maxPositionWeight: maxPositionWeight,
	}
}

// Aggregate implements spec.md §4.1's aggregate operation.
//
// signalsByStrategy is each strategy's finite signal list for this run.
// strategyWeights is each strategy's allocation fraction of total
// capital; the caller is expected to keep these summing to <= 1.0 + eps,
// but Aggregate only warns (never fails) on a violation, per spec:
// "the Planner enforces hard bounds."
func (a *Aggregator) Aggregate(
	signalsByStrategy map[model.StrategyID][]model.StrategySignal,
	strategyWeights map[model.StrategyID]decimal.Decimal,
) AggregateResult {
	var warnings []string

	weightSum := decimal.Zero
	for _, w := range strategyWeights {
		weightSum = weightSum.Add(w)
	}
	if weightSum.GreaterThan(decimal.NewFromFloat(1.0 + 1e-9)) {
		warnings = append(warnings, "strategy weights sum to more than 1.0+epsilon: "+weightSum.String())
	}

	// Deterministic iteration order resolves spec §9 Open Question #2:
	// among equal-weight contributors to the same symbol, the first in
	// insertion order (the primary strategy) is the lexicographically
	// first strategy ID, not an arbitrary map iteration order.
	strategyIDs := make([]model.StrategyID, 0, len(signalsByStrategy))
	for id := range signalsByStrategy {
		strategyIDs = append(strategyIDs, id)
	}
	sort.Slice(strategyIDs, func(i, j int) bool { return strategyIDs[i] < strategyIDs[j] })

	weights := make(map[model.Symbol]decimal.Decimal)
	contributors := make(map[model.Symbol][]model.StrategyID)
	sawAnyBuy := false

	for _, strategyID := range strategyIDs {
		weight, hasWeight := strategyWeights[strategyID]
		if !hasWeight {
			a.logger.Warn("signals from strategy with no configured weight; skipping",
				zap.String("strategy_id", strategyID.String()))
			continue
		}
		for _, sig := range signalsByStrategy[strategyID] {
			if err := sig.Validate(); err != nil {
				a.logger.Warn("rejecting invalid signal",
					zap.String("strategy_id", strategyID.String()),
					zap.String("symbol", sig.Symbol.String()),
					zap.Error(err))
				continue
			}
			if a.containerSymbols[sig.Symbol] {
				continue
			}

			switch sig.Action {
			case model.ActionBuy:
				sawAnyBuy = true
				contribution := sig.TargetAllocation.Mul(weight)
				weights[sig.Symbol] = weights[sig.Symbol].Add(contribution)
				contributors[sig.Symbol] = append(contributors[sig.Symbol], strategyID)
			case model.ActionSell:
				// SELL implies "not in target"; no subtraction, and the
				// symbol is simply omitted unless another strategy BUYs it.
			case model.ActionHold:
				// informational only
			}
		}
	}

	if !sawAnyBuy {
		weights = map[model.Symbol]decimal.Decimal{a.cashProxySymbol: decimal.NewFromInt(1)}
		contributors = map[model.Symbol][]model.StrategyID{}
		warnings = append(warnings, "no BUY/LONG signals from any strategy; falling back to defensive cash")
	}

	warnings = append(warnings, a.clampToPositionCap(weights)...)

	portfolio := model.ConsolidatedPortfolio{
		Weights:                weights,
		ContributingStrategies: contributors,
	}

	total := portfolio.TotalWeight()
	lower := decimal.NewFromFloat(0.99)
	upper := decimal.NewFromFloat(1.01)
	if total.LessThan(lower) || total.GreaterThan(upper) {
		warnings = append(warnings, "consolidated weights sum "+total.String()+" is outside [0.99, 1.01]")
		a.logger.Warn("consolidated portfolio weight out of tolerance", zap.String("total_weight", total.String()))
	}

	return AggregateResult{Portfolio: portfolio, Warnings: warnings}
}

// clampToPositionCap enforces the ConsolidatedPortfolio invariant "each
// weight ≤ max position cap" (spec §3) by reducing any symbol over the
// configured ceiling in place, logging and warning on every clamp. The
// excess is dropped rather than redistributed: a concentrated signal
// set should result in more defensive cash on the next run via the
// normal rebalance cycle, not a reshuffled allocation the strategies
// never asked for.
func (a *Aggregator) clampToPositionCap(weights map[model.Symbol]decimal.Decimal) []string {
	if !a.maxPositionWeight.IsPositive() {
		return nil
	}

	var warnings []string
	symbols := make([]model.Symbol, 0, len(weights))
	for sym := range weights {
		symbols = append(symbols, sym)
	}
	sort.Slice(symbols, func(i, j int) bool { return symbols[i] < symbols[j] })

	for _, sym := range symbols {
		if w := weights[sym]; w.GreaterThan(a.maxPositionWeight) {
			weights[sym] = a.maxPositionWeight
			msg := sym.String() + " weight " + w.String() + " exceeds max position cap " + a.maxPositionWeight.String() + "; clamped"
			warnings = append(warnings, msg)
			a.logger.Warn("consolidated weight exceeded max position cap",
				zap.String("symbol", sym.String()),
				zap.String("weight", w.String()),
				zap.String("max_position_weight", a.maxPositionWeight.String()))
		}
	}
	return warnings
}
