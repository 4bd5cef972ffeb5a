package signal

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alchemiser/tradengine/internal/model"
)

func mustSymbol(t *testing.T, raw string) model.Symbol {
	t.Helper()
	sym, err := model.NewSymbol(raw)
	require.NoError(t, err)
	return sym
}

func TestAggregate_WeightedBuySummation(t *testing.T) {
	agg := New(nil, mustSymbol(t, "BIL"), decimal.Zero)

	spy := mustSymbol(t, "SPY")
	qqq := mustSymbol(t, "QQQ")

	signals := map[model.StrategyID][]model.StrategySignal{
		"NUCLEAR": {
			{Symbol: spy, Action: model.ActionBuy, Confidence: decimal.NewFromFloat(0.8), TargetAllocation: decimal.NewFromFloat(0.5), StrategyID: "NUCLEAR"},
		},
		"TECL": {
			{Symbol: spy, Action: model.ActionBuy, Confidence: decimal.NewFromFloat(0.9), TargetAllocation: decimal.NewFromFloat(1.0), StrategyID: "TECL"},
			{Symbol: qqq, Action: model.ActionBuy, Confidence: decimal.NewFromFloat(0.9), TargetAllocation: decimal.NewFromFloat(0.5), StrategyID: "TECL"},
		},
	}
	weights := map[model.StrategyID]decimal.Decimal{
		"NUCLEAR": decimal.NewFromFloat(0.4),
		"TECL":    decimal.NewFromFloat(0.6),
	}

	result := agg.Aggregate(signals, weights)

	// SPY: 0.5*0.4 (NUCLEAR) + 1.0*0.6 (TECL) = 0.2 + 0.6 = 0.8
	assert.True(t, result.Portfolio.Weights[spy].Equal(decimal.NewFromFloat(0.8)))
	// QQQ: 0.5*0.6 = 0.3
	assert.True(t, result.Portfolio.Weights[qqq].Equal(decimal.NewFromFloat(0.3)))

	primary, ok := result.Portfolio.PrimaryStrategy(spy)
	require.True(t, ok)
	assert.Equal(t, model.StrategyID("NUCLEAR"), primary, "lexicographically first contributor wins attribution")
}

func TestAggregate_SellOmitsSymbolRatherThanSubtracting(t *testing.T) {
	agg := New(nil, mustSymbol(t, "BIL"), decimal.Zero)
	spy := mustSymbol(t, "SPY")

	signals := map[model.StrategyID][]model.StrategySignal{
		"NUCLEAR": {
			{Symbol: spy, Action: model.ActionSell, Confidence: decimal.NewFromFloat(0.8), TargetAllocation: decimal.Zero, StrategyID: "NUCLEAR"},
		},
	}
	weights := map[model.StrategyID]decimal.Decimal{"NUCLEAR": decimal.NewFromFloat(1.0)}

	result := agg.Aggregate(signals, weights)

	_, present := result.Portfolio.Weights[spy]
	assert.False(t, present)
	assert.Contains(t, result.Warnings, "no BUY/LONG signals from any strategy; falling back to defensive cash")
	assert.True(t, result.Portfolio.Weights["BIL"].Equal(decimal.NewFromInt(1)))
}

func TestAggregate_HoldSignalIsInformationalOnly(t *testing.T) {
	agg := New(nil, mustSymbol(t, "BIL"), decimal.Zero)
	spy := mustSymbol(t, "SPY")
	qqq := mustSymbol(t, "QQQ")

	signals := map[model.StrategyID][]model.StrategySignal{
		"NUCLEAR": {
			{Symbol: spy, Action: model.ActionHold, Confidence: decimal.NewFromFloat(0.5), TargetAllocation: decimal.Zero, StrategyID: "NUCLEAR"},
			{Symbol: qqq, Action: model.ActionBuy, Confidence: decimal.NewFromFloat(0.5), TargetAllocation: decimal.NewFromFloat(1.0), StrategyID: "NUCLEAR"},
		},
	}
	weights := map[model.StrategyID]decimal.Decimal{"NUCLEAR": decimal.NewFromFloat(1.0)}

	result := agg.Aggregate(signals, weights)

	_, present := result.Portfolio.Weights[spy]
	assert.False(t, present)
	assert.True(t, result.Portfolio.Weights[qqq].Equal(decimal.NewFromInt(1)))
}

func TestAggregate_NoBuySignalsFallsBackToCashProxy(t *testing.T) {
	agg := New(nil, mustSymbol(t, "BIL"), decimal.Zero)

	result := agg.Aggregate(map[model.StrategyID][]model.StrategySignal{}, map[model.StrategyID]decimal.Decimal{})

	require.Len(t, result.Portfolio.Weights, 1)
	assert.True(t, result.Portfolio.Weights["BIL"].Equal(decimal.NewFromInt(1)))
}

func TestAggregate_InvalidSignalRejectedButOthersContinue(t *testing.T) {
	agg := New(nil, mustSymbol(t, "BIL"), decimal.Zero)
	spy := mustSymbol(t, "SPY")
	qqq := mustSymbol(t, "QQQ")

	signals := map[model.StrategyID][]model.StrategySignal{
		"NUCLEAR": {
			// Invalid: BUY with zero target allocation.
			{Symbol: spy, Action: model.ActionBuy, Confidence: decimal.NewFromFloat(0.5), TargetAllocation: decimal.Zero, StrategyID: "NUCLEAR"},
			{Symbol: qqq, Action: model.ActionBuy, Confidence: decimal.NewFromFloat(0.5), TargetAllocation: decimal.NewFromFloat(1.0), StrategyID: "NUCLEAR"},
		},
	}
	weights := map[model.StrategyID]decimal.Decimal{"NUCLEAR": decimal.NewFromFloat(1.0)}

	result := agg.Aggregate(signals, weights)

	_, present := result.Portfolio.Weights[spy]
	assert.False(t, present)
	assert.True(t, result.Portfolio.Weights[qqq].Equal(decimal.NewFromInt(1)))
}

func TestAggregate_ContainerSymbolExcluded(t *testing.T) {
	agg := New(nil, mustSymbol(t, "BIL"), decimal.Zero)

	signals := map[model.StrategyID][]model.StrategySignal{
		"NUCLEAR": {
			{Symbol: "PORT", Action: model.ActionBuy, Confidence: decimal.NewFromFloat(0.5), TargetAllocation: decimal.NewFromFloat(1.0), StrategyID: "NUCLEAR"},
		},
	}
	weights := map[model.StrategyID]decimal.Decimal{"NUCLEAR": decimal.NewFromFloat(1.0)}

	result := agg.Aggregate(signals, weights)

	_, present := result.Portfolio.Weights["PORT"]
	assert.False(t, present)
	// No BUY survived filtering, so defensive cash fallback applies.
	assert.True(t, result.Portfolio.Weights["BIL"].Equal(decimal.NewFromInt(1)))
}

func TestAggregate_OutOfToleranceSumWarnsButDoesNotFail(t *testing.T) {
	agg := New(nil, mustSymbol(t, "BIL"), decimal.Zero)
	spy := mustSymbol(t, "SPY")

	signals := map[model.StrategyID][]model.StrategySignal{
		"NUCLEAR": {
			{Symbol: spy, Action: model.ActionBuy, Confidence: decimal.NewFromFloat(0.5), TargetAllocation: decimal.NewFromFloat(0.5), StrategyID: "NUCLEAR"},
		},
	}
	weights := map[model.StrategyID]decimal.Decimal{"NUCLEAR": decimal.NewFromFloat(1.0)}

	result := agg.Aggregate(signals, weights)

	require.True(t, result.Portfolio.Weights[spy].Equal(decimal.NewFromFloat(0.5)))
	found := false
	for _, w := range result.Warnings {
		if w == "consolidated weights sum 0.5 is outside [0.99, 1.01]" {
			found = true
		}
	}
	assert.True(t, found, "expected out-of-tolerance warning, got: %v", result.Warnings)
}

func TestAggregate_WeightExceedingPositionCapIsClamped(t *testing.T) {
	agg := New(nil, mustSymbol(t, "BIL"), decimal.NewFromFloat(0.25))
	spy := mustSymbol(t, "SPY")

	signals := map[model.StrategyID][]model.StrategySignal{
		"NUCLEAR": {
			{Symbol: spy, Action: model.ActionBuy, Confidence: decimal.NewFromFloat(0.9), TargetAllocation: decimal.NewFromFloat(1.0), StrategyID: "NUCLEAR"},
		},
	}
	weights := map[model.StrategyID]decimal.Decimal{"NUCLEAR": decimal.NewFromFloat(1.0)}

	result := agg.Aggregate(signals, weights)

	assert.True(t, result.Portfolio.Weights[spy].Equal(decimal.NewFromFloat(0.25)), "expected SPY weight clamped to the 0.25 cap, got %s", result.Portfolio.Weights[spy])
	found := false
	for _, w := range result.Warnings {
		if w == "SPY weight 1 exceeds max position cap 0.25; clamped" {
			found = true
		}
	}
	assert.True(t, found, "expected position-cap clamp warning, got: %v", result.Warnings)
}

func TestAggregate_WeightWithinPositionCapIsUnchanged(t *testing.T) {
	agg := New(nil, mustSymbol(t, "BIL"), decimal.NewFromFloat(0.5))
	spy := mustSymbol(t, "SPY")

	signals := map[model.StrategyID][]model.StrategySignal{
		"NUCLEAR": {
			{Symbol: spy, Action: model.ActionBuy, Confidence: decimal.NewFromFloat(0.9), TargetAllocation: decimal.NewFromFloat(0.4), StrategyID: "NUCLEAR"},
		},
	}
	weights := map[model.StrategyID]decimal.Decimal{"NUCLEAR": decimal.NewFromFloat(1.0)}

	result := agg.Aggregate(signals, weights)

	assert.True(t, result.Portfolio.Weights[spy].Equal(decimal.NewFromFloat(0.4)))
	assert.Equal(t, []string{"consolidated weights sum 0.4 is outside [0.99, 1.01]"}, result.Warnings)
}
