package planner

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alchemiser/tradengine/internal/config"
	apperrors "github.com/alchemiser/tradengine/internal/errors"
	"github.com/alchemiser/tradengine/internal/model"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.CashProxySymbol = "BIL"
	cfg.DefaultStrategyID = "DEFAULT"
	cfg.Capital.EquityDeploymentPct = 1.0
	cfg.Capital.LeverageEnabled = false
	cfg.Capital.MaxMarginUtilPct = 0.8
	cfg.Capital.MinMaintenanceBufferPct = 0.1
	cfg.Trading.MinTradeAmountUSD = 10
	cfg.Trading.MaxDriftTolerance = 0.05
	return cfg
}

func TestBuildPlan_SimpleRebalanceBuysAndSells(t *testing.T) {
	p := New(testConfig(), nil)

	spy := model.Symbol("SPY")
	qqq := model.Symbol("QQQ")

	snapshot := model.PortfolioSnapshot{
		TotalValue: decimal.NewFromInt(10000),
		Cash:       decimal.NewFromInt(2000),
		Positions: map[model.Symbol]decimal.Decimal{
			spy: decimal.NewFromInt(20), // $8000 @ $400
		},
		Prices: map[model.Symbol]decimal.Decimal{
			spy: decimal.NewFromInt(400),
			qqq: decimal.NewFromInt(100),
		},
	}
	consolidated := model.ConsolidatedPortfolio{
		Weights: map[model.Symbol]decimal.Decimal{
			qqq: decimal.NewFromFloat(1.0),
		},
		ContributingStrategies: map[model.Symbol][]model.StrategyID{
			qqq: {"NUCLEAR"},
		},
	}

	plan, warnings, err := p.BuildPlan(BuildPlanInput{
		Consolidated:  consolidated,
		Snapshot:      snapshot,
		CorrelationID: "run-1",
	})
	require.NoError(t, err)
	assert.Empty(t, warnings)

	var sawSell, sawBuy bool
	for _, it := range plan.Items {
		if it.Symbol == spy {
			assert.Equal(t, model.TradeSell, it.Action)
			sawSell = true
		}
		if it.Symbol == qqq {
			assert.Equal(t, model.TradeBuy, it.Action)
			assert.Equal(t, model.StrategyID("NUCLEAR"), it.StrategyID)
			sawBuy = true
		}
	}
	assert.True(t, sawSell)
	assert.True(t, sawBuy)
	// SELL items must precede BUY items in the ordered output.
	require.Len(t, plan.Items, 2)
	assert.Equal(t, model.TradeSell, plan.Items[0].Action)
	assert.Equal(t, model.TradeBuy, plan.Items[1].Action)
}

func TestBuildPlan_WeightSumAboveCeilingFails(t *testing.T) {
	p := New(testConfig(), nil)

	_, _, err := p.BuildPlan(BuildPlanInput{
		Consolidated: model.ConsolidatedPortfolio{
			Weights: map[model.Symbol]decimal.Decimal{
				"SPY": decimal.NewFromFloat(1.5),
			},
		},
		Snapshot: model.PortfolioSnapshot{
			TotalValue: decimal.NewFromInt(10000),
			Cash:       decimal.NewFromInt(10000),
			Positions:  map[model.Symbol]decimal.Decimal{},
			Prices:     map[model.Symbol]decimal.Decimal{},
		},
		CorrelationID: "run-2",
	})
	require.Error(t, err)
	var tradingErr *apperrors.TradingError
	require.ErrorAs(t, err, &tradingErr)
	assert.Equal(t, apperrors.ErrInvalidPortfolio, tradingErr.Code)
}

func TestBuildPlan_MissingPriceForHeldPositionFails(t *testing.T) {
	p := New(testConfig(), nil)

	spy := model.Symbol("SPY")
	_, _, err := p.BuildPlan(BuildPlanInput{
		Consolidated: model.ConsolidatedPortfolio{Weights: map[model.Symbol]decimal.Decimal{}},
		Snapshot: model.PortfolioSnapshot{
			TotalValue: decimal.NewFromInt(10000),
			Cash:       decimal.NewFromInt(10000),
			Positions: map[model.Symbol]decimal.Decimal{
				spy: decimal.NewFromInt(10),
			},
			Prices: map[model.Symbol]decimal.Decimal{},
		},
		CorrelationID: "run-3",
	})
	require.Error(t, err)
	var tradingErr *apperrors.TradingError
	require.ErrorAs(t, err, &tradingErr)
	assert.Equal(t, apperrors.ErrMissingPrice, tradingErr.Code)
}

func TestBuildPlan_InsufficientCashFails(t *testing.T) {
	p := New(testConfig(), nil)
	qqq := model.Symbol("QQQ")

	_, _, err := p.BuildPlan(BuildPlanInput{
		Consolidated: model.ConsolidatedPortfolio{
			Weights: map[model.Symbol]decimal.Decimal{qqq: decimal.NewFromFloat(1.0)},
		},
		Snapshot: model.PortfolioSnapshot{
			TotalValue: decimal.NewFromInt(10000),
			Cash:       decimal.NewFromInt(100), // far short of $10,000 target buy
			Positions:  map[model.Symbol]decimal.Decimal{},
			Prices:     map[model.Symbol]decimal.Decimal{qqq: decimal.NewFromInt(100)},
		},
		CorrelationID: "run-4",
	})
	require.Error(t, err)
	var tradingErr *apperrors.TradingError
	require.ErrorAs(t, err, &tradingErr)
	assert.Equal(t, apperrors.ErrInsufficientCapital, tradingErr.Code)
}

func TestBuildPlan_DustTradeSuppressedToHold(t *testing.T) {
	p := New(testConfig(), nil)
	spy := model.Symbol("SPY")

	// Target weight implies a $5 trade on a $10,000 portfolio; below the
	// configured $10 floor, so it should be suppressed to HOLD.
	snapshot := model.PortfolioSnapshot{
		TotalValue: decimal.NewFromInt(10000),
		Cash:       decimal.NewFromInt(10000),
		Positions:  map[model.Symbol]decimal.Decimal{},
		Prices:     map[model.Symbol]decimal.Decimal{spy: decimal.NewFromInt(100)},
	}
	consolidated := model.ConsolidatedPortfolio{
		Weights: map[model.Symbol]decimal.Decimal{spy: decimal.NewFromFloat(0.0005)},
	}

	plan, _, err := p.BuildPlan(BuildPlanInput{
		Consolidated:  consolidated,
		Snapshot:      snapshot,
		CorrelationID: "run-5",
	})
	require.NoError(t, err)
	require.Len(t, plan.Items, 1)
	assert.Equal(t, model.TradeHold, plan.Items[0].Action)
	assert.True(t, plan.Items[0].TradeAmount.IsZero())
}

func TestBuildPlan_DegenerateEmptyUniverseEmitsHoldItem(t *testing.T) {
	p := New(testConfig(), nil)

	plan, _, err := p.BuildPlan(BuildPlanInput{
		Consolidated: model.ConsolidatedPortfolio{Weights: map[model.Symbol]decimal.Decimal{}},
		Snapshot: model.PortfolioSnapshot{
			TotalValue: decimal.NewFromInt(10000),
			Cash:       decimal.NewFromInt(10000),
			Positions:  map[model.Symbol]decimal.Decimal{},
			Prices:     map[model.Symbol]decimal.Decimal{},
		},
		CorrelationID: "run-6",
	})
	require.NoError(t, err)
	require.Len(t, plan.Items, 1)
	assert.Equal(t, model.Symbol("BIL"), plan.Items[0].Symbol)
	assert.Equal(t, model.TradeHold, plan.Items[0].Action)
}

func TestBuildPlan_CausationIDDefaultsToCorrelationID(t *testing.T) {
	p := New(testConfig(), nil)

	plan, _, err := p.BuildPlan(BuildPlanInput{
		Consolidated: model.ConsolidatedPortfolio{Weights: map[model.Symbol]decimal.Decimal{}},
		Snapshot: model.PortfolioSnapshot{
			TotalValue: decimal.NewFromInt(10000),
			Cash:       decimal.NewFromInt(10000),
			Positions:  map[model.Symbol]decimal.Decimal{},
			Prices:     map[model.Symbol]decimal.Decimal{},
		},
		CorrelationID: "run-7",
	})
	require.NoError(t, err)
	assert.Equal(t, "run-7", plan.CausationID)
}
