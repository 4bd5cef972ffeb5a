package execution

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alchemiser/tradengine/internal/config"
	"github.com/alchemiser/tradengine/internal/model"
	"github.com/alchemiser/tradengine/internal/ports"
)

type fakeAccount struct {
	mu          sync.Mutex
	nextID      int
	submitted   []model.OrderRequest
	liquidated  []model.Symbol
	openOrders  []ports.OrderDescriptor
	fillForSide map[model.OrderSide]decimal.Decimal
}

func newFakeAccount() *fakeAccount {
	return &fakeAccount{fillForSide: map[model.OrderSide]decimal.Decimal{
		model.SideBuy:  decimal.NewFromInt(100),
		model.SideSell: decimal.NewFromInt(100),
	}}
}

func (f *fakeAccount) GetAccountSnapshot(ctx context.Context) (ports.AccountSnapshot, error) {
	return ports.AccountSnapshot{TotalValue: decimal.NewFromInt(10000), Cash: decimal.NewFromInt(10000)}, nil
}

func (f *fakeAccount) GetPositions(ctx context.Context) ([]ports.PositionDescriptor, error) {
	return nil, nil
}

func (f *fakeAccount) GetOpenOrders(ctx context.Context) ([]ports.OrderDescriptor, error) {
	return f.openOrders, nil
}

func (f *fakeAccount) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	return true, nil
}

func (f *fakeAccount) LiquidatePosition(ctx context.Context, symbol model.Symbol) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.liquidated = append(f.liquidated, symbol)
	return "liquidate-" + symbol.String(), nil
}

func (f *fakeAccount) SubmitOrder(ctx context.Context, req model.OrderRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.submitted = append(f.submitted, req)
	return "order-" + string(rune('0'+f.nextID)), nil
}

func (f *fakeAccount) GetOrderStatus(ctx context.Context, orderID string) (ports.OrderStatusReport, error) {
	return ports.OrderStatusReport{
		Status:         model.OrderFilled,
		FilledQuantity: decimal.NewFromInt(10),
		FilledAvgPrice: decimal.NewFromInt(100),
	}, nil
}

type fakeMarketData struct{}

func (fakeMarketData) GetCurrentPrice(ctx context.Context, symbol model.Symbol) (decimal.Decimal, bool, error) {
	return decimal.NewFromInt(100), true, nil
}

func (fakeMarketData) GetLatestQuote(ctx context.Context, symbol model.Symbol) (ports.Quote, bool, error) {
	return ports.Quote{Bid: decimal.NewFromFloat(99.95), Ask: decimal.NewFromFloat(100.05), Timestamp: time.Now()}, true, nil
}

func (fakeMarketData) IsFractionable(ctx context.Context, symbol model.Symbol) (bool, error) {
	return true, nil
}

func testEngineConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Trading.RunDeadline = time.Minute
	cfg.Trading.SettlementTimeout = time.Second
	cfg.Trading.SettlementPoll = 5 * time.Millisecond
	cfg.Trading.MaxSlippageBps = 50
	cfg.Trading.DailyTradeLimitUSD = 1000000
	return cfg
}

func TestEngine_Execute_SellsThenBuysSequentially(t *testing.T) {
	account := newFakeAccount()
	engine := NewEngine(account, fakeMarketData{}, NewDailyLimitBreaker(decimal.NewFromInt(1000000)), testEngineConfig(), nil)

	plan := model.RebalancePlan{
		CorrelationID: "run-1",
		Items: []model.RebalancePlanItem{
			{Symbol: "SPY", Action: model.TradeSell, TradeAmount: decimal.NewFromInt(-1000), StrategyID: "NUCLEAR"},
			{Symbol: "QQQ", Action: model.TradeBuy, TradeAmount: decimal.NewFromInt(1000), StrategyID: "TECL"},
		},
	}

	result := engine.Execute(context.Background(), plan)

	require.True(t, result.Success)
	require.Len(t, result.FilledOrders, 2)
	assert.Equal(t, 2, len(account.submitted))
}

func TestEngine_Execute_DailyLimitBlocksSubmission(t *testing.T) {
	account := newFakeAccount()
	breaker := NewDailyLimitBreaker(decimal.NewFromInt(500))
	engine := NewEngine(account, fakeMarketData{}, breaker, testEngineConfig(), nil)

	plan := model.RebalancePlan{
		CorrelationID: "run-2",
		Items: []model.RebalancePlanItem{
			{Symbol: "SPY", Action: model.TradeBuy, TradeAmount: decimal.NewFromInt(1000), StrategyID: "NUCLEAR"},
		},
	}

	result := engine.Execute(context.Background(), plan)

	assert.False(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Empty(t, account.submitted)
}

func TestEngine_Execute_CancelsStaleOpenOrdersOnPlanSymbols(t *testing.T) {
	account := newFakeAccount()
	account.openOrders = []ports.OrderDescriptor{
		{OrderID: "stale-1", Symbol: "SPY", Status: model.OrderAccepted},
		{OrderID: "stale-2", Symbol: "IBM", Status: model.OrderAccepted},
	}
	engine := NewEngine(account, fakeMarketData{}, NewDailyLimitBreaker(decimal.NewFromInt(1000000)), testEngineConfig(), nil)

	plan := model.RebalancePlan{
		CorrelationID: "run-3",
		Items: []model.RebalancePlanItem{
			{Symbol: "SPY", Action: model.TradeBuy, TradeAmount: decimal.NewFromInt(500), StrategyID: "NUCLEAR"},
		},
	}

	result := engine.Execute(context.Background(), plan)
	assert.Equal(t, 1, result.OrdersCanceled)
}

func TestEngine_Execute_FullLiquidationRoutesThroughLiquidatePosition(t *testing.T) {
	account := newFakeAccount()
	engine := NewEngine(account, fakeMarketData{}, NewDailyLimitBreaker(decimal.NewFromInt(1000000)), testEngineConfig(), nil)

	plan := model.RebalancePlan{
		CorrelationID: "run-4",
		Items: []model.RebalancePlanItem{
			{Symbol: "SPY", Action: model.TradeSell, TradeAmount: decimal.NewFromInt(-1000), StrategyID: "NUCLEAR", FullLiquidation: true},
		},
	}

	result := engine.Execute(context.Background(), plan)

	require.True(t, result.Success)
	assert.Equal(t, []model.Symbol{"SPY"}, account.liquidated)
	assert.Empty(t, account.submitted)
}

func TestEngine_Execute_UrgentUrgencyUsesAggressiveMarketableLimit(t *testing.T) {
	account := newFakeAccount()
	engine := NewEngine(account, fakeMarketData{}, NewDailyLimitBreaker(decimal.NewFromInt(1000000)), testEngineConfig(), nil)

	plan := model.RebalancePlan{
		CorrelationID:    "run-5",
		ExecutionUrgency: model.UrgencyUrgent,
		Items: []model.RebalancePlanItem{
			{Symbol: "QQQ", Action: model.TradeBuy, TradeAmount: decimal.NewFromInt(1000), StrategyID: "TECL"},
		},
	}

	result := engine.Execute(context.Background(), plan)

	require.True(t, result.Success)
	require.Len(t, account.submitted, 1)
	req := account.submitted[0]
	require.NotNil(t, req.LimitPrice)
	assert.True(t, req.LimitPrice.Equal(decimal.NewFromFloat(100.06)), "expected aggressive marketable limit ask+0.01, got %s", req.LimitPrice)
}

func TestEngine_Execute_LeveragedSymbolUsesAggressiveMarketableLimitRegardlessOfUrgency(t *testing.T) {
	account := newFakeAccount()
	cfg := testEngineConfig()
	cfg.Trading.LeveragedSymbols = []string{"TQQQ"}
	engine := NewEngine(account, fakeMarketData{}, NewDailyLimitBreaker(decimal.NewFromInt(1000000)), cfg, nil)

	plan := model.RebalancePlan{
		CorrelationID:    "run-6",
		ExecutionUrgency: model.UrgencyNormal,
		Items: []model.RebalancePlanItem{
			{Symbol: "TQQQ", Action: model.TradeBuy, TradeAmount: decimal.NewFromInt(1000), StrategyID: "LETF"},
		},
	}

	result := engine.Execute(context.Background(), plan)

	require.True(t, result.Success)
	require.Len(t, account.submitted, 1)
	req := account.submitted[0]
	require.NotNil(t, req.LimitPrice)
	assert.True(t, req.LimitPrice.Equal(decimal.NewFromFloat(100.06)))
}
