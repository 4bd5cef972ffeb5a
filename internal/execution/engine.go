// Package execution implements the Execution Engine (spec.md §4.3):
// order placement policy, smart pricing, the daily trade-value circuit
// breaker, settlement waits, and failure semantics.
package execution

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alchemiser/tradengine/internal/config"
	"github.com/alchemiser/tradengine/internal/errors"
	"github.com/alchemiser/tradengine/internal/execution/settlement"
	"github.com/alchemiser/tradengine/internal/model"
	"github.com/alchemiser/tradengine/internal/ports"
	"github.com/alchemiser/tradengine/internal/retry"
	"github.com/alchemiser/tradengine/internal/telemetry"
)

// Engine submits a RebalancePlan's items to the broker, choosing order
// type and price, honoring the daily circuit breaker, and waiting for
// settlement between the SELL and BUY phases.
type Engine struct {
	account      ports.AccountPort
	marketData   ports.MarketDataPort
	dailyBreaker *DailyLimitBreaker
	broker       *BrokerBreaker
	waiter       *settlement.Waiter
	cfg          *config.Config
	logger       *zap.Logger
	collector    *telemetry.Collector
}

// Option customizes an Engine built by NewEngine.
type Option func(*Engine)

// WithTelemetry attaches a metrics collector; orders submitted and
// rejected are recorded against it. Omitted by default so existing
// callers and tests need no metrics registry.
func WithTelemetry(c *telemetry.Collector) Option {
	return func(e *Engine) { e.collector = c }
}

// NewEngine wires an Engine from its collaborators.
func NewEngine(account ports.AccountPort, marketData ports.MarketDataPort, dailyBreaker *DailyLimitBreaker, cfg *config.Config, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		account:      account,
		marketData:   marketData,
		dailyBreaker: dailyBreaker,
		waiter:       settlement.NewWaiter(account, logger),
		cfg:          cfg,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.broker = NewBrokerBreaker(logger, e.collector)
	return e
}

// Execute implements spec §4.3's execute(plan) -> ExecutionResult.
func (e *Engine) Execute(ctx context.Context, plan model.RebalancePlan) model.ExecutionResult {
	result := model.ExecutionResult{
		Success:   true,
		PerSymbol: make(map[model.Symbol]string),
	}

	deadline := time.Now().Add(e.cfg.Trading.RunDeadline)

	result.OrdersCanceled = e.cancelStaleOrders(ctx, plan, &result)

	items := plan.NonHoldItems()
	var sells, buys []model.RebalancePlanItem
	for _, it := range items {
		if it.Action == model.TradeSell {
			sells = append(sells, it)
		} else {
			buys = append(buys, it)
		}
	}

	// Phase A — SELLs, submitted in parallel, then joined on settlement.
	sellSubmissions := e.submitSellPhase(ctx, plan.CorrelationID, sells, plan.ExecutionUrgency, &result)
	if len(sellSubmissions) > 0 {
		settleResult := e.waiter.WaitForSettlement(ctx, orderIDsOf(sellSubmissions), e.cfg.Trading.SettlementTimeout, e.cfg.Trading.SettlementPoll)
		if !settleResult.AllSettled {
			result.Warnings = append(result.Warnings, "not all SELL orders settled before timeout")
		}
		e.collectFills(ctx, model.SideSell, sellSubmissions, &result)
	}

	// Phase B — BUYs, strictly sequential. An account snapshot is fetched
	// after every submission, but its buying power is not used to size,
	// gate or skip the next BUY.
	var buySubmissions []orderSubmission
	for _, item := range buys {
		if time.Now().After(deadline) {
			result.Warnings = append(result.Warnings, "run deadline reached; remaining BUYs skipped")
			result.Success = false
			break
		}
		orderID, submitted := e.submitOne(ctx, plan.CorrelationID, item, plan.ExecutionUrgency, &result)
		if !submitted {
			continue
		}
		buySubmissions = append(buySubmissions, orderSubmission{orderID: orderID, item: item})

		// Fetch a fresh account snapshot before the next BUY. The values
		// are discarded; a failure here is only logged.
		if _, err := e.account.GetAccountSnapshot(ctx); err != nil {
			e.logger.Warn("failed to refresh account snapshot between BUYs", zap.Error(err))
		}
	}
	if len(buySubmissions) > 0 {
		settleResult := e.waiter.WaitForSettlement(ctx, orderIDsOf(buySubmissions), e.cfg.Trading.SettlementTimeout, e.cfg.Trading.SettlementPoll)
		if !settleResult.AllSettled {
			result.Warnings = append(result.Warnings, "not all BUY orders settled before timeout")
		}
		e.collectFills(ctx, model.SideBuy, buySubmissions, &result)
	}

	if len(result.Errors) > 0 {
		result.Success = false
	}
	return result
}

// cancelStaleOrders cancels open orders on symbols referenced in the
// plan (spec §4.3 step 1).
func (e *Engine) cancelStaleOrders(ctx context.Context, plan model.RebalancePlan, result *model.ExecutionResult) int {
	planSymbols := make(map[model.Symbol]bool, len(plan.Items))
	for _, it := range plan.NonHoldItems() {
		planSymbols[it.Symbol] = true
	}
	if len(planSymbols) == 0 {
		return 0
	}

	open, err := e.account.GetOpenOrders(ctx)
	if err != nil {
		e.logger.Warn("failed to list open orders; skipping stale-order cancellation", zap.Error(err))
		return 0
	}

	canceled := 0
	for _, o := range open {
		if !planSymbols[o.Symbol] {
			continue
		}
		ok, err := e.account.CancelOrder(ctx, o.OrderID)
		if err != nil {
			e.logger.Warn("failed to cancel stale order", zap.String("order_id", o.OrderID), zap.Error(err))
			continue
		}
		if ok {
			canceled++
		}
	}
	return canceled
}

// submitSellPhase submits all SELL items concurrently (spec §4.3 step 2).
func (e *Engine) submitSellPhase(ctx context.Context, correlationID string, sells []model.RebalancePlanItem, urgency model.ExecutionUrgency, result *model.ExecutionResult) []orderSubmission {
	if len(sells) == 0 {
		return nil
	}

	var mu sync.Mutex
	var submissions []orderSubmission

	g, gctx := errgroup.WithContext(ctx)
	for _, item := range sells {
		item := item
		g.Go(func() error {
			orderID, submitted := e.submitOne(gctx, correlationID, item, urgency, result)
			if submitted {
				mu.Lock()
				submissions = append(submissions, orderSubmission{orderID: orderID, item: item})
				mu.Unlock()
			}
			return nil // item-level failures are recorded in result, not propagated
		})
	}
	_ = g.Wait()
	return submissions
}

func orderIDsOf(submissions []orderSubmission) []string {
	ids := make([]string, len(submissions))
	for i, s := range submissions {
		ids[i] = s.orderID
	}
	return ids
}

// submitOne resolves price/order type for item, checks the daily
// circuit breaker, and submits with retry on transient broker errors
// (spec §4.3.5).
func (e *Engine) submitOne(ctx context.Context, correlationID string, item model.RebalancePlanItem, urgency model.ExecutionUrgency, result *model.ExecutionResult) (string, bool) {
	if err := e.dailyBreaker.AssertWithinLimit(correlationID, item.TradeAmount.Abs()); err != nil {
		var tradingErr *errors.TradingError
		errors.As(err, &tradingErr)
		result.Errors = append(result.Errors, tradingErr)
		result.PerSymbol[item.Symbol] = "blocked: daily trade limit exceeded"
		e.recordRejected(item, "daily_limit")
		return "", false
	}

	// A SELL that empties the position entirely routes through the
	// broker's own liquidate-position primitive rather than a sized
	// order (spec §4.3.1), so it needs neither a price nor a quote.
	if item.Action == model.TradeSell && item.FullLiquidation {
		return e.submitLiquidation(ctx, item, result)
	}

	price, ok, err := e.marketData.GetCurrentPrice(ctx, item.Symbol)
	if err != nil || !ok || !price.IsPositive() {
		tradingErr := errors.Newf(errors.ErrMissingPrice, "no usable price for %s", item.Symbol)
		result.Errors = append(result.Errors, tradingErr)
		result.PerSymbol[item.Symbol] = "skipped: missing price"
		e.recordRejected(item, "missing_price")
		return "", false
	}

	fractionable, err := e.marketData.IsFractionable(ctx, item.Symbol)
	if err != nil {
		e.logger.Warn("fractionability lookup failed; assuming non-fractionable", zap.String("symbol", item.Symbol.String()), zap.Error(err))
	}

	pricing := e.resolvePricing(ctx, item, price, urgency)
	built := BuildOrder(item, price, fractionable, pricing, e.defaultTIF(), e.cfg.Trading.ExtendedHoursDefault)
	if built.Skipped {
		result.Warnings = append(result.Warnings, "order rounded to zero for "+item.Symbol.String()+": "+built.Reason)
		result.PerSymbol[item.Symbol] = built.Reason
		return "", false
	}
	if err := built.Request.Validate(); err != nil {
		result.Errors = append(result.Errors, err.(*errors.TradingError))
		return "", false
	}

	var orderID string
	retryErr := retry.Do(ctx, func() error {
		id, submitErr := e.broker.Call(ctx, func(ctx context.Context) (string, error) {
			return e.account.SubmitOrder(ctx, built.Request)
		})
		if submitErr != nil {
			return submitErr
		}
		orderID = id
		return nil
	}, retry.OrderSubmissionPolicy())

	if retryErr != nil {
		tradingErr := errors.Wrapf(retryErr, errors.ErrOrderRejected, "order submission failed for %s", item.Symbol)
		result.Errors = append(result.Errors, tradingErr)
		result.PerSymbol[item.Symbol] = "rejected: " + retryErr.Error()
		e.recordRejected(item, "broker_rejected")
		return "", false
	}

	result.PerSymbol[item.Symbol] = "submitted"
	if e.collector != nil {
		e.collector.OrderSubmitted(item.Symbol.String(), string(item.Action))
	}
	return orderID, true
}

// submitLiquidation closes item's entire position through the broker's
// liquidate-position primitive instead of a sized SELL order.
func (e *Engine) submitLiquidation(ctx context.Context, item model.RebalancePlanItem, result *model.ExecutionResult) (string, bool) {
	var orderID string
	retryErr := retry.Do(ctx, func() error {
		id, callErr := e.broker.Call(ctx, func(ctx context.Context) (string, error) {
			return e.account.LiquidatePosition(ctx, item.Symbol)
		})
		if callErr != nil {
			return callErr
		}
		orderID = id
		return nil
	}, retry.OrderSubmissionPolicy())

	if retryErr != nil {
		tradingErr := errors.Wrapf(retryErr, errors.ErrOrderRejected, "full liquidation failed for %s", item.Symbol)
		result.Errors = append(result.Errors, tradingErr)
		result.PerSymbol[item.Symbol] = "rejected: " + retryErr.Error()
		e.recordRejected(item, "broker_rejected")
		return "", false
	}

	result.PerSymbol[item.Symbol] = "submitted: full liquidation"
	if e.collector != nil {
		e.collector.OrderSubmitted(item.Symbol.String(), string(item.Action))
	}
	return orderID, true
}

func (e *Engine) recordRejected(item model.RebalancePlanItem, reason string) {
	if e.collector != nil {
		e.collector.OrderRejected(item.Symbol.String(), reason)
	}
}

// resolvePricing chooses a market, smart-limit, or aggressive
// marketable-limit price for item. It falls back to a market order
// whenever a usable quote is unavailable.
func (e *Engine) resolvePricing(ctx context.Context, item model.RebalancePlanItem, price decimal.Decimal, urgency model.ExecutionUrgency) PricingDecision {
	quote, ok, err := e.marketData.GetLatestQuote(ctx, item.Symbol)
	if err != nil || !ok {
		return PricingDecision{OrderType: model.OrderTypeMarket, Reasoning: "no quote available"}
	}

	// Aggressive marketable limit: leveraged ETFs always use it; any
	// symbol uses it when the run is urgent (spec §4.3.1).
	if urgency == model.UrgencyUrgent || e.isLeveragedSymbol(item.Symbol) {
		if limit := AggressiveMarketableLimit(quote, item.Action); limit.IsPositive() {
			return PricingDecision{OrderType: model.OrderTypeLimit, LimitPrice: limit, Reasoning: "aggressive marketable limit"}
		}
	}

	maxSlippage := decimal.NewFromFloat(e.cfg.Trading.MaxSlippageBps)
	return SmartLimitPrice(quote, item.Action, urgency, maxSlippage)
}

func (e *Engine) isLeveragedSymbol(sym model.Symbol) bool {
	for _, s := range e.cfg.Trading.LeveragedSymbols {
		if model.Symbol(s) == sym {
			return true
		}
	}
	return false
}

func (e *Engine) defaultTIF() model.TimeInForce {
	return model.TIFDay
}

// orderSubmission tracks which plan item an in-flight order ID came
// from, so collectFills can attribute the fill back to its symbol and
// strategy without a second broker round trip per symbol.
type orderSubmission struct {
	orderID string
	item    model.RebalancePlanItem
}

// collectFills reconciles submitted orders back into FilledOrder
// records attributed to their originating strategy, records each fill
// against the daily circuit breaker, and appends warnings for
// rejections discovered only at settlement time.
func (e *Engine) collectFills(ctx context.Context, side model.OrderSide, submissions []orderSubmission, result *model.ExecutionResult) {
	for _, sub := range submissions {
		report, err := e.account.GetOrderStatus(ctx, sub.orderID)
		if err != nil {
			e.logger.Warn("failed to fetch final order status", zap.String("order_id", sub.orderID), zap.Error(err))
			continue
		}

		if report.Status == model.OrderRejected || report.Status == model.OrderError {
			result.Warnings = append(result.Warnings, "order "+sub.orderID+" settled as "+string(report.Status))
			continue
		}

		if report.FilledQuantity.IsPositive() {
			e.dailyBreaker.RecordTrade(report.FilledQuantity.Mul(report.FilledAvgPrice))
		}

		result.FilledOrders = append(result.FilledOrders, model.FilledOrder{
			OrderID:        sub.orderID,
			Symbol:         sub.item.Symbol,
			Side:           side,
			FilledQty:      report.FilledQuantity,
			FilledAvgPrice: report.FilledAvgPrice,
			Status:         report.Status,
			StrategyID:     sub.item.StrategyID,
		})
	}
}
