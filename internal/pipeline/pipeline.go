// Package pipeline wires the Signal Aggregator, Rebalance Planner,
// Execution Engine, and Strategy Tracker into the single run(correlation_id?)
// entry point described in spec.md §2 and §6, generalizing the
// teacher's internal/services ServiceRegistry pattern: an explicit
// dependency object built once by the caller, no global singletons.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/alchemiser/tradengine/internal/config"
	"github.com/alchemiser/tradengine/internal/errors"
	"github.com/alchemiser/tradengine/internal/events"
	"github.com/alchemiser/tradengine/internal/execution"
	"github.com/alchemiser/tradengine/internal/model"
	"github.com/alchemiser/tradengine/internal/planner"
	"github.com/alchemiser/tradengine/internal/ports"
	"github.com/alchemiser/tradengine/internal/signal"
	"github.com/alchemiser/tradengine/internal/strategy"
	"github.com/alchemiser/tradengine/internal/telemetry"
	"github.com/alchemiser/tradengine/internal/tracker"
)

// Pipeline is the run() entry point's explicit dependency object.
type Pipeline struct {
	cfg         *config.Config
	strategies  *strategy.Registry
	aggregator  *signal.Aggregator
	planner     *planner.Planner
	engine      *execution.Engine
	tracker     *tracker.Tracker
	account     ports.AccountPort
	marketData  ports.MarketDataPort
	publisher   events.RunResultPublisher
	logger      *zap.Logger
	collector   *telemetry.Collector
}

// SetTelemetry attaches a metrics collector so every Run() records its
// duration and outcome. Optional; a nil collector is a no-op.
func (p *Pipeline) SetTelemetry(c *telemetry.Collector) {
	p.collector = c
}

// New builds a Pipeline from its collaborators. publisher may be
// events.NoopPublisher{} when events are disabled in config.
func New(
	cfg *config.Config,
	strategies *strategy.Registry,
	aggregator *signal.Aggregator,
	pl *planner.Planner,
	engine *execution.Engine,
	trk *tracker.Tracker,
	account ports.AccountPort,
	marketData ports.MarketDataPort,
	publisher events.RunResultPublisher,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Pipeline{
		cfg:        cfg,
		strategies: strategies,
		aggregator: aggregator,
		planner:    pl,
		engine:     engine,
		tracker:    trk,
		account:    account,
		marketData: marketData,
		publisher:  publisher,
		logger:     logger,
	}
}

// Run implements spec.md §6's run(correlation_id?) -> TradeRunResult.
// On return, the result is published to events asynchronously — events
// are a side effect of a finished run, never a dependency of its
// outcome (spec §9 Design Notes).
func (p *Pipeline) Run(ctx context.Context, correlationID string) (result model.TradeRunResult) {
	start := time.Now()
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	result = model.TradeRunResult{
		CorrelationID: correlationID,
		StartedAt:     start,
		Success:       true,
	}

	defer func() {
		result.CompletedAt = time.Now()
		if p.collector != nil {
			p.collector.ObserveRun(result.CompletedAt.Sub(start), result.Success)
		}
		go p.publisher.PublishRunResult(context.Background(), result)
	}()

	signalsByStrategy := p.collectSignals(ctx, start)
	result.SignalsEmitted = signalsByStrategy

	aggResult := p.aggregator.Aggregate(signalsByStrategy, p.strategyWeights())
	result.Warnings = append(result.Warnings, aggResult.Warnings...)
	consolidated := aggResult.Portfolio
	result.ConsolidatedPortfolio = &consolidated

	snapshot, err := p.loadSnapshot(ctx, consolidated)
	if err != nil {
		return p.fail(result, err)
	}

	plan, planWarnings, err := p.planner.BuildPlan(planner.BuildPlanInput{
		Consolidated:  consolidated,
		Snapshot:      snapshot,
		CorrelationID: correlationID,
		Urgency:       deriveUrgency(consolidated, snapshot, decimal.NewFromFloat(p.cfg.Trading.MaxDriftTolerance)),
	})
	result.Warnings = append(result.Warnings, planWarnings...)
	if err != nil {
		return p.fail(result, err)
	}
	result.RebalancePlan = &plan

	execResult := p.engine.Execute(ctx, plan)
	result.OrdersExecuted = execResult.FilledOrders
	result.OrdersCanceled = execResult.OrdersCanceled
	result.Warnings = append(result.Warnings, execResult.Warnings...)
	result.Success = execResult.Success
	if len(execResult.Errors) > 0 {
		result.Error = execResult.Errors[0]
	}

	p.recordFills(ctx, execResult.FilledOrders, &result)
	p.archiveIfDue(ctx, snapshot, start, &result)

	return result
}

func (p *Pipeline) fail(result model.TradeRunResult, err error) model.TradeRunResult {
	result.Success = false
	var tradingErr *errors.TradingError
	if errors.As(err, &tradingErr) {
		result.Error = tradingErr
	} else {
		result.Error = errors.Wrap(err, errors.ErrMissingPrice, "run aborted")
	}
	return result
}

// collectSignals asks every registered strategy for its opinion. A
// strategy-level error is logged and treated as "no signals this run"
// for that strategy — it never aborts the whole run (spec §1: strategy
// internals are black boxes behind the Strategy capability).
func (p *Pipeline) collectSignals(ctx context.Context, timestamp time.Time) map[model.StrategyID][]model.StrategySignal {
	out := make(map[model.StrategyID][]model.StrategySignal)
	for _, s := range p.strategies.All() {
		sigs, err := s.GenerateSignals(ctx, timestamp, p.marketData)
		if err != nil {
			p.logger.Warn("strategy failed to generate signals", zap.String("strategy_id", s.ID().String()), zap.Error(err))
		}
		out[s.ID()] = sigs
	}
	return out
}

func (p *Pipeline) strategyWeights() map[model.StrategyID]decimal.Decimal {
	out := make(map[model.StrategyID]decimal.Decimal, len(p.cfg.Strategies))
	for _, sw := range p.cfg.Strategies {
		out[model.StrategyID(sw.StrategyID)] = decimal.NewFromFloat(sw.Weight)
	}
	return out
}

// deriveUrgency maps the largest per-symbol weight drift between the
// target portfolio and the current snapshot onto an ExecutionUrgency,
// so the engine's urgent-mode pricing (spec §4.3.1) actually engages
// when a rebalance is badly out of tolerance instead of staying dead
// code behind a constant. Drift beyond 3x the configured tolerance is
// urgent; beyond 1.5x is high; otherwise normal.
func deriveUrgency(consolidated model.ConsolidatedPortfolio, snapshot model.PortfolioSnapshot, maxDriftTolerance decimal.Decimal) model.ExecutionUrgency {
	if !snapshot.TotalValue.IsPositive() || !maxDriftTolerance.IsPositive() {
		return model.UrgencyNormal
	}

	maxDrift := decimal.Zero
	for sym, targetWeight := range consolidated.Weights {
		currentWeight := decimal.Zero
		qty, priced := snapshot.Positions[sym], snapshot.Prices[sym]
		if qty.IsPositive() && priced.IsPositive() {
			currentWeight = qty.Mul(priced).Div(snapshot.TotalValue)
		}
		if drift := targetWeight.Sub(currentWeight).Abs(); drift.GreaterThan(maxDrift) {
			maxDrift = drift
		}
	}

	switch {
	case maxDrift.GreaterThan(maxDriftTolerance.Mul(decimal.NewFromInt(3))):
		return model.UrgencyUrgent
	case maxDrift.GreaterThan(maxDriftTolerance.Mul(decimal.NewFromFloat(1.5))):
		return model.UrgencyHigh
	default:
		return model.UrgencyNormal
	}
}

// loadSnapshot builds a PortfolioSnapshot from the Account Port,
// back-filling prices for any target symbol the account doesn't
// currently hold via the Market Data Port.
func (p *Pipeline) loadSnapshot(ctx context.Context, consolidated model.ConsolidatedPortfolio) (model.PortfolioSnapshot, error) {
	acct, err := p.account.GetAccountSnapshot(ctx)
	if err != nil {
		return model.PortfolioSnapshot{}, errors.Wrap(err, errors.ErrMissingMarginData, "failed to load account snapshot")
	}

	positions, err := p.account.GetPositions(ctx)
	if err != nil {
		return model.PortfolioSnapshot{}, errors.Wrap(err, errors.ErrMissingPrice, "failed to load positions")
	}

	posMap := make(map[model.Symbol]decimal.Decimal, len(positions))
	prices := make(map[model.Symbol]decimal.Decimal, len(positions)+len(consolidated.Weights))
	for _, pd := range positions {
		posMap[pd.Symbol] = pd.Quantity
		if pd.CurrentPrice.IsPositive() {
			prices[pd.Symbol] = pd.CurrentPrice
		}
	}
	var missing []model.Symbol
	for sym := range consolidated.Weights {
		if _, ok := prices[sym]; !ok {
			missing = append(missing, sym)
		}
	}
	if len(missing) > 0 {
		fetched, prefetchErr := ports.PrefetchPrices(ctx, p.marketData, missing, 8)
		if prefetchErr != nil {
			p.logger.Warn("prefetching missing prices returned a partial result", zap.Error(prefetchErr))
		}
		for sym, price := range fetched {
			if price.IsPositive() {
				prices[sym] = price
			}
		}
	}

	return model.PortfolioSnapshot{
		TotalValue: acct.TotalValue,
		Cash:       acct.Cash,
		Positions:  posMap,
		Prices:     prices,
		Margin: model.MarginInfo{
			BuyingPower:          acct.BuyingPower,
			IntradayBuyingPower:  acct.IntradayBuyingPower,
			EffectiveBuyingPower: acct.EffectiveBuyingPower,
			Multiplier:           acct.MarginMultiplier,
			MarginUtilizationPct: acct.MarginUtilizationPct,
			MaintenanceBufferPct: acct.MaintenanceBufferPct,
			IsPDTAccount:         acct.IsPDTAccount,
		},
	}, nil
}

// recordFills feeds every fill back into the Strategy Tracker. A
// tracker failure is recorded as a warning, not a run failure — the
// trades already happened at the broker regardless of bookkeeping
// success (spec §7: tracker errors are recoverable).
func (p *Pipeline) recordFills(ctx context.Context, fills []model.FilledOrder, result *model.TradeRunResult) {
	if p.tracker == nil {
		return
	}
	for _, f := range fills {
		if f.Status != model.OrderFilled && f.Status != model.OrderPartiallyFilled {
			continue
		}
		if err := p.tracker.RecordOrder(ctx, f.OrderID, f.StrategyID, f.Symbol, f.Side, f.FilledQty, f.FilledAvgPrice, f.Timestamp); err != nil {
			p.logger.Warn("failed to record fill in strategy tracker", zap.String("order_id", f.OrderID), zap.Error(err))
			result.Warnings = append(result.Warnings, "tracker: failed to record fill for "+f.OrderID)
		}
	}
}

// archiveIfDue writes the daily P&L archive for today's UTC date key.
// ArchiveDailyPnL is itself idempotent per date_key, so calling this on
// every run is safe.
func (p *Pipeline) archiveIfDue(ctx context.Context, snapshot model.PortfolioSnapshot, now time.Time, result *model.TradeRunResult) {
	if p.tracker == nil {
		return
	}
	dateKey := tracker.DateKey(now)
	if _, err := p.tracker.ArchiveDailyPnL(ctx, snapshot.Prices, dateKey, now); err != nil {
		p.logger.Warn("failed to archive daily P&L", zap.String("date_key", dateKey), zap.Error(err))
		result.Warnings = append(result.Warnings, "tracker: failed to archive daily P&L for "+dateKey)
	}
}
