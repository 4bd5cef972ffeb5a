// Package planner implements the Rebalance Planner (spec.md §4.2):
// turning a ConsolidatedPortfolio and a PortfolioSnapshot into an
// ordered, fully-costed RebalancePlan under capital and leverage
// constraints.
package planner

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/alchemiser/tradengine/internal/config"
	"github.com/alchemiser/tradengine/internal/errors"
	"github.com/alchemiser/tradengine/internal/model"
	"github.com/alchemiser/tradengine/internal/money"
)

var tolerance = decimal.NewFromFloat(0.01)

// Planner builds RebalancePlans from a target portfolio and the
// broker's reported account state.
type Planner struct {
	cfg    *config.Config
	logger *zap.Logger
}

// New builds a Planner bound to cfg.
func New(cfg *config.Config, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{cfg: cfg, logger: logger}
}

// BuildPlanInput bundles build_plan's inputs beyond the portfolio and
// snapshot: the run's tracing IDs and execution urgency.
type BuildPlanInput struct {
	Consolidated  model.ConsolidatedPortfolio
	Snapshot      model.PortfolioSnapshot
	CorrelationID string
	CausationID   string // defaults to CorrelationID when empty
	Urgency       model.ExecutionUrgency
}

// BuildPlan implements spec.md §4.2's build_plan operation. The
// returned warnings are non-fatal diagnostics; a non-nil error aborts
// the whole run per spec's "no partial plans are emitted" rule.
func (p *Planner) BuildPlan(in BuildPlanInput) (model.RebalancePlan, []string, error) {
	var warnings []string

	causationID := in.CausationID
	if causationID == "" {
		causationID = in.CorrelationID
	}
	urgency := in.Urgency
	if urgency == "" {
		urgency = model.UrgencyNormal
	}

	// Step 1 — weight validation.
	totalTargetWeight := in.Consolidated.TotalWeight()
	if totalTargetWeight.GreaterThan(decimal.NewFromFloat(1.01)) {
		return model.RebalancePlan{}, nil, errors.Newf(errors.ErrInvalidPortfolio,
			"target weights sum to %s, exceeding 1.01", totalTargetWeight)
	}
	if totalTargetWeight.LessThan(decimal.NewFromFloat(0.99)) {
		warnings = append(warnings, fmt.Sprintf("target weights sum to %s, below 0.99", totalTargetWeight))
	}

	// Step 2 — deployable capital.
	equity := in.Snapshot.TotalValue
	deploymentPct := decimal.NewFromFloat(p.cfg.Capital.EquityDeploymentPct)
	deployable := equity.Mul(deploymentPct)

	if deployable.GreaterThan(equity) {
		margin := in.Snapshot.Margin
		if margin.IntradayBuyingPower.IsZero() && margin.EffectiveBuyingPower.IsZero() {
			return model.RebalancePlan{}, nil, errors.New(errors.ErrInsufficientMargin,
				"leverage requested but no margin data reported by the account port")
		}
		maxUtil := decimal.NewFromFloat(p.cfg.Capital.MaxMarginUtilPct)
		minBuffer := decimal.NewFromFloat(p.cfg.Capital.MinMaintenanceBufferPct)
		if margin.MarginUtilizationPct.GreaterThan(maxUtil) {
			return model.RebalancePlan{}, nil, errors.Newf(errors.ErrMarginSafety,
				"margin utilization %s exceeds ceiling %s", margin.MarginUtilizationPct, maxUtil)
		}
		if margin.MaintenanceBufferPct.LessThan(minBuffer) {
			return model.RebalancePlan{}, nil, errors.Newf(errors.ErrMarginSafety,
				"maintenance buffer %s below floor %s", margin.MaintenanceBufferPct, minBuffer)
		}
		if p.cfg.Capital.LeverageEnabled {
			cap := money.Min(margin.IntradayBuyingPower, margin.EffectiveBuyingPower)
			if deployable.GreaterThan(cap) {
				warnings = append(warnings, fmt.Sprintf(
					"deployable capital capped by buying power: wanted %s, capped to %s", deployable, cap))
				deployable = cap
			}
		}
	}

	// Step 3 — target and current dollar values.
	symbolSet := make(map[model.Symbol]struct{})
	for sym := range in.Consolidated.Weights {
		symbolSet[sym] = struct{}{}
	}
	for sym := range in.Snapshot.Positions {
		symbolSet[sym] = struct{}{}
	}

	currentValue := make(map[model.Symbol]decimal.Decimal, len(symbolSet))
	targetValue := make(map[model.Symbol]decimal.Decimal, len(symbolSet))
	for sym := range symbolSet {
		qty := in.Snapshot.Positions[sym]
		price := in.Snapshot.Prices[sym]
		if qty.IsPositive() && !price.IsPositive() {
			return model.RebalancePlan{}, nil, errors.Newf(errors.ErrMissingPrice,
				"no price available for held position %s", sym)
		}
		currentValue[sym] = qty.Mul(price)
		targetValue[sym] = in.Consolidated.Weights[sym].Mul(deployable)
	}

	// Step 4 — capital feasibility.
	buys := decimal.Zero
	sellProceeds := decimal.Zero
	for sym := range symbolSet {
		diff := targetValue[sym].Sub(currentValue[sym])
		if diff.IsPositive() {
			buys = buys.Add(diff)
		} else if diff.IsNegative() {
			sellProceeds = sellProceeds.Add(diff.Abs())
		}
	}

	leverageMode := p.cfg.Capital.LeverageEnabled && deployable.GreaterThan(equity)
	if leverageMode {
		netBuyNeeded := buys.Sub(sellProceeds)
		cap := money.Min(in.Snapshot.Margin.IntradayBuyingPower, in.Snapshot.Margin.EffectiveBuyingPower)
		if netBuyNeeded.GreaterThan(cap.Add(tolerance)) {
			return model.RebalancePlan{}, nil, errors.Newf(errors.ErrInsufficientCapital,
				"net buy needed %s exceeds available buying power %s", netBuyNeeded, cap)
		}
	} else {
		available := in.Snapshot.Cash.Add(sellProceeds).Add(tolerance)
		if buys.GreaterThan(available) {
			return model.RebalancePlan{}, nil, errors.Newf(errors.ErrInsufficientCapital,
				"buys of %s exceed available cash+proceeds of %s (deficit %s)",
				buys, available, buys.Sub(available))
		}
	}

	// Step 5 — per-symbol items, built in deterministic symbol order.
	sumCurrent := decimal.Zero
	sumTarget := decimal.Zero
	for sym := range symbolSet {
		sumCurrent = sumCurrent.Add(currentValue[sym])
		sumTarget = sumTarget.Add(targetValue[sym])
	}
	portfolioValueBasis := money.Max(sumCurrent, sumTarget)

	symbols := make([]model.Symbol, 0, len(symbolSet))
	for sym := range symbolSet {
		symbols = append(symbols, sym)
	}
	sort.Slice(symbols, func(i, j int) bool { return symbols[i] < symbols[j] })

	items := make([]model.RebalancePlanItem, 0, len(symbols))
	for _, sym := range symbols {
		tradeAmount := targetValue[sym].Sub(currentValue[sym])
		var action model.TradeAction
		switch {
		case tradeAmount.IsPositive():
			action = model.TradeBuy
		case tradeAmount.IsNegative():
			action = model.TradeSell
		default:
			action = model.TradeHold
		}

		currentWeight := decimal.Zero
		if portfolioValueBasis.IsPositive() {
			currentWeight = currentValue[sym].Div(portfolioValueBasis)
		}

		strategyID, ok := in.Consolidated.PrimaryStrategy(sym)
		if !ok {
			strategyID = model.StrategyID(p.cfg.DefaultStrategyID)
		}

		items = append(items, model.RebalancePlanItem{
			Symbol:          sym,
			CurrentWeight:   currentWeight,
			TargetWeight:    in.Consolidated.Weights[sym],
			WeightDiff:      in.Consolidated.Weights[sym].Sub(currentWeight),
			TargetValue:     targetValue[sym],
			CurrentValue:    currentValue[sym],
			TradeAmount:     tradeAmount,
			Action:          action,
			Priority:        priorityFor(tradeAmount.Abs()),
			StrategyID:      strategyID,
			FullLiquidation: action == model.TradeSell && targetValue[sym].IsZero() && currentValue[sym].IsPositive(),
		})
	}

	// Step 6 — minimum-trade suppression.
	minTradeThreshold := p.minTradeThreshold(equity)
	for i := range items {
		if items[i].Action == model.TradeHold {
			continue
		}
		if items[i].TradeAmount.Abs().LessThan(minTradeThreshold) {
			items[i].Action = model.TradeHold
			items[i].TradeAmount = decimal.Zero
			items[i].FullLiquidation = false
		}
	}

	// Step 7 — ordering: SELLs before BUYs, each group by descending priority.
	sort.SliceStable(items, func(i, j int) bool {
		gi, gj := actionGroup(items[i].Action), actionGroup(items[j].Action)
		if gi != gj {
			return gi < gj
		}
		return items[i].Priority < items[j].Priority
	})

	// Step 8 — degenerate result.
	if len(items) == 0 {
		cashProxy := model.Symbol(p.cfg.CashProxySymbol)
		items = append(items, model.RebalancePlanItem{
			Symbol:     cashProxy,
			Action:     model.TradeHold,
			Priority:   5,
			StrategyID: model.StrategyID(p.cfg.DefaultStrategyID),
		})
	}

	totalTradeValue := decimal.Zero
	for _, it := range items {
		totalTradeValue = totalTradeValue.Add(it.TradeAmount.Abs())
	}

	now := time.Now().UTC()
	plan := model.RebalancePlan{
		PlanID:              fmt.Sprintf("rebalance_%s_%d", in.CorrelationID, now.Unix()),
		CorrelationID:       in.CorrelationID,
		CausationID:         causationID,
		Timestamp:           now,
		Items:               items,
		TotalPortfolioValue: portfolioValueBasis,
		TotalTradeValue:     totalTradeValue,
		MaxDriftTolerance:   decimal.NewFromFloat(p.cfg.Trading.MaxDriftTolerance),
		ExecutionUrgency:    urgency,
	}

	p.logger.Info("rebalance plan built",
		zap.String("plan_id", plan.PlanID),
		zap.String("correlation_id", plan.CorrelationID),
		zap.Int("item_count", len(plan.Items)),
		zap.String("total_trade_value", plan.TotalTradeValue.String()))

	return plan, warnings, nil
}

// minTradeThreshold implements step 6's threshold rule: 1% of portfolio
// value (rounded half-up to cents) for small accounts, else the
// configured floor.
func (p *Planner) minTradeThreshold(portfolioValue decimal.Decimal) decimal.Decimal {
	if portfolioValue.LessThan(decimal.NewFromInt(1000)) {
		return money.RoundCentsHalfUp(portfolioValue.Mul(decimal.NewFromFloat(0.01)))
	}
	return p.cfg.MinTradeAmount()
}

func priorityFor(absTradeAmount decimal.Decimal) int {
	switch {
	case absTradeAmount.GreaterThanOrEqual(decimal.NewFromInt(10000)):
		return 1
	case absTradeAmount.GreaterThanOrEqual(decimal.NewFromInt(1000)):
		return 2
	case absTradeAmount.GreaterThanOrEqual(decimal.NewFromInt(100)):
		return 3
	case absTradeAmount.GreaterThanOrEqual(decimal.NewFromInt(50)):
		return 4
	default:
		return 5
	}
}

func actionGroup(a model.TradeAction) int {
	switch a {
	case model.TradeSell:
		return 0
	case model.TradeBuy:
		return 1
	default:
		return 2
	}
}
