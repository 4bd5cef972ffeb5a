package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeAction is the resolved per-item instruction in a RebalancePlan.
type TradeAction string

const (
	TradeBuy  TradeAction = "BUY"
	TradeSell TradeAction = "SELL"
	TradeHold TradeAction = "HOLD"
)

// ExecutionUrgency influences smart-pricing aggressiveness (spec §4.3.1).
type ExecutionUrgency string

const (
	UrgencyLow    ExecutionUrgency = "low"
	UrgencyNormal ExecutionUrgency = "normal"
	UrgencyHigh   ExecutionUrgency = "high"
	UrgencyUrgent ExecutionUrgency = "urgent"
)

// RebalancePlanItem is one symbol's trade instruction within a plan.
type RebalancePlanItem struct {
	Symbol        Symbol
	CurrentWeight decimal.Decimal
	TargetWeight  decimal.Decimal
	WeightDiff    decimal.Decimal
	TargetValue   decimal.Decimal
	CurrentValue  decimal.Decimal
	TradeAmount   decimal.Decimal // signed: positive BUY, negative SELL, zero HOLD
	Action        TradeAction
	Priority      int // 1 (highest) .. 5 (lowest)
	StrategyID    StrategyID

	// FullLiquidation marks a SELL that exits the symbol entirely (the
	// plan's target weight is zero), so the engine routes it through
	// AccountPort.LiquidatePosition instead of a sized order (spec §4.3.1).
	FullLiquidation bool
}

// RebalancePlan is the Planner's output: an ordered, fully-costed list
// of trades plus run metadata for tracing.
type RebalancePlan struct {
	PlanID             string
	CorrelationID      string
	CausationID        string
	Timestamp          time.Time
	Items              []RebalancePlanItem
	TotalPortfolioValue decimal.Decimal
	TotalTradeValue    decimal.Decimal
	MaxDriftTolerance  decimal.Decimal
	ExecutionUrgency   ExecutionUrgency
}

// NonHoldItems returns the items whose action is BUY or SELL.
func (p RebalancePlan) NonHoldItems() []RebalancePlanItem {
	out := make([]RebalancePlanItem, 0, len(p.Items))
	for _, it := range p.Items {
		if it.Action != TradeHold {
			out = append(out, it)
		}
	}
	return out
}
