package model

import "github.com/shopspring/decimal"

// StrategyPnL is a point-in-time P&L computation for one strategy.
type StrategyPnL struct {
	StrategyID      StrategyID
	RealizedPnL     decimal.Decimal
	UnrealizedPnL   decimal.Decimal
	Positions       []StrategyPosition
	AllocationValue decimal.Decimal
}

// Total is realized + unrealized.
func (p StrategyPnL) Total() decimal.Decimal {
	return p.RealizedPnL.Add(p.UnrealizedPnL)
}

// TotalReturnPct is Total()/AllocationValue, or zero if AllocationValue <= 0.
func (p StrategyPnL) TotalReturnPct() decimal.Decimal {
	if !p.AllocationValue.IsPositive() {
		return decimal.Zero
	}
	return p.Total().Div(p.AllocationValue)
}
