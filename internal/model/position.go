package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// StrategyPosition is the Strategy Tracker's single source of truth for
// one strategy's cost basis in one symbol. Long-only: Quantity never
// goes negative.
type StrategyPosition struct {
	StrategyID  StrategyID
	Symbol      Symbol
	Quantity    decimal.Decimal
	AverageCost decimal.Decimal
	TotalCost   decimal.Decimal
	LastUpdated time.Time
}

// IsFlat reports whether the position has been fully closed.
func (p StrategyPosition) IsFlat() bool {
	return p.Quantity.IsZero()
}
