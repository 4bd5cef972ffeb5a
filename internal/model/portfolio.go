package model

import "github.com/shopspring/decimal"

// MarginInfo mirrors the broker's margin/buying-power disclosure.
type MarginInfo struct {
	BuyingPower            decimal.Decimal
	IntradayBuyingPower    decimal.Decimal
	EffectiveBuyingPower   decimal.Decimal
	Multiplier             decimal.Decimal
	MarginUtilizationPct   decimal.Decimal
	MaintenanceBufferPct   decimal.Decimal
	IsPDTAccount           bool
}

// Position is one symbol's holding within a PortfolioSnapshot.
type Position struct {
	Symbol   Symbol
	Quantity decimal.Decimal
}

// PortfolioSnapshot is a read-only value object captured from the
// Account Port at the start of a run and refreshed after SELL
// settlement.
type PortfolioSnapshot struct {
	TotalValue decimal.Decimal
	Cash       decimal.Decimal
	Positions  map[Symbol]decimal.Decimal // symbol -> quantity
	Prices     map[Symbol]decimal.Decimal // symbol -> price
	Margin     MarginInfo
}

// PositionValue returns quantity(symbol) * price(symbol), or zero if
// either is absent.
func (p PortfolioSnapshot) PositionValue(sym Symbol) decimal.Decimal {
	qty, ok := p.Positions[sym]
	if !ok {
		return decimal.Zero
	}
	price, ok := p.Prices[sym]
	if !ok {
		return decimal.Zero
	}
	return qty.Mul(price)
}
