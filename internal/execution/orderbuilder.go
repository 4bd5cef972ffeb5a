package execution

import (
	"github.com/shopspring/decimal"

	"github.com/alchemiser/tradengine/internal/model"
	"github.com/alchemiser/tradengine/internal/money"
)

// BuiltOrder is the order-placement policy's resolved output for one
// plan item (spec §4.3.1): either a ready-to-submit OrderRequest, or a
// skip with a reason (e.g. "rounded_to_zero").
type BuiltOrder struct {
	Request model.OrderRequest
	Skipped bool
	Reason  string
}

// BuildOrder resolves order type and quantity/notional for item,
// given the current price, whether the symbol is fractionable, the
// chosen pricing decision, and run-wide order defaults.
func BuildOrder(
	item model.RebalancePlanItem,
	price decimal.Decimal,
	fractionable bool,
	pricing PricingDecision,
	tif model.TimeInForce,
	extendedHours bool,
) BuiltOrder {
	side := model.SideBuy
	if item.Action == model.TradeSell {
		side = model.SideSell
	}

	req := model.OrderRequest{
		Symbol:        item.Symbol,
		Side:          side,
		OrderType:     pricing.OrderType,
		TimeInForce:   tif,
		ExtendedHours: extendedHours,
		StrategyID:    item.StrategyID,
		Priority:      item.Priority,
	}
	if pricing.OrderType == model.OrderTypeLimit {
		limitPrice := pricing.LimitPrice
		req.LimitPrice = &limitPrice
	}

	notionalAmount := item.TradeAmount.Abs()

	switch {
	case side == model.SideBuy && !fractionable:
		// Non-fractionable BUY: submit a notional order and let the
		// broker compute whole shares, unless we're on the limit-order
		// path, which requires an explicit whole-share quantity.
		if pricing.OrderType == model.OrderTypeLimit {
			qty := money.FloorWholeShares(notionalAmount.Div(price))
			if qty.IsZero() {
				return BuiltOrder{Skipped: true, Reason: "rounded_to_zero"}
			}
			req.Quantity = &qty
			return BuiltOrder{Request: req}
		}
		req.Notional = &notionalAmount
		return BuiltOrder{Request: req}

	case side == model.SideBuy:
		// Fractionable BUY: quantity-based, floored to 6dp.
		qty := money.FloorShares(notionalAmount.Div(price))
		if qty.IsZero() {
			return BuiltOrder{Skipped: true, Reason: "rounded_to_zero"}
		}
		req.Quantity = &qty
		return BuiltOrder{Request: req}

	default:
		// SELLs are always quantity-based. A SELL with
		// item.FullLiquidation set never reaches here: the engine
		// routes it through AccountPort.LiquidatePosition instead.
		qty := notionalAmount.Div(price)
		if !fractionable {
			qty = money.FloorWholeShares(qty)
		} else {
			qty = money.FloorShares(qty)
		}
		if qty.IsZero() {
			return BuiltOrder{Skipped: true, Reason: "rounded_to_zero"}
		}
		req.Quantity = &qty
		return BuiltOrder{Request: req}
	}
}
