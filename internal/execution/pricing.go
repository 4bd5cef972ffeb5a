package execution

import (
	"github.com/shopspring/decimal"

	"github.com/alchemiser/tradengine/internal/model"
	"github.com/alchemiser/tradengine/internal/money"
	"github.com/alchemiser/tradengine/internal/ports"
)

var (
	oneCent        = decimal.NewFromFloat(0.01)
	tightSpreadCap = decimal.NewFromFloat(0.03)
	wideSpreadFloor = decimal.NewFromFloat(0.05)
	tightBpsCap    = decimal.NewFromInt(10)
	wideBpsFloor   = decimal.NewFromInt(100)
)

// spreadQuality classifies a bid/ask spread per spec §4.3.1.
type spreadQuality string

const (
	spreadTight  spreadQuality = "tight"
	spreadNormal spreadQuality = "normal"
	spreadWide   spreadQuality = "wide"
)

// insideFactorTable is the exact table from spec §4.3.1.
var insideFactorTable = map[spreadQuality]map[bool]decimal.Decimal{
	spreadTight: {
		false: decimal.NewFromFloat(0.6), // low/normal urgency
		true:  decimal.NewFromFloat(0.8), // high/urgent urgency
	},
	spreadNormal: {
		false: decimal.NewFromFloat(0.3),
		true:  decimal.NewFromFloat(0.5),
	},
	spreadWide: {
		false: decimal.NewFromFloat(0.1),
		true:  decimal.NewFromFloat(0.2),
	},
}

// PricingDecision is the engine's resolved order-type and price choice
// for one plan item.
type PricingDecision struct {
	OrderType  model.OrderType
	LimitPrice decimal.Decimal // valid only when OrderType == limit
	Reasoning  string
}

func isAggressiveUrgency(u model.ExecutionUrgency) bool {
	return u == model.UrgencyHigh || u == model.UrgencyUrgent
}

func classifySpread(bid, ask decimal.Decimal) spreadQuality {
	spread := ask.Sub(bid)
	mid := bid.Add(ask).Div(decimal.NewFromInt(2))
	spreadBps := spread.Div(mid).Mul(decimal.NewFromInt(10000))

	if spread.LessThanOrEqual(tightSpreadCap) || spreadBps.LessThanOrEqual(tightBpsCap) {
		return spreadTight
	}
	if spread.GreaterThan(wideSpreadFloor) || spreadBps.GreaterThan(wideBpsFloor) {
		return spreadWide
	}
	return spreadNormal
}

// SmartLimitPrice implements spec §4.3.1's smart limit order pricing.
// It returns a market-order decision when the quote is unusable or
// slippage would exceed maxSlippageBps.
func SmartLimitPrice(quote ports.Quote, action model.TradeAction, urgency model.ExecutionUrgency, maxSlippageBps decimal.Decimal) PricingDecision {
	bid, ask := quote.Bid, quote.Ask
	if !bid.IsPositive() || !ask.IsPositive() || bid.GreaterThanOrEqual(ask) {
		return PricingDecision{OrderType: model.OrderTypeMarket, Reasoning: "unusable quote; falling back to market"}
	}

	spread := ask.Sub(bid)
	mid := bid.Add(ask).Div(decimal.NewFromInt(2))
	quality := classifySpread(bid, ask)
	insideFactor := insideFactorTable[quality][isAggressiveUrgency(urgency)]

	var limit decimal.Decimal
	switch action {
	case model.TradeBuy:
		limit = ask.Sub(spread.Mul(insideFactor))
		limit = money.Max(limit, bid.Add(oneCent))
		if urgency == model.UrgencyUrgent {
			limit = limit.Add(oneCent)
		}
	case model.TradeSell:
		limit = bid.Add(spread.Mul(insideFactor))
		limit = money.Min(limit, ask.Sub(oneCent))
		if urgency == model.UrgencyUrgent {
			limit = limit.Sub(oneCent)
		}
	default:
		return PricingDecision{OrderType: model.OrderTypeMarket, Reasoning: "no directional action; market fallback"}
	}
	limit = money.RoundCentsHalfUp(limit)

	slippageBps := money.BpsOfMid(limit, mid)
	if slippageBps.GreaterThan(maxSlippageBps) {
		return PricingDecision{OrderType: model.OrderTypeMarket, Reasoning: "limit price slippage exceeds configured ceiling; falling back to market"}
	}

	return PricingDecision{OrderType: model.OrderTypeLimit, LimitPrice: limit, Reasoning: string(quality) + " spread, inside_factor " + insideFactor.String()}
}

// AggressiveMarketableLimit implements spec §4.3.1's alternate policy
// for leveraged ETFs or urgent urgency, prioritizing fill probability
// over a small amount of slippage.
func AggressiveMarketableLimit(quote ports.Quote, action model.TradeAction) decimal.Decimal {
	switch action {
	case model.TradeBuy:
		return money.RoundCentsHalfUp(quote.Ask.Add(oneCent))
	case model.TradeSell:
		return money.RoundCentsHalfUp(money.Max(quote.Bid.Sub(oneCent), oneCent))
	default:
		return decimal.Zero
	}
}
