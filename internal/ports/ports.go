// Package ports defines the external collaborator boundaries of the
// pipeline (spec.md §4.5): the Account Port and the Market Data Port.
// Both are allowed to block and must be called with a surrounding
// timeout; neither is second-guessed for its own ~60s TTL caching by
// the core (that's provided here as an adapter, not assumed of every
// implementation).
package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alchemiser/tradengine/internal/model"
)

// AccountSnapshot is the raw shape returned by AccountPort.GetAccountSnapshot.
type AccountSnapshot struct {
	TotalValue             decimal.Decimal
	Cash                   decimal.Decimal
	Equity                 decimal.Decimal
	BuyingPower            decimal.Decimal
	IntradayBuyingPower    decimal.Decimal
	EffectiveBuyingPower   decimal.Decimal
	MarginMultiplier       decimal.Decimal
	IsPDTAccount           bool
	MarginUtilizationPct   decimal.Decimal
	MaintenanceBufferPct   decimal.Decimal
}

// PositionDescriptor is one broker-reported position.
type PositionDescriptor struct {
	Symbol          model.Symbol
	Quantity        decimal.Decimal
	AvgEntryPrice   decimal.Decimal
	CurrentPrice    decimal.Decimal
	MarketValue     decimal.Decimal
	UnrealizedPL    decimal.Decimal
	UnrealizedPLPct decimal.Decimal
	Side            model.OrderSide
}

// OrderDescriptor is a broker-reported open order, used to identify
// stale orders to cancel before a new plan is submitted.
type OrderDescriptor struct {
	OrderID string
	Symbol  model.Symbol
	Status  model.OrderStatus
}

// OrderStatusReport is the broker's current view of a submitted order:
// its lifecycle status plus whatever fill quantity/price is known so
// far (both zero until a fill occurs).
type OrderStatusReport struct {
	Status         model.OrderStatus
	FilledQuantity decimal.Decimal
	FilledAvgPrice decimal.Decimal
}

// AccountPort is the broker's account and order-management surface.
// Implementations own their own locking and are safe for concurrent
// use; every method may block and must be called with a timeout.
type AccountPort interface {
	GetAccountSnapshot(ctx context.Context) (AccountSnapshot, error)
	GetPositions(ctx context.Context) ([]PositionDescriptor, error)
	GetOpenOrders(ctx context.Context) ([]OrderDescriptor, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
	LiquidatePosition(ctx context.Context, symbol model.Symbol) (string, error)
	SubmitOrder(ctx context.Context, req model.OrderRequest) (string, error)
	GetOrderStatus(ctx context.Context, orderID string) (OrderStatusReport, error)
}

// Quote is a bid/ask snapshot.
type Quote struct {
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	BidSize   decimal.Decimal
	AskSize   decimal.Decimal
	Timestamp time.Time
}

// MarketDataPort supplies prices, quotes, and fractionability.
type MarketDataPort interface {
	GetCurrentPrice(ctx context.Context, symbol model.Symbol) (decimal.Decimal, bool, error)
	GetLatestQuote(ctx context.Context, symbol model.Symbol) (Quote, bool, error)
	IsFractionable(ctx context.Context, symbol model.Symbol) (bool, error)
}
