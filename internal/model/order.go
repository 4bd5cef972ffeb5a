package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alchemiser/tradengine/internal/errors"
)

// OrderSide is the buy/sell direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderType selects how the broker should interpret price.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// TimeInForce mirrors the broker's wire enum.
type TimeInForce string

const (
	TIFDay TimeInForce = "day"
	TIFGTC TimeInForce = "gtc"
	TIFIOC TimeInForce = "ioc"
	TIFFOK TimeInForce = "fok"
)

// OrderRequest is submitted to the broker. Exactly one of Quantity or
// Notional must be set (spec §3).
type OrderRequest struct {
	Symbol         Symbol
	Side           OrderSide
	Quantity       *decimal.Decimal // shares, up to 6 dp
	Notional       *decimal.Decimal // dollars, 2 dp
	OrderType      OrderType
	LimitPrice     *decimal.Decimal // required iff OrderType == limit
	TimeInForce    TimeInForce
	ExtendedHours  bool

	// StrategyID and Priority are carried for attribution and
	// submission ordering; they are not part of the broker wire schema.
	StrategyID StrategyID
	Priority   int
}

// Validate enforces "exactly one of quantity/notional set" and the
// limit-price-iff-limit-order rule.
func (r OrderRequest) Validate() error {
	hasQty := r.Quantity != nil
	hasNotional := r.Notional != nil
	if hasQty == hasNotional {
		return errors.New(errors.ErrInvalidStrategyConfig, "exactly one of quantity or notional must be set")
	}
	if r.OrderType == OrderTypeLimit && r.LimitPrice == nil {
		return errors.New(errors.ErrInvalidStrategyConfig, "limit orders require a limit price")
	}
	if r.OrderType == OrderTypeMarket && r.LimitPrice != nil {
		return errors.New(errors.ErrInvalidStrategyConfig, "market orders must not carry a limit price")
	}
	return nil
}

// OrderStatus is the broker-reported lifecycle state of a submitted order.
type OrderStatus string

const (
	OrderNew             OrderStatus = "NEW"
	OrderSubmitted       OrderStatus = "SUBMITTED"
	OrderAccepted        OrderStatus = "ACCEPTED"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCanceled        OrderStatus = "CANCELED"
	OrderRejected        OrderStatus = "REJECTED"
	OrderExpired         OrderStatus = "EXPIRED"
	OrderError           OrderStatus = "ERROR"
)

// TerminalOrderStatuses are the statuses wait_for_settlement treats as
// settled (spec §4.3.3). PARTIALLY_FILLED is quasi-terminal: settled
// for phase-sequencing purposes, but the remainder is left to the broker.
var TerminalOrderStatuses = map[OrderStatus]bool{
	OrderFilled:          true,
	OrderPartiallyFilled: true,
	OrderCanceled:        true,
	OrderRejected:        true,
	OrderExpired:         true,
	OrderError:           true,
}

// FilledOrder reports a broker fill back into the pipeline for tracking.
type FilledOrder struct {
	OrderID       string
	Symbol        Symbol
	Side          OrderSide
	FilledQty     decimal.Decimal
	FilledAvgPrice decimal.Decimal
	Status        OrderStatus
	StrategyID    StrategyID
	Timestamp     time.Time
}
