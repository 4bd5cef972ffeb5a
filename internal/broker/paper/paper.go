// Package paper implements an in-memory stand-in for a real brokerage
// and market-data vendor, satisfying ports.AccountPort and
// ports.MarketDataPort. spec.md §1 explicitly scopes the real broker
// SDK and market-data vendor client out ("only their required
// capabilities are specified") — this is the deployable default for
// cmd/tradengine, following the teacher's own convention of wiring a
// hand-rolled Mock* implementation directly into its production
// cmd/server/main.go. A live deployment swaps this for a real vendor
// client behind the same two ports.
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/shopspring/decimal"

	"github.com/alchemiser/tradengine/internal/errors"
	"github.com/alchemiser/tradengine/internal/model"
	"github.com/alchemiser/tradengine/internal/ports"
)

// Broker simulates immediate fills at the last-known price for every
// symbol it is seeded with. It is safe for concurrent use.
type Broker struct {
	mu        sync.Mutex
	cash      decimal.Decimal
	positions map[model.Symbol]*position
	prices    map[model.Symbol]decimal.Decimal
	fills     map[string]fillRecord
}

type position struct {
	quantity decimal.Decimal
	avgCost  decimal.Decimal
}

// fillRecord remembers one synchronous fill so GetOrderStatus can
// report the same quantity/price the caller already received from
// SubmitOrder, instead of the generic zeroed report a truly async
// broker leaves behind until its own status poll catches up.
type fillRecord struct {
	quantity decimal.Decimal
	price    decimal.Decimal
}

// New seeds a Broker with startingCash and a fixed price book. Prices
// never move on their own; call SetPrice to simulate market movement
// between runs.
func New(startingCash decimal.Decimal, prices map[model.Symbol]decimal.Decimal) *Broker {
	seeded := make(map[model.Symbol]decimal.Decimal, len(prices))
	for sym, p := range prices {
		seeded[sym] = p
	}
	return &Broker{
		cash:      startingCash,
		positions: make(map[model.Symbol]*position),
		prices:    seeded,
		fills:     make(map[string]fillRecord),
	}
}

// SetPrice updates the simulated last-traded price for symbol.
func (b *Broker) SetPrice(symbol model.Symbol, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices[symbol] = price
}

func (b *Broker) GetAccountSnapshot(ctx context.Context) (ports.AccountSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	equity := b.cash
	for sym, pos := range b.positions {
		equity = equity.Add(pos.quantity.Mul(b.priceLocked(sym)))
	}
	return ports.AccountSnapshot{
		TotalValue:           equity,
		Cash:                 b.cash,
		Equity:               equity,
		BuyingPower:          b.cash,
		IntradayBuyingPower:  b.cash,
		EffectiveBuyingPower: b.cash,
		MarginMultiplier:     decimal.NewFromInt(1),
		IsPDTAccount:         false,
	}, nil
}

func (b *Broker) GetPositions(ctx context.Context) ([]ports.PositionDescriptor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]ports.PositionDescriptor, 0, len(b.positions))
	for sym, pos := range b.positions {
		if pos.quantity.IsZero() {
			continue
		}
		price := b.priceLocked(sym)
		marketValue := pos.quantity.Mul(price)
		costBasis := pos.quantity.Mul(pos.avgCost)
		side := model.SideBuy
		if pos.quantity.IsNegative() {
			side = model.SideSell
		}
		out = append(out, ports.PositionDescriptor{
			Symbol:        sym,
			Quantity:      pos.quantity,
			AvgEntryPrice: pos.avgCost,
			CurrentPrice:  price,
			MarketValue:   marketValue,
			UnrealizedPL:  marketValue.Sub(costBasis),
			Side:          side,
		})
	}
	return out, nil
}

// GetOpenOrders always returns empty: every order fills synchronously
// inside SubmitOrder, so nothing is ever left open.
func (b *Broker) GetOpenOrders(ctx context.Context) ([]ports.OrderDescriptor, error) {
	return nil, nil
}

func (b *Broker) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	return false, nil
}

func (b *Broker) LiquidatePosition(ctx context.Context, symbol model.Symbol) (string, error) {
	b.mu.Lock()
	pos, ok := b.positions[symbol]
	if !ok || pos.quantity.IsZero() {
		b.mu.Unlock()
		return "", errors.Newf(errors.ErrOrderRejected, "no open position in %s to liquidate", symbol)
	}
	qty := pos.quantity
	b.mu.Unlock()

	side := model.SideSell
	if qty.IsNegative() {
		side = model.SideBuy
	}
	return b.fill(symbol, side, qty.Abs())
}

func (b *Broker) SubmitOrder(ctx context.Context, req model.OrderRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	b.mu.Lock()
	price := b.priceLocked(req.Symbol)
	b.mu.Unlock()
	if !price.IsPositive() {
		return "", errors.Newf(errors.ErrMissingPrice, "paper broker has no price for %s", req.Symbol)
	}

	qty := decimal.Zero
	switch {
	case req.Quantity != nil:
		qty = *req.Quantity
	case req.Notional != nil:
		qty = req.Notional.Div(price)
	}
	return b.fill(req.Symbol, req.Side, qty)
}

func (b *Broker) fill(symbol model.Symbol, side model.OrderSide, qty decimal.Decimal) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	price := b.priceLocked(symbol)
	signedQty := qty
	cost := qty.Mul(price)
	if side == model.SideSell {
		signedQty = qty.Neg()
		cost = cost.Neg()
	}

	pos, ok := b.positions[symbol]
	if !ok {
		pos = &position{}
		b.positions[symbol] = pos
	}
	newQty := pos.quantity.Add(signedQty)
	if side == model.SideBuy && pos.quantity.Add(signedQty).IsPositive() && pos.quantity.Sign() >= 0 {
		totalCost := pos.quantity.Mul(pos.avgCost).Add(qty.Mul(price))
		pos.avgCost = totalCost.Div(newQty)
	}
	pos.quantity = newQty
	b.cash = b.cash.Sub(cost)

	// ksuid gives every fill a k-sortable, collision-free ID without
	// depending on a shared counter or wall-clock precision, mirroring
	// how a real broker assigns its own order IDs on submission.
	orderID := fmt.Sprintf("paper-%s", ksuid.New().String())
	b.fills[orderID] = fillRecord{quantity: qty, price: price}
	return orderID, nil
}

func (b *Broker) GetOrderStatus(ctx context.Context, orderID string) (ports.OrderStatusReport, error) {
	// Every order fills synchronously inside SubmitOrder/LiquidatePosition;
	// by the time the caller polls, it is already terminal.
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.fills[orderID]
	if !ok {
		return ports.OrderStatusReport{}, errors.Newf(errors.ErrOrderRejected, "unknown paper order %s", orderID)
	}
	return ports.OrderStatusReport{
		Status:         model.OrderFilled,
		FilledQuantity: rec.quantity,
		FilledAvgPrice: rec.price,
	}, nil
}

func (b *Broker) GetCurrentPrice(ctx context.Context, symbol model.Symbol) (decimal.Decimal, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	price := b.priceLocked(symbol)
	return price, price.IsPositive(), nil
}

func (b *Broker) GetLatestQuote(ctx context.Context, symbol model.Symbol) (ports.Quote, bool, error) {
	b.mu.Lock()
	price := b.priceLocked(symbol)
	b.mu.Unlock()
	if !price.IsPositive() {
		return ports.Quote{}, false, nil
	}
	spread := price.Mul(decimal.NewFromFloat(0.0005))
	return ports.Quote{
		Bid:       price.Sub(spread),
		Ask:       price.Add(spread),
		Timestamp: time.Now(),
	}, true, nil
}

func (b *Broker) IsFractionable(ctx context.Context, symbol model.Symbol) (bool, error) {
	return true, nil
}

func (b *Broker) priceLocked(symbol model.Symbol) decimal.Decimal {
	return b.prices[symbol]
}
