// Package tracker implements the Strategy Tracker (spec.md §4.4):
// per-(strategy, symbol) cost-basis bookkeeping, realized/unrealized
// P&L computation, and the object-storage persistence layout described
// in spec §6.
package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/alchemiser/tradengine/internal/model"
	"github.com/alchemiser/tradengine/internal/tracker/store"
)

const defaultMaxRecentOrders = 1000

const (
	keyRecentOrders  = "strategy_orders/recent_orders.json"
	keyCurrentPositions = "strategy_positions/current_positions.json"
	keyRealizedPnL   = "strategy_positions/realized_pnl.json"
	dateKeyLayout    = "2006-01-02"
)

// DateKey formats t as the UTC date key used for daily archive objects.
func DateKey(t time.Time) string {
	return t.UTC().Format(dateKeyLayout)
}

// OrderLogEntry is one append-only record in the bounded order log.
type OrderLogEntry struct {
	OrderID    string          `json:"order_id"`
	StrategyID model.StrategyID `json:"strategy_id"`
	Symbol     model.Symbol    `json:"symbol"`
	Side       model.OrderSide `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Timestamp  time.Time       `json:"timestamp"`
}

// DailyPnLArchive is the richer daily archive shape supplemented from
// original_source's pnl_history schema (SPEC_FULL.md §C.2): a
// per-strategy breakdown plus a portfolio-level total, instead of the
// single aggregate spec §6 describes as the minimum.
type DailyPnLArchive struct {
	DateKey             string            `json:"date_key"`
	GeneratedAt         time.Time         `json:"generated_at"`
	PerStrategy         []model.StrategyPnL `json:"per_strategy"`
	PortfolioRealized   decimal.Decimal   `json:"portfolio_realized_pnl"`
	PortfolioUnrealized decimal.Decimal   `json:"portfolio_unrealized_pnl"`
	PortfolioTotal      decimal.Decimal   `json:"portfolio_total_pnl"`
}

// Tracker maintains in-memory strategy position/P&L state guarded by a
// single mutex; every mutation is followed by a persistence write
// (spec §4.4 Concurrency).
type Tracker struct {
	mu sync.Mutex

	positions    map[model.StrategyID]map[model.Symbol]*model.StrategyPosition
	realizedPnL  map[model.StrategyID]decimal.Decimal
	recentOrders []OrderLogEntry
	maxRecent    int

	defaultStrategyID model.StrategyID
	store             store.Store
	logger            *zap.Logger
}

// New builds an empty Tracker. Call Load to hydrate it from persisted
// state before first use.
func New(st store.Store, defaultStrategyID model.StrategyID, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		positions:         make(map[model.StrategyID]map[model.Symbol]*model.StrategyPosition),
		realizedPnL:       make(map[model.StrategyID]decimal.Decimal),
		maxRecent:         defaultMaxRecentOrders,
		defaultStrategyID: defaultStrategyID,
		store:             st,
		logger:            logger,
	}
}

// persistedPosition is the JSON wire shape for current_positions.json.
type persistedPosition struct {
	StrategyID  model.StrategyID `json:"strategy_id"`
	Symbol      model.Symbol     `json:"symbol"`
	Quantity    decimal.Decimal  `json:"quantity"`
	AverageCost decimal.Decimal  `json:"average_cost"`
	TotalCost   decimal.Decimal  `json:"total_cost"`
	LastUpdated time.Time        `json:"last_updated"`
}

// Load reads all three persisted documents into memory. On any parse
// failure it falls back to empty state for that document and logs a
// recoverable data-integrity warning (spec §4.4 "On load").
func (t *Tracker) Load(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if raw, err := t.store.Get(ctx, keyRecentOrders); err == nil {
		var orders []OrderLogEntry
		if jsonErr := json.Unmarshal(raw, &orders); jsonErr != nil {
			t.logger.Warn("recent_orders.json failed to parse; starting from empty", zap.Error(jsonErr))
		} else {
			t.recentOrders = orders
		}
	} else if err != store.ErrNotFound {
		t.logger.Warn("failed to load recent_orders.json; starting from empty", zap.Error(err))
	}

	if raw, err := t.store.Get(ctx, keyCurrentPositions); err == nil {
		var positions []persistedPosition
		if jsonErr := json.Unmarshal(raw, &positions); jsonErr != nil {
			t.logger.Warn("current_positions.json failed to parse; starting from empty", zap.Error(jsonErr))
		} else {
			for _, p := range positions {
				t.ensureStrategy(p.StrategyID)
				t.positions[p.StrategyID][p.Symbol] = &model.StrategyPosition{
					StrategyID:  p.StrategyID,
					Symbol:      p.Symbol,
					Quantity:    p.Quantity,
					AverageCost: p.AverageCost,
					TotalCost:   p.TotalCost,
					LastUpdated: p.LastUpdated,
				}
			}
		}
	} else if err != store.ErrNotFound {
		t.logger.Warn("failed to load current_positions.json; starting from empty", zap.Error(err))
	}

	if raw, err := t.store.Get(ctx, keyRealizedPnL); err == nil {
		var realized map[model.StrategyID]decimal.Decimal
		if jsonErr := json.Unmarshal(raw, &realized); jsonErr != nil {
			t.logger.Warn("realized_pnl.json failed to parse; starting from empty", zap.Error(jsonErr))
		} else {
			t.realizedPnL = realized
		}
	} else if err != store.ErrNotFound {
		t.logger.Warn("failed to load realized_pnl.json; starting from empty", zap.Error(err))
	}

	return nil
}

func (t *Tracker) ensureStrategy(id model.StrategyID) {
	if t.positions[id] == nil {
		t.positions[id] = make(map[model.Symbol]*model.StrategyPosition)
	}
}

// resolveStrategyID implements Open Question #1's resolution: when the
// caller has no strategy attribution for this fill (an empty ID, or a
// SELL tagged with defaultStrategyID, which the Planner assigns to
// symbols outside the run's ConsolidatedPortfolio) and defaultStrategyID
// holds no position in symbol, fall back to whichever strategy currently
// holds a position in symbol, then to defaultStrategyID.
func (t *Tracker) resolveStrategyID(strategyID model.StrategyID, symbol model.Symbol, side model.OrderSide) model.StrategyID {
	if strategyID != "" {
		if side != model.SideSell || strategyID != t.defaultStrategyID {
			return strategyID
		}
		if pos, ok := t.positions[strategyID][symbol]; ok && !pos.IsFlat() {
			return strategyID
		}
	}
	owners := make([]model.StrategyID, 0, 1)
	for sid, bySymbol := range t.positions {
		if pos, ok := bySymbol[symbol]; ok && !pos.IsFlat() {
			owners = append(owners, sid)
		}
	}
	if len(owners) == 1 {
		return owners[0]
	}
	if len(owners) > 1 {
		sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })
		return owners[0]
	}
	return t.defaultStrategyID
}

// RecordOrder appends orderID to the order log and updates the
// (strategyID, symbol) StrategyPosition per spec §4.4's BUY/SELL
// formulas, then persists all three documents.
func (t *Tracker) RecordOrder(ctx context.Context, orderID string, strategyID model.StrategyID, symbol model.Symbol, side model.OrderSide, quantity, price decimal.Decimal, timestamp time.Time) error {
	t.mu.Lock()

	strategyID = t.resolveStrategyID(strategyID, symbol, side)
	t.ensureStrategy(strategyID)

	pos, ok := t.positions[strategyID][symbol]
	if !ok {
		pos = &model.StrategyPosition{StrategyID: strategyID, Symbol: symbol}
		t.positions[strategyID][symbol] = pos
	}

	switch side {
	case model.SideBuy:
		t.applyBuy(pos, quantity, price)
	case model.SideSell:
		t.applySell(strategyID, pos, quantity, price)
	}
	pos.LastUpdated = timestamp

	t.recentOrders = append(t.recentOrders, OrderLogEntry{
		OrderID:    orderID,
		StrategyID: strategyID,
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		Price:      price,
		Timestamp:  timestamp,
	})
	if len(t.recentOrders) > t.maxRecent {
		t.recentOrders = t.recentOrders[len(t.recentOrders)-t.maxRecent:]
	}

	t.mu.Unlock()
	return t.persist(ctx)
}

// applyBuy implements spec §4.4's BUY formula.
func (t *Tracker) applyBuy(pos *model.StrategyPosition, quantity, price decimal.Decimal) {
	newTotalCost := pos.TotalCost.Add(quantity.Mul(price))
	newQuantity := pos.Quantity.Add(quantity)
	pos.TotalCost = newTotalCost
	pos.Quantity = newQuantity
	if newQuantity.IsPositive() {
		pos.AverageCost = newTotalCost.Div(newQuantity)
	}
}

// applySell implements spec §4.4's SELL formula: realized P&L accrues
// against the pre-sale average cost, which itself never changes on a
// partial sell (a single running average is FIFO-equivalent here).
func (t *Tracker) applySell(strategyID model.StrategyID, pos *model.StrategyPosition, quantity, price decimal.Decimal) {
	preSaleAvgCost := pos.AverageCost
	newQuantity := pos.Quantity.Sub(quantity)

	if newQuantity.Sign() <= 0 {
		saleProceeds := quantity.Mul(price)
		costBasisOfSold := pos.Quantity.Mul(preSaleAvgCost)
		t.realizedPnL[strategyID] = t.realizedPnL[strategyID].Add(saleProceeds.Sub(costBasisOfSold))
		pos.Quantity = decimal.Zero
		pos.AverageCost = decimal.Zero
		pos.TotalCost = decimal.Zero
		return
	}

	t.realizedPnL[strategyID] = t.realizedPnL[strategyID].Add(quantity.Mul(price.Sub(preSaleAvgCost)))
	pos.Quantity = newQuantity
	pos.TotalCost = newQuantity.Mul(preSaleAvgCost)
}

// GetStrategyPnL implements spec §4.4's get_strategy_pnl.
func (t *Tracker) GetStrategyPnL(strategyID model.StrategyID, currentPrices map[model.Symbol]decimal.Decimal) model.StrategyPnL {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.computePnLLocked(strategyID, currentPrices)
}

func (t *Tracker) computePnLLocked(strategyID model.StrategyID, currentPrices map[model.Symbol]decimal.Decimal) model.StrategyPnL {
	unrealized := decimal.Zero
	allocationValue := decimal.Zero
	positions := make([]model.StrategyPosition, 0, len(t.positions[strategyID]))

	symbols := make([]model.Symbol, 0, len(t.positions[strategyID]))
	for sym := range t.positions[strategyID] {
		symbols = append(symbols, sym)
	}
	sort.Slice(symbols, func(i, j int) bool { return symbols[i] < symbols[j] })

	for _, sym := range symbols {
		pos := t.positions[strategyID][sym]
		positions = append(positions, *pos)
		price, ok := currentPrices[sym]
		if !ok || pos.IsFlat() {
			continue
		}
		unrealized = unrealized.Add(pos.Quantity.Mul(price.Sub(pos.AverageCost)))
		allocationValue = allocationValue.Add(pos.Quantity.Mul(price))
	}

	return model.StrategyPnL{
		StrategyID:      strategyID,
		RealizedPnL:     t.realizedPnL[strategyID],
		UnrealizedPnL:   unrealized,
		Positions:       positions,
		AllocationValue: allocationValue,
	}
}

// ArchiveDailyPnL computes a DailyPnLArchive for dateKey and writes it
// to object storage. It is idempotent per date_key: if the archive
// object already exists, the write is skipped (spec §4.4).
func (t *Tracker) ArchiveDailyPnL(ctx context.Context, currentPrices map[model.Symbol]decimal.Decimal, dateKey string, now time.Time) (DailyPnLArchive, error) {
	archiveKey := fmt.Sprintf("strategy_pnl_history/%s.json", dateKey)

	exists, err := t.store.Exists(ctx, archiveKey+".gz")
	if err != nil {
		t.logger.Warn("failed to check archive existence; proceeding with write", zap.Error(err))
	} else if exists {
		t.logger.Info("daily P&L archive already exists; skipping", zap.String("date_key", dateKey))
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.buildArchiveLocked(currentPrices, dateKey, now), nil
	}

	t.mu.Lock()
	archive := t.buildArchiveLocked(currentPrices, dateKey, now)
	t.mu.Unlock()

	raw, err := json.Marshal(archive)
	if err != nil {
		return DailyPnLArchive{}, fmt.Errorf("marshal daily archive: %w", err)
	}
	if err := t.store.Put(ctx, archiveKey, raw, true); err != nil {
		return DailyPnLArchive{}, fmt.Errorf("persist daily archive: %w", err)
	}
	return archive, nil
}

// buildArchiveLocked computes the archive from in-memory state. Caller
// must hold t.mu.
func (t *Tracker) buildArchiveLocked(currentPrices map[model.Symbol]decimal.Decimal, dateKey string, now time.Time) DailyPnLArchive {
	ids := make([]model.StrategyID, 0, len(t.positions))
	for id := range t.positions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	perStrategy := make([]model.StrategyPnL, 0, len(ids))
	realized := decimal.Zero
	unrealized := decimal.Zero
	for _, id := range ids {
		pnl := t.computePnLLocked(id, currentPrices)
		perStrategy = append(perStrategy, pnl)
		realized = realized.Add(pnl.RealizedPnL)
		unrealized = unrealized.Add(pnl.UnrealizedPnL)
	}

	return DailyPnLArchive{
		DateKey:             dateKey,
		GeneratedAt:         now,
		PerStrategy:         perStrategy,
		PortfolioRealized:   realized,
		PortfolioUnrealized: unrealized,
		PortfolioTotal:      realized.Add(unrealized),
	}
}

// persist writes the three mutable documents back to the store. All three
// are copied under a single lock acquisition, then marshaled and written
// outside the lock to keep the critical section short; a momentary read
// of slightly-stale sibling state across the three writes is immaterial
// (spec §4.4 Concurrency).
func (t *Tracker) persist(ctx context.Context) error {
	t.mu.Lock()
	ordersCopy := make([]OrderLogEntry, len(t.recentOrders))
	copy(ordersCopy, t.recentOrders)

	var positionsCopy []persistedPosition
	for _, bySymbol := range t.positions {
		for _, pos := range bySymbol {
			positionsCopy = append(positionsCopy, persistedPosition{
				StrategyID:  pos.StrategyID,
				Symbol:      pos.Symbol,
				Quantity:    pos.Quantity,
				AverageCost: pos.AverageCost,
				TotalCost:   pos.TotalCost,
				LastUpdated: pos.LastUpdated,
			})
		}
	}

	realizedCopy := make(map[model.StrategyID]decimal.Decimal, len(t.realizedPnL))
	for k, v := range t.realizedPnL {
		realizedCopy[k] = v
	}
	t.mu.Unlock()

	if raw, err := json.Marshal(ordersCopy); err != nil {
		return fmt.Errorf("marshal recent orders: %w", err)
	} else if err := t.store.Put(ctx, keyRecentOrders, raw, false); err != nil {
		return fmt.Errorf("persist recent orders: %w", err)
	}

	if raw, err := json.Marshal(positionsCopy); err != nil {
		return fmt.Errorf("marshal positions: %w", err)
	} else if err := t.store.Put(ctx, keyCurrentPositions, raw, false); err != nil {
		return fmt.Errorf("persist positions: %w", err)
	}

	if raw, err := json.Marshal(realizedCopy); err != nil {
		return fmt.Errorf("marshal realized pnl: %w", err)
	} else if err := t.store.Put(ctx, keyRealizedPnL, raw, false); err != nil {
		return fmt.Errorf("persist realized pnl: %w", err)
	}
	return nil
}
