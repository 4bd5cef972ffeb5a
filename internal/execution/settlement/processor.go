// Package settlement implements wait_for_settlement (spec.md §4.3.3):
// polling broker order status until every order in a batch reaches a
// terminal (or quasi-terminal) state, or a timeout elapses.
package settlement

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alchemiser/tradengine/internal/model"
	"github.com/alchemiser/tradengine/internal/ports"
)

// DefaultMaxWait and DefaultPollInterval mirror spec §4.3.3's defaults;
// callers normally pass the configured trading.settlement_timeout and
// trading.settlement_poll_interval instead.
const (
	DefaultMaxWait       = 60 * time.Second
	DefaultPollInterval  = 2 * time.Second
)

// Waiter polls an AccountPort for order status until a batch settles.
type Waiter struct {
	account ports.AccountPort
	logger  *zap.Logger
}

// NewWaiter builds a Waiter bound to account.
func NewWaiter(account ports.AccountPort, logger *zap.Logger) *Waiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Waiter{account: account, logger: logger}
}

// Result is wait_for_settlement's return value: whether every order
// settled before the timeout, and each order's final observed status.
type Result struct {
	AllSettled bool
	Statuses   map[string]model.OrderStatus
}

// WaitForSettlement polls every order in orderIDs at pollInterval until
// all reach a terminal state (model.TerminalOrderStatuses) or maxWait
// elapses. Orders still pending at timeout are returned with their last
// observed status and are never canceled here — "they may still fill"
// (spec §4.3.3).
func (w *Waiter) WaitForSettlement(ctx context.Context, orderIDs []string, maxWait, pollInterval time.Duration) Result {
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	statuses := make(map[string]model.OrderStatus, len(orderIDs))
	pending := make(map[string]bool, len(orderIDs))
	for _, id := range orderIDs {
		pending[id] = true
		statuses[id] = model.OrderNew
	}

	deadline := time.Now().Add(maxWait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	w.pollOnce(ctx, pending, statuses)
	for len(pending) > 0 && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			w.logPending(pending)
			return Result{AllSettled: len(pending) == 0, Statuses: statuses}
		case <-ticker.C:
			w.pollOnce(ctx, pending, statuses)
		}
	}

	if len(pending) > 0 {
		w.logPending(pending)
	}
	return Result{AllSettled: len(pending) == 0, Statuses: statuses}
}

// pollOnce checks every still-pending order concurrently and removes
// any that reached a terminal status from pending.
func (w *Waiter) pollOnce(ctx context.Context, pending map[string]bool, statuses map[string]model.OrderStatus) {
	var mu sync.Mutex
	var wg sync.WaitGroup

	ids := make([]string, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}

	for _, id := range ids {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := w.account.GetOrderStatus(ctx, id)
			if err != nil {
				w.logger.Warn("order status poll failed", zap.String("order_id", id), zap.Error(err))
				return
			}
			mu.Lock()
			defer mu.Unlock()
			statuses[id] = report.Status
			if model.TerminalOrderStatuses[report.Status] {
				delete(pending, id)
			}
		}()
	}
	wg.Wait()
}

func (w *Waiter) logPending(pending map[string]bool) {
	ids := make([]string, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	w.logger.Warn("settlement wait timed out with orders still pending",
		zap.Strings("order_ids", ids))
}
