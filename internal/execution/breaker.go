package execution

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alchemiser/tradengine/internal/errors"
	"github.com/alchemiser/tradengine/internal/model"
)

// DailyLimitBreaker is the process-wide daily trade-value circuit
// breaker (spec §4.3.2): a mutex-guarded DailyTradeLimitState that
// resets on UTC day rollover.
type DailyLimitBreaker struct {
	mu          sync.Mutex
	dateKey     string
	cumulative  decimal.Decimal
	dailyLimit  decimal.Decimal
}

// NewDailyLimitBreaker builds a breaker with the given limit, keyed to
// the current UTC date.
func NewDailyLimitBreaker(dailyLimit decimal.Decimal) *DailyLimitBreaker {
	return &DailyLimitBreaker{
		dateKey:    utcDateKey(time.Now()),
		dailyLimit: dailyLimit,
	}
}

func utcDateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// rolloverLocked resets cumulative value on a UTC date change. Caller
// must hold mu.
func (b *DailyLimitBreaker) rolloverLocked() {
	today := utcDateKey(time.Now())
	if today != b.dateKey {
		b.dateKey = today
		b.cumulative = decimal.Zero
	}
}

// CheckLimit implements check_limit(proposed_value) -> LimitCheck.
func (b *DailyLimitBreaker) CheckLimit(correlationID string, proposed decimal.Decimal) model.LimitCheck {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked()

	headroom := b.dailyLimit.Sub(b.cumulative)
	wouldExceedBy := decimal.Max(decimal.Zero, b.cumulative.Add(proposed).Sub(b.dailyLimit))
	return model.LimitCheck{
		IsWithinLimit:      proposed.LessThanOrEqual(headroom),
		ProposedTradeValue: proposed,
		CurrentCumulative:  b.cumulative,
		DailyLimit:         b.dailyLimit,
		Headroom:           headroom,
		WouldExceedBy:      wouldExceedBy,
		CorrelationID:      correlationID,
	}
}

// AssertWithinLimit calls CheckLimit and returns a fatal
// DailyTradeLimitExceededError if the proposed value would breach the
// daily cap. Per spec §4.3.2, this error is fatal for the run: already
// submitted orders continue to settle, but no new ones are placed.
func (b *DailyLimitBreaker) AssertWithinLimit(correlationID string, proposed decimal.Decimal) error {
	check := b.CheckLimit(correlationID, proposed)
	if check.IsWithinLimit {
		return nil
	}
	return errors.Newf(errors.ErrDailyTradeLimitExceeded,
		"proposed trade value %s would exceed daily limit %s (cumulative %s, headroom %s)",
		check.ProposedTradeValue, check.DailyLimit, check.CurrentCumulative, check.Headroom).
		WithDetail("proposed", check.ProposedTradeValue.String()).
		WithDetail("cumulative", check.CurrentCumulative.String()).
		WithDetail("limit", check.DailyLimit.String()).
		WithDetail("headroom", check.Headroom.String())
}

// RecordTrade implements record_trade(filled_value) -> cumulative += |filled_value|.
func (b *DailyLimitBreaker) RecordTrade(filledValue decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked()
	b.cumulative = b.cumulative.Add(filledValue.Abs())
}

// State returns a snapshot of the current DailyTradeLimitState.
func (b *DailyLimitBreaker) State() model.DailyTradeLimitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked()
	return model.DailyTradeLimitState{
		DateKey:         b.dateKey,
		CumulativeValue: b.cumulative,
		DailyLimit:      b.dailyLimit,
	}
}
