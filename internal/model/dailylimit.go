package model

import "github.com/shopspring/decimal"

// DailyTradeLimitState is the process-wide circuit-breaker state for
// cumulative absolute trade value within the current UTC day.
type DailyTradeLimitState struct {
	DateKey         string // YYYY-MM-DD, UTC
	CumulativeValue decimal.Decimal
	DailyLimit      decimal.Decimal
}

// LimitCheck is the result of a daily-limit check against a proposed
// trade value.
type LimitCheck struct {
	IsWithinLimit      bool
	ProposedTradeValue decimal.Decimal
	CurrentCumulative  decimal.Decimal
	DailyLimit         decimal.Decimal
	Headroom           decimal.Decimal
	WouldExceedBy      decimal.Decimal
	CorrelationID      string
}
