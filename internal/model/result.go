package model

import (
	"time"

	"github.com/alchemiser/tradengine/internal/errors"
)

// ExecutionResult is the Execution Engine's report of one plan's
// submission outcome (spec §4.3 step 6).
type ExecutionResult struct {
	Success        bool
	FilledOrders   []FilledOrder
	OrdersCanceled int
	PerSymbol      map[Symbol]string // symbol -> outcome description
	Warnings       []string
	Errors         []*errors.TradingError
}

// TradeRunResult is the single public result of one invocation of
// run() (spec §6 Invocation surface).
type TradeRunResult struct {
	Success             bool
	CorrelationID       string
	StartedAt           time.Time
	CompletedAt         time.Time
	SignalsEmitted      map[StrategyID][]StrategySignal
	ConsolidatedPortfolio *ConsolidatedPortfolio
	RebalancePlan       *RebalancePlan
	OrdersExecuted      []FilledOrder
	OrdersCanceled      int
	Warnings            []string
	Error               *errors.TradingError
}

// ExitCode maps the result onto the CLI exit-code convention of spec §6.
func (r TradeRunResult) ExitCode() int {
	if r.Success {
		return 0
	}
	if r.Error != nil && r.Error.Code == errors.ErrDailyTradeLimitExceeded {
		return 2
	}
	if r.Error != nil && errors.IsFatalForRun(r.Error.Code) &&
		(r.Error.Code == errors.ErrMissingCredentials ||
			r.Error.Code == errors.ErrInvalidStrategyConfig ||
			r.Error.Code == errors.ErrInvalidAllocationSum) {
		return 3
	}
	return 1
}
