// Package errors implements the error taxonomy for the trading engine:
// configuration, data, capital, circuit-breaker, order, and tracker
// errors, each carrying a stable code, a human message, and a detail
// bag for propagation to TradeRunResult without leaking a stack trace.
package errors

import (
	"fmt"
	"time"
)

// ErrorCode identifies the taxon of a TradingError.
type ErrorCode string

const (
	// Configuration errors — fatal at startup.
	ErrMissingCredentials   ErrorCode = "MISSING_CREDENTIALS"
	ErrInvalidStrategyConfig ErrorCode = "INVALID_STRATEGY_CONFIG"
	ErrInvalidAllocationSum ErrorCode = "INVALID_ALLOCATION_SUM"

	// Data errors — fatal for the run.
	ErrMissingPrice          ErrorCode = "MISSING_PRICE"
	ErrMissingMarginData     ErrorCode = "MISSING_MARGIN_DATA"
	ErrUnparseableBrokerResp ErrorCode = "UNPARSEABLE_BROKER_RESPONSE"

	// Capital errors — fatal for the plan.
	ErrInsufficientCapital ErrorCode = "INSUFFICIENT_CAPITAL"
	ErrMarginSafety        ErrorCode = "MARGIN_SAFETY_EXCEEDED"
	ErrInsufficientMargin  ErrorCode = "INSUFFICIENT_MARGIN_DATA"
	ErrInvalidPortfolio    ErrorCode = "INVALID_PORTFOLIO"

	// Circuit-breaker trips — fatal for remaining submissions.
	ErrDailyTradeLimitExceeded ErrorCode = "DAILY_TRADE_LIMIT_EXCEEDED"
	ErrBrokerUnavailable       ErrorCode = "BROKER_UNAVAILABLE"

	// Order errors.
	ErrOrderRejected  ErrorCode = "ORDER_REJECTED"
	ErrOrderTransient ErrorCode = "ORDER_TRANSIENT"
	ErrOrderTimeout   ErrorCode = "ORDER_TIMEOUT"

	// Tracker errors.
	ErrPersistenceWrite ErrorCode = "TRACKER_PERSISTENCE_WRITE"
	ErrPersistenceRead  ErrorCode = "TRACKER_PERSISTENCE_READ"
)

// TradingError is a structured error carrying a code, message, optional
// cause, and a detail bag for correlation/causation/component context.
type TradingError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

func (e *TradingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *TradingError) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a key/value pair to the error's detail bag and
// returns the error for chaining.
func (e *TradingError) WithDetail(key string, value interface{}) *TradingError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a TradingError with the given code and message.
func New(code ErrorCode, message string) *TradingError {
	return &TradingError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// Newf creates a TradingError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *TradingError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with a TradingError of the given code.
func Wrap(err error, code ErrorCode, message string) *TradingError {
	if err == nil {
		return nil
	}
	return &TradingError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// Wrapf wraps an existing error with a formatted TradingError.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *TradingError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// As reports whether err (or something it wraps) is a *TradingError and
// if so, assigns it to target.
func As(err error, target **TradingError) bool {
	if err == nil {
		return false
	}
	if tradingErr, ok := err.(*TradingError); ok {
		*target = tradingErr
		return true
	}
	if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
		return As(unwrapper.Unwrap(), target)
	}
	return false
}

// Code extracts the ErrorCode from err, or "" if err is not a TradingError.
func Code(err error) ErrorCode {
	var tradingErr *TradingError
	if As(err, &tradingErr) {
		return tradingErr.Code
	}
	return ""
}

// IsFatalForRun reports whether the error code always aborts the whole run.
func IsFatalForRun(code ErrorCode) bool {
	switch code {
	case ErrMissingCredentials, ErrInvalidStrategyConfig, ErrInvalidAllocationSum,
		ErrMissingPrice, ErrMissingMarginData, ErrUnparseableBrokerResp,
		ErrInsufficientCapital, ErrMarginSafety, ErrInsufficientMargin, ErrInvalidPortfolio,
		ErrDailyTradeLimitExceeded, ErrBrokerUnavailable:
		return true
	default:
		return false
	}
}
