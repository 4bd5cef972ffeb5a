package execution

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/alchemiser/tradengine/internal/errors"
	"github.com/alchemiser/tradengine/internal/telemetry"
)

// BrokerBreaker wraps broker-facing calls with a connectivity circuit
// breaker (spec §4.3.5 "complete loss of broker connectivity -> fatal").
// It is distinct from DailyLimitBreaker: this one trips on repeated
// failed broker calls, not on trade value. Every error the wrapped call
// returns counts as a failure, including a broker rejection.
type BrokerBreaker struct {
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewBrokerBreaker builds a breaker that opens after 5 consecutive
// failures and probes again after 30s in the half-open state. collector
// may be nil, in which case trips are only logged.
func NewBrokerBreaker(logger *zap.Logger, collector *telemetry.Collector) *BrokerBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	settings := gobreaker.Settings{
		Name:        "broker-connectivity",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("broker circuit breaker state change",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
			if collector != nil && to == gobreaker.StateOpen {
				collector.BreakerTripped(name)
			}
		},
	}
	return &BrokerBreaker{cb: gobreaker.NewCircuitBreaker(settings), logger: logger}
}

// Call executes fn through the breaker. When the breaker is open, it
// returns a BrokerUnavailableError without invoking fn.
func (b *BrokerBreaker) Call(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return "", errors.Wrap(err, errors.ErrBrokerUnavailable, "broker connectivity circuit breaker is open")
		}
		return "", err
	}
	return result.(string), nil
}
