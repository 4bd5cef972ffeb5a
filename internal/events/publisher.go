// Package events implements fire-and-forget publication of a finished
// run's TradeRunResult (spec.md §9 Design Notes: "events are an
// observability side effect, never a dependency of run()'s own
// outcome"). Publication happens strictly after run() has returned.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/alchemiser/tradengine/internal/model"
)

// RunResultPublisher publishes a finished run's result somewhere
// downstream. Every implementation must never block run()'s caller nor
// surface its own errors into the run's outcome.
type RunResultPublisher interface {
	PublishRunResult(ctx context.Context, result model.TradeRunResult)
	Close() error
}

// NatsPublisher publishes TradeRunResult messages to a NATS subject via
// Watermill, mirroring the teacher's watermill/gochannel adapter shape
// (internal/architecture/cqrs/eventbus/watermill_adapter.go) but backed
// by a real broker instead of an in-process channel.
type NatsPublisher struct {
	pub     message.Publisher
	subject string
	logger  *zap.Logger
}

// NewNatsPublisher dials natsURL and returns a publisher for subject.
func NewNatsPublisher(natsURL, subject string, logger *zap.Logger) (*NatsPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	wmLogger := watermill.NopLogger{}

	pub, err := nats.NewPublisher(nats.PublisherConfig{
		URL:       natsURL,
		Marshaler: &nats.GobMarshaler{},
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create nats publisher: %w", err)
	}
	return &NatsPublisher{pub: pub, subject: subject, logger: logger}, nil
}

// PublishRunResult marshals result to JSON and publishes it. Failures
// are logged only — by the time this is called, run() has already
// returned its outcome to the caller (spec §9).
func (p *NatsPublisher) PublishRunResult(ctx context.Context, result model.TradeRunResult) {
	msg, err := buildResultMessage(result)
	if err != nil {
		p.logger.Warn("failed to marshal TradeRunResult for publication", zap.Error(err))
		return
	}
	msg.SetContext(ctx)
	if err := p.pub.Publish(p.subject, msg); err != nil {
		p.logger.Warn("failed to publish TradeRunResult", zap.String("subject", p.subject), zap.Error(err))
	}
}

// buildResultMessage marshals result to JSON and wraps it in a
// Watermill message with a fresh event ID, split out from
// PublishRunResult so the marshaling step is testable without a live
// NATS connection. ksuid mirrors the teacher's own event-ID generation
// (internal/architecture/cqrs/core/event.go).
func buildResultMessage(result model.TradeRunResult) (*message.Message, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return message.NewMessage(ksuid.New().String(), payload), nil
}

// Close releases the underlying NATS connection.
func (p *NatsPublisher) Close() error {
	return p.pub.Close()
}

// NoopPublisher discards every result, used when events are disabled
// in config (spec §1 Non-goals: events are optional ambient plumbing,
// not a required dependency of run()).
type NoopPublisher struct{}

func (NoopPublisher) PublishRunResult(ctx context.Context, result model.TradeRunResult) {}
func (NoopPublisher) Close() error                                                      { return nil }
