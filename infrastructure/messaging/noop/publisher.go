// Package noop provides an event publisher that drops everything. Used when
// no event bus is configured, and in tests.
package noop

import (
	"context"

	"go.uber.org/zap"

	"bms-backend/application/ports"
	"bms-backend/domain/events"
)

// Publisher discards all events, logging them at debug level
type Publisher struct {
	logger *zap.Logger
}

// NewPublisher creates a discarding publisher
func NewPublisher(logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{logger: logger}
}

func (p *Publisher) Publish(_ context.Context, event events.DomainEvent) error {
	p.logger.Debug("event dropped (no bus configured)",
		zap.String("event_type", event.GetEventType()),
		zap.String("aggregate_id", event.GetAggregateID()))
	return nil
}

func (p *Publisher) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	for _, event := range batch {
		if err := p.Publish(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

var _ ports.EventPublisher = (*Publisher)(nil)
