// Package nop provides the publisher used when no Kafka brokers are
// configured.
package nop

import (
	"context"
	"sync/atomic"

	"github.com/papercomputeco/skycast/pkg/eventstream"
)

// Publisher drops turn events after validating them. It counts what it
// drops so tests can assert a turn reached the publishing step.
type Publisher struct {
	dropped atomic.Int64
}

func NewPublisher() *Publisher {
	return &Publisher{}
}

func (p *Publisher) PublishTurn(_ context.Context, event *eventstream.TurnCompletedEvent) error {
	if event == nil {
		return eventstream.ErrNilTurnEvent
	}
	p.dropped.Add(1)
	return nil
}

// Dropped returns the number of events accepted so far.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

func (p *Publisher) Close() error { return nil }
