// Package kafka publishes turn events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/skycast/pkg/eventstream"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "skycast.turns"

// ErrNoBrokers is returned by NewPublisher without broker addresses.
var ErrNoBrokers = errors.New("kafka publisher requires at least one broker")

// MessageWriter is the subset of *kafkago.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Config configures a Publisher.
type Config struct {
	Brokers []string
	Topic   string

	// ClientID is sent as the message header "source".
	ClientID string
}

// Publisher writes each event as one JSON message keyed by turn ID, so every
// event of a turn lands on the same partition.
type Publisher struct {
	writer   MessageWriter
	clientID string
}

// NewPublisher creates a Publisher writing to c.Topic on c.Brokers.
func NewPublisher(c Config) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	topic := c.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(c.Brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return NewPublisherWithWriter(w, c.ClientID), nil
}

// NewPublisherWithWriter wraps an existing writer.
func NewPublisherWithWriter(w MessageWriter, clientID string) *Publisher {
	if clientID == "" {
		clientID = "skycast"
	}
	return &Publisher{writer: w, clientID: clientID}
}

// PublishTurn encodes event and writes it synchronously.
func (p *Publisher) PublishTurn(ctx context.Context, event *eventstream.TurnCompletedEvent) error {
	if event == nil {
		return eventstream.ErrNilTurnEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal turn event: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(event.Turn.ID),
		Value: payload,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "source", Value: []byte(p.clientID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write turn event %s: %w", event.EventID, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
