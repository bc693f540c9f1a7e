package product

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// EventType names a catalogue change.
type EventType string

const (
	EventCreated EventType = "product.created"
	EventUpdated EventType = "product.updated"
	EventDeleted EventType = "product.deleted"
)

// Event is published after a catalogue change has been persisted.
type Event struct {
	Type       EventType `json:"type"`
	ProductID  string    `json:"productId"`
	Product    *Product  `json:"product,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher delivers catalogue events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopPublisher discards events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// publishTimeout bounds how long a request waits on the broker.
const publishTimeout = 2 * time.Second

// KafkaPublisher writes events to a Kafka topic keyed by product id, so all events for one
// product land on the same partition in order.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a KafkaPublisher for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			BatchTimeout:           10 * time.Millisecond,
			MaxAttempts:            1,
			WriteTimeout:           publishTimeout,
			AllowAutoTopicCreation: true,
		},
	}
}

// Publish writes e synchronously with a single attempt, giving up after publishTimeout.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.ProductID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("write %s event: %w", e.Type, err)
	}
	return nil
}

// Close flushes pending writes and closes the connection.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
