package product

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewKafkaPublisherFailsFast(t *testing.T) {
	p := NewKafkaPublisher([]string{"127.0.0.1:1"}, "product-events")
	defer p.Close()

	assert.Equal(t, 1, p.writer.MaxAttempts)
	assert.Equal(t, publishTimeout, p.writer.WriteTimeout)
	assert.Equal(t, "product-events", p.writer.Topic)
}

func TestKafkaPublishUnreachableBrokerIsBounded(t *testing.T) {
	p := NewKafkaPublisher([]string{"127.0.0.1:1"}, "product-events")
	defer p.Close()

	start := time.Now()
	err := p.Publish(context.Background(), Event{Type: EventCreated, ProductID: "p1", OccurredAt: time.Now()})

	assert.Error(t, err)
	assert.Less(t, time.Since(start), publishTimeout+time.Second)
}
