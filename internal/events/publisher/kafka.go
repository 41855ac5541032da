// Package publisher delivers transition events to Kafka.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"civicdesk/internal/events"
)

// Kafka publishes transition events with franz-go. Records are keyed by
// request ID so one request's events stay ordered within a partition.
type Kafka struct {
	client *kgo.Client
	topic  string
}

// NewKafka connects a producer to the given brokers.
func NewKafka(brokers []string) (*Kafka, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Kafka{client: client, topic: events.Topic}, nil
}

// Publish synchronously produces one event. The outbox worker relies on the
// error to decide whether the entry may be marked published.
func (k *Kafka) Publish(ctx context.Context, event events.TransitionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal transition event: %w", err)
	}
	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(event.RequestID),
		Value: payload,
	}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce transition event: %w", err)
	}
	return nil
}

// Close flushes and releases the producer.
func (k *Kafka) Close() {
	k.client.Close()
}
