// internal/notify/kafka.go
package notify

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
)

// Writer is the subset of *kafka.Writer the event sink uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventSink publishes every message to a Kafka topic for downstream
// consumers. Messages are keyed by fingerprint.
type EventSink struct {
	writer Writer
	tries  uint
}

func NewKafkaEventSink(brokers []string, topic string) *EventSink {
	return NewEventSink(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	})
}

func NewEventSink(w Writer) *EventSink {
	return &EventSink{writer: w, tries: 3}
}

func (s *EventSink) Name() string { return "kafka" }

func (s *EventSink) Deliver(ctx context.Context, m Message) error {
	value, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal notification event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(m.Fingerprint),
		Value: value,
		Time:  m.CreatedAt,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(m.Kind)},
		},
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, s.writer.WriteMessages(ctx, msg)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(s.tries))
	if err != nil {
		return fmt.Errorf("failed to write notification event: %w", err)
	}
	return nil
}

func (s *EventSink) Close() error {
	return s.writer.Close()
}
