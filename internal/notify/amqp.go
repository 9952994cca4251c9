// internal/notify/amqp.go
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	jsoniter "github.com/json-iterator/go"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/time/rate"
)

var json = jsoniter.ConfigFastest

// emailJob is the payload the mailer consumes from the queue.
type emailJob struct {
	To          string    `json:"to"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	Kind        Kind      `json:"kind"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
}

// Publisher is the subset of *amqp.Channel the email sink uses.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// EmailQueueSink enqueues messages for the mailer on a durable RabbitMQ queue.
// Publishing is throttled so a sweep cannot flood the mail relay.
type EmailQueueSink struct {
	mu      sync.Mutex // amqp channels are not safe for concurrent publishing
	pub     Publisher
	queue   string
	limiter *rate.Limiter
	tries   uint
	closer  func() error
}

// DialEmailQueue connects to RabbitMQ and declares the durable queue.
func DialEmailQueue(url, queue string, perSecond float64, burst int) (*EmailQueueSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	s := NewEmailQueueSink(ch, queue, rate.NewLimiter(rate.Limit(perSecond), burst))
	s.closer = func() error {
		if err := ch.Close(); err != nil {
			return err
		}
		return conn.Close()
	}
	return s, nil
}

func NewEmailQueueSink(pub Publisher, queue string, limiter *rate.Limiter) *EmailQueueSink {
	return &EmailQueueSink{pub: pub, queue: queue, limiter: limiter, tries: 3}
}

func (s *EmailQueueSink) Name() string { return "email-queue" }

func (s *EmailQueueSink) Deliver(ctx context.Context, m Message) error {
	body, err := json.Marshal(emailJob{
		To:          m.Recipient,
		Subject:     m.Subject,
		Body:        m.Body,
		Kind:        m.Kind,
		Fingerprint: m.Fingerprint,
		CreatedAt:   m.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email job: %w", err)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return struct{}{}, s.pub.PublishWithContext(ctx, "", s.queue, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    m.Fingerprint,
			Timestamp:    m.CreatedAt,
			Body:         body,
		})
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(s.tries))
	if err != nil {
		return fmt.Errorf("failed to publish email job: %w", err)
	}
	return nil
}

func (s *EmailQueueSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
