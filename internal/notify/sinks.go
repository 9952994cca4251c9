// internal/notify/sinks.go
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// LogSink writes every message to the structured log.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, m Message) error {
	s.logger.Info("notification",
		"kind", m.Kind,
		"recipient", m.Recipient,
		"subject", m.Subject,
		"fingerprint", m.Fingerprint,
	)
	return nil
}

// Store persists notifications so recipients can list and acknowledge them.
type Store interface {
	InsertNotification(ctx context.Context, m *Message) error
	ListUnread(ctx context.Context, recipient string) ([]*Message, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
}

// StoreSink records each message in a Store.
type StoreSink struct {
	store Store
}

func NewStoreSink(store Store) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Deliver(ctx context.Context, m Message) error {
	if err := s.store.InsertNotification(ctx, &m); err != nil {
		return fmt.Errorf("failed to persist notification: %w", err)
	}
	return nil
}
