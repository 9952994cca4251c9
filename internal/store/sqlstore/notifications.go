// internal/store/sqlstore/notifications.go
package sqlstore

import (
	"context"

	"libracirc/internal/apperr"
	"libracirc/internal/notify"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
)

var notificationColumns = []any{"id", "kind", "subject", "message", "recipient", "created_at", "is_read", "fingerprint"}

func (s *Store) InsertNotification(ctx context.Context, m *notify.Message) error {
	_, err := s.exec(ctx, s.insert("notifications").Rows(goqu.Record{
		"id":          m.ID.String(),
		"kind":        string(m.Kind),
		"subject":     m.Subject,
		"message":     m.Body,
		"recipient":   m.Recipient,
		"created_at":  m.CreatedAt.UTC(),
		"is_read":     m.Read,
		"fingerprint": m.Fingerprint,
	}))
	return err
}

// ListUnread returns the recipient's unread messages, newest first.
func (s *Store) ListUnread(ctx context.Context, recipient string) ([]*notify.Message, error) {
	ds := s.from("notifications").Select(notificationColumns...).
		Where(goqu.C("recipient").Eq(recipient), goqu.C("is_read").IsFalse()).
		Order(goqu.C("created_at").Desc(), goqu.C("id").Asc())
	var out []*notify.Message
	if err := s.selectAll(ctx, &out, ds); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) MarkRead(ctx context.Context, id uuid.UUID) error {
	n, err := s.exec(ctx, s.update("notifications").
		Set(goqu.Record{"is_read": true}).
		Where(goqu.C("id").Eq(id.String())))
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("notification %s not found", id)
	}
	return nil
}
