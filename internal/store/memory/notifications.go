// internal/store/memory/notifications.go
package memory

import (
	"context"
	"slices"

	"libracirc/internal/apperr"
	"libracirc/internal/notify"

	"github.com/google/uuid"
)

func (s *Store) InsertNotification(ctx context.Context, m *notify.Message) error {
	return s.write(ctx, func(st *state) error {
		st.notifications[m.ID] = *m
		return nil
	})
}

// ListUnread returns the recipient's unread messages, newest first.
func (s *Store) ListUnread(ctx context.Context, recipient string) ([]*notify.Message, error) {
	var out []*notify.Message
	err := s.read(ctx, func(st *state) error {
		for _, m := range st.notifications {
			if m.Recipient == recipient && !m.Read {
				out = append(out, &m)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b *notify.Message) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, err
}

func (s *Store) MarkRead(ctx context.Context, id uuid.UUID) error {
	return s.write(ctx, func(st *state) error {
		m, ok := st.notifications[id]
		if !ok {
			return apperr.NotFound("notification %s not found", id)
		}
		m.Read = true
		st.notifications[id] = m
		return nil
	})
}
