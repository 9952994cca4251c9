// internal/directory/static.go
package directory

import (
	"context"
	"sync"

	"libracirc/internal/apperr"

	"github.com/google/uuid"
)

// Static is an in-process directory fed from configuration or tests.
type Static struct {
	mu    sync.RWMutex
	users map[uuid.UUID]User
	order []uuid.UUID
}

func NewStatic(users ...User) *Static {
	s := &Static{users: make(map[uuid.UUID]User)}
	for _, u := range users {
		s.Put(u)
	}
	return s
}

// Put adds or replaces a user.
func (s *Static) Put(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		s.order = append(s.order, u.ID)
	}
	s.users[u.ID] = u
}

func (s *Static) GetUser(_ context.Context, id uuid.UUID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFound("user %s not found", id)
	}
	return &u, nil
}

// ListByRole returns users holding role in insertion order.
func (s *Static) ListByRole(_ context.Context, role string) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*User
	for _, id := range s.order {
		u := s.users[id]
		if u.HasRole(role) {
			out = append(out, &u)
		}
	}
	return out, nil
}
