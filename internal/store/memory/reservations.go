// internal/store/memory/reservations.go
package memory

import (
	"context"
	"slices"
	"time"

	"libracirc/internal/apperr"
	"libracirc/internal/reservation"

	"github.com/google/uuid"
)

func (s *Store) InsertReservation(ctx context.Context, r *reservation.Reservation) error {
	return s.write(ctx, func(st *state) error {
		if _, ok := st.books[r.BookID]; !ok {
			return apperr.NotFound("book %s not found", r.BookID)
		}
		for _, other := range st.reservations {
			if other.Active && other.BookID == r.BookID && other.UserID == r.UserID {
				return apperr.Conflict("user %s already has an active reservation for book %s", r.UserID, r.BookID)
			}
		}
		st.reservations[r.ID] = *r
		return nil
	})
}

func (s *Store) GetReservation(ctx context.Context, id uuid.UUID, _ bool) (*reservation.Reservation, error) {
	var out *reservation.Reservation
	err := s.read(ctx, func(st *state) error {
		r, ok := st.reservations[id]
		if !ok {
			return apperr.NotFound("reservation %s not found", id)
		}
		out = &r
		return nil
	})
	return out, err
}

func (s *Store) DeactivateReservation(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.write(ctx, func(st *state) error {
		r, ok := st.reservations[id]
		if !ok {
			return apperr.NotFound("reservation %s not found", id)
		}
		r.Active = false
		r.UpdatedAt = at
		st.reservations[id] = r
		return nil
	})
}

func (s *Store) HasActiveReservation(ctx context.Context, bookID, userID uuid.UUID) (bool, error) {
	found := false
	err := s.read(ctx, func(st *state) error {
		for _, r := range st.reservations {
			if r.Active && r.BookID == bookID && r.UserID == userID {
				found = true
				break
			}
		}
		return nil
	})
	return found, err
}

func (s *Store) NextQueuePosition(ctx context.Context, bookID uuid.UUID) (int64, error) {
	var last int64
	err := s.read(ctx, func(st *state) error {
		for _, r := range st.reservations {
			if r.BookID == bookID && r.Position > last {
				last = r.Position
			}
		}
		return nil
	})
	return last + 1, err
}

func (s *Store) ListReservations(ctx context.Context, f reservation.Filter) ([]*reservation.Reservation, error) {
	var out []*reservation.Reservation
	err := s.read(ctx, func(st *state) error {
		for _, r := range st.reservations {
			switch {
			case f.ActiveOnly && !r.Active:
				continue
			case f.BookID != nil && r.BookID != *f.BookID:
				continue
			case f.UserID != nil && r.UserID != *f.UserID:
				continue
			}
			out = append(out, &r)
		}
		return nil
	})
	slices.SortFunc(out, func(a, b *reservation.Reservation) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		}
		return 0
	})
	return out, err
}
