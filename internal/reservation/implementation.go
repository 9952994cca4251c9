// internal/reservation/implementation.go
package reservation

import (
	"context"
	"errors"
	"fmt"

	"libracirc/internal/apperr"
	"libracirc/internal/catalog"
	"libracirc/internal/clock"
	"libracirc/internal/directory"
	"libracirc/internal/store"

	"github.com/google/uuid"
)

// service implements the Service interface.
type service struct {
	repo    Repository
	tx      store.Transactor
	catalog catalog.Service
	users   directory.Directory
	clock   clock.Clock
}

// NewService creates a new reservation queue instance.
func NewService(repo Repository, tx store.Transactor, cat catalog.Service, users directory.Directory, clk clock.Clock) Service {
	return &service{
		repo:    repo,
		tx:      tx,
		catalog: cat,
		users:   users,
		clock:   clk,
	}
}

// Reserve appends userID to the tail of the book's queue. Books on the
// shelf must be borrowed directly instead.
func (s *service) Reserve(ctx context.Context, userID, bookID uuid.UUID) (*Reservation, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, apperr.InvalidState("user %s is not active", userID)
	}

	var created *Reservation
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		book, err := s.catalog.GetBookForUpdate(ctx, bookID)
		if err != nil {
			return err
		}
		if book.Status == catalog.StatusAvailable {
			return apperr.InvalidState("book %s is available; borrow it instead", bookID)
		}

		exists, err := s.repo.HasActiveReservation(ctx, bookID, userID)
		if err != nil {
			return fmt.Errorf("failed to check reservations: %w", err)
		}
		if exists {
			return apperr.Conflict("user %s already has an active reservation for book %s", userID, bookID)
		}

		pos, err := s.repo.NextQueuePosition(ctx, bookID)
		if err != nil {
			return fmt.Errorf("failed to compute queue position: %w", err)
		}

		now := s.clock.Now()
		r := &Reservation{
			ID:              uuid.New(),
			BookID:          bookID,
			UserID:          userID,
			ReservationDate: now,
			Position:        pos,
			Active:          true,
			UpdatedAt:       now,
		}
		if err := s.repo.InsertReservation(ctx, r); err != nil {
			if errors.Is(err, apperr.ErrConflict) {
				return err
			}
			return fmt.Errorf("failed to insert reservation: %w", err)
		}
		created = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Cancel deactivates an active reservation. A second cancel fails and
// leaves the reservation unchanged.
func (s *service) Cancel(ctx context.Context, id uuid.UUID) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		r, err := s.repo.GetReservation(ctx, id, true)
		if err != nil {
			return err
		}
		if !r.Active {
			return apperr.InvalidState("reservation %s is not active", id)
		}
		if err := s.repo.DeactivateReservation(ctx, id, s.clock.Now()); err != nil {
			return fmt.Errorf("failed to cancel reservation: %w", err)
		}
		return nil
	})
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	return s.repo.GetReservation(ctx, id, false)
}

// HeadOfQueue reads the queue under the book lock, so it is ordered with
// any concurrent Reserve on the same book. The caller acts on the result
// after commit; a cancel landing in between is not seen (best-effort).
func (s *service) HeadOfQueue(ctx context.Context, bookID uuid.UUID) (*Reservation, bool, error) {
	var head *Reservation
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.catalog.GetBookForUpdate(ctx, bookID); err != nil {
			return err
		}
		queue, err := s.repo.ListReservations(ctx, Filter{BookID: &bookID, ActiveOnly: true})
		if err != nil {
			return fmt.Errorf("failed to list reservations: %w", err)
		}
		if len(queue) > 0 {
			head = queue[0]
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return head, head != nil, nil
}

func (s *service) ActiveFor(ctx context.Context, bookID uuid.UUID) ([]*Reservation, error) {
	if _, err := s.catalog.GetBook(ctx, bookID); err != nil {
		return nil, err
	}
	return s.repo.ListReservations(ctx, Filter{BookID: &bookID, ActiveOnly: true})
}

func (s *service) ListActive(ctx context.Context, userID *uuid.UUID) ([]*Reservation, error) {
	return s.repo.ListReservations(ctx, Filter{UserID: userID, ActiveOnly: true})
}
