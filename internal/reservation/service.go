// internal/reservation/service.go
package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Service defines the interface for the reservation queue. It is the only
// component allowed to deactivate a reservation.
type Service interface {
	Reserve(ctx context.Context, userID, bookID uuid.UUID) (*Reservation, error)
	Cancel(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*Reservation, error)
	// HeadOfQueue returns the earliest active reservation for the book, if any.
	HeadOfQueue(ctx context.Context, bookID uuid.UUID) (*Reservation, bool, error)
	ActiveFor(ctx context.Context, bookID uuid.UUID) ([]*Reservation, error)
	ListActive(ctx context.Context, userID *uuid.UUID) ([]*Reservation, error)
}

// Repository is the persistence port the queue needs.
type Repository interface {
	InsertReservation(ctx context.Context, r *Reservation) error
	GetReservation(ctx context.Context, id uuid.UUID, forUpdate bool) (*Reservation, error)
	DeactivateReservation(ctx context.Context, id uuid.UUID, at time.Time) error
	HasActiveReservation(ctx context.Context, bookID, userID uuid.UUID) (bool, error)
	NextQueuePosition(ctx context.Context, bookID uuid.UUID) (int64, error)
	ListReservations(ctx context.Context, f Filter) ([]*Reservation, error)
}
