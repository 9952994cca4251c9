// internal/reservation/domain.go
package reservation

import (
	"time"

	"github.com/google/uuid"
)

// Reservation holds a user's place in a book's queue. It is deactivated on
// cancellation and never deleted while the book exists.
type Reservation struct {
	ID              uuid.UUID `json:"id" db:"id"`
	BookID          uuid.UUID `json:"book_id" db:"book_id"`
	UserID          uuid.UUID `json:"user_id" db:"user_id"`
	ReservationDate time.Time `json:"reservation_date" db:"reservation_date"`
	// Position breaks ties between reservations made at the same instant.
	Position  int64     `json:"position" db:"position"`
	Active    bool      `json:"active" db:"active"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Filter narrows ListReservations. Results are in queue order: reservation
// date, then position.
type Filter struct {
	BookID     *uuid.UUID
	UserID     *uuid.UUID
	ActiveOnly bool
}

// Before orders two reservations FIFO.
func (r *Reservation) Before(o *Reservation) bool {
	if !r.ReservationDate.Equal(o.ReservationDate) {
		return r.ReservationDate.Before(o.ReservationDate)
	}
	return r.Position < o.Position
}
