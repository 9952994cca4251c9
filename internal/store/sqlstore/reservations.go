// internal/store/sqlstore/reservations.go
package sqlstore

import (
	"context"
	"time"

	"libracirc/internal/apperr"
	"libracirc/internal/reservation"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
)

var reservationColumns = []any{"id", "book_id", "user_id", "reservation_date", "position", "active", "updated_at"}

func (s *Store) InsertReservation(ctx context.Context, r *reservation.Reservation) error {
	_, err := s.exec(ctx, s.insert("reservations").Rows(goqu.Record{
		"id":               r.ID.String(),
		"book_id":          r.BookID.String(),
		"user_id":          r.UserID.String(),
		"reservation_date": r.ReservationDate.UTC(),
		"position":         r.Position,
		"active":           r.Active,
		"updated_at":       r.UpdatedAt.UTC(),
	}))
	return err
}

func (s *Store) GetReservation(ctx context.Context, id uuid.UUID, forUpdate bool) (*reservation.Reservation, error) {
	ds := s.from("reservations").Select(reservationColumns...).Where(goqu.C("id").Eq(id.String()))
	var r reservation.Reservation
	if err := s.get(ctx, &r, s.forUpdate(ds, forUpdate)); err != nil {
		return nil, notFound(err, "reservation %s not found", id)
	}
	return &r, nil
}

func (s *Store) DeactivateReservation(ctx context.Context, id uuid.UUID, at time.Time) error {
	n, err := s.exec(ctx, s.update("reservations").
		Set(goqu.Record{"active": false, "updated_at": at.UTC()}).
		Where(goqu.C("id").Eq(id.String())))
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("reservation %s not found", id)
	}
	return nil
}

func (s *Store) HasActiveReservation(ctx context.Context, bookID, userID uuid.UUID) (bool, error) {
	var n int
	ds := s.from("reservations").Select(goqu.COUNT(goqu.Star())).Where(
		goqu.C("book_id").Eq(bookID.String()),
		goqu.C("user_id").Eq(userID.String()),
		goqu.C("active").IsTrue(),
	)
	if err := s.get(ctx, &n, ds); err != nil {
		return false, err
	}
	return n > 0, nil
}

// NextQueuePosition must run under the book lock to be unique per book.
func (s *Store) NextQueuePosition(ctx context.Context, bookID uuid.UUID) (int64, error) {
	var pos int64
	ds := s.from("reservations").Select(goqu.L("COALESCE(MAX(position), 0) + 1")).
		Where(goqu.C("book_id").Eq(bookID.String()))
	if err := s.get(ctx, &pos, ds); err != nil {
		return 0, err
	}
	return pos, nil
}

func (s *Store) ListReservations(ctx context.Context, f reservation.Filter) ([]*reservation.Reservation, error) {
	ds := s.from("reservations").Select(reservationColumns...)
	if f.ActiveOnly {
		ds = ds.Where(goqu.C("active").IsTrue())
	}
	if f.BookID != nil {
		ds = ds.Where(goqu.C("book_id").Eq(f.BookID.String()))
	}
	if f.UserID != nil {
		ds = ds.Where(goqu.C("user_id").Eq(f.UserID.String()))
	}
	ds = ds.Order(goqu.C("reservation_date").Asc(), goqu.C("position").Asc(), goqu.C("id").Asc())

	var out []*reservation.Reservation
	if err := s.selectAll(ctx, &out, ds); err != nil {
		return nil, err
	}
	return out, nil
}
