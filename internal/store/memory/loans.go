// internal/store/memory/loans.go
package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"libracirc/internal/apperr"
	"libracirc/internal/loan"

	"github.com/google/uuid"
)

// LockUser is a no-op: transactions are already serialised.
func (s *Store) LockUser(context.Context, uuid.UUID) error { return nil }

func (s *Store) InsertLoan(ctx context.Context, l *loan.Loan) error {
	return s.write(ctx, func(st *state) error {
		if _, ok := st.books[l.BookID]; !ok {
			return apperr.NotFound("book %s not found", l.BookID)
		}
		for _, other := range st.loans {
			if other.BookID == l.BookID && !other.Returned {
				return apperr.Conflict("book %s already has an active loan", l.BookID)
			}
		}
		st.loans[l.ID] = *l
		return nil
	})
}

func (s *Store) GetLoan(ctx context.Context, id uuid.UUID, _ bool) (*loan.Loan, error) {
	var out *loan.Loan
	err := s.read(ctx, func(st *state) error {
		l, ok := st.loans[id]
		if !ok {
			return apperr.NotFound("loan %s not found", id)
		}
		out = &l
		return nil
	})
	return out, err
}

func (s *Store) MarkReturned(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.write(ctx, func(st *state) error {
		l, ok := st.loans[id]
		if !ok {
			return apperr.NotFound("loan %s not found", id)
		}
		l.Returned = true
		l.ReturnedDate = &at
		st.loans[id] = l
		return nil
	})
}

func (s *Store) CountActiveLoans(ctx context.Context, userID uuid.UUID) (int, error) {
	n := 0
	err := s.read(ctx, func(st *state) error {
		for _, l := range st.loans {
			if l.UserID == userID && !l.Returned {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *Store) ListLoans(ctx context.Context, f loan.Filter) ([]*loan.Loan, error) {
	var out []*loan.Loan
	err := s.read(ctx, func(st *state) error {
		for _, l := range st.loans {
			if matchLoan(&l, f) {
				out = append(out, &l)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b *loan.Loan) int {
		return cmp.Or(
			a.DueDate.Compare(b.DueDate),
			a.LoanDate.Compare(b.LoanDate),
			cmp.Compare(a.ID.String(), b.ID.String()),
		)
	})
	return out, err
}

func matchLoan(l *loan.Loan, f loan.Filter) bool {
	switch {
	case f.ActiveOnly && l.Returned:
		return false
	case f.UserID != nil && l.UserID != *f.UserID:
		return false
	case f.BookID != nil && l.BookID != *f.BookID:
		return false
	case f.DueBefore != nil && !l.DueDate.Before(*f.DueBefore):
		return false
	case f.DueOn != nil && !l.DueDate.Equal(*f.DueOn):
		return false
	}
	return true
}

func (s *Store) LoanStatistics(ctx context.Context, today time.Time) (*loan.Statistics, error) {
	stats := &loan.Statistics{}
	err := s.read(ctx, func(st *state) error {
		for _, l := range st.loans {
			stats.TotalLoans++
			if l.Returned {
				stats.ReturnedLoans++
				continue
			}
			stats.ActiveLoans++
			if l.DueDate.Before(today) {
				stats.OverdueLoans++
			}
		}
		return nil
	})
	return stats, err
}
