// internal/store/sqlstore/loans.go
package sqlstore

import (
	"context"
	"time"

	"libracirc/internal/apperr"
	"libracirc/internal/loan"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
)

var loanColumns = []any{"id", "book_id", "user_id", "loan_date", "due_date", "returned_date", "returned"}

// LockUser takes a transaction-scoped advisory lock keyed by the user id.
func (s *Store) LockUser(ctx context.Context, userID uuid.UUID) error {
	if s.driver != Postgres {
		return nil
	}
	_, err := s.conn(ctx).ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, userID.String())
	return err
}

func (s *Store) InsertLoan(ctx context.Context, l *loan.Loan) error {
	rec := goqu.Record{
		"id":        l.ID.String(),
		"book_id":   l.BookID.String(),
		"user_id":   l.UserID.String(),
		"loan_date": l.LoanDate.UTC(),
		"due_date":  loan.Day(l.DueDate),
		"returned":  l.Returned,
	}
	if l.ReturnedDate != nil {
		rec["returned_date"] = l.ReturnedDate.UTC()
	}
	_, err := s.exec(ctx, s.insert("loans").Rows(rec))
	return err
}

func (s *Store) GetLoan(ctx context.Context, id uuid.UUID, forUpdate bool) (*loan.Loan, error) {
	ds := s.from("loans").Select(loanColumns...).Where(goqu.C("id").Eq(id.String()))
	var l loan.Loan
	if err := s.get(ctx, &l, s.forUpdate(ds, forUpdate)); err != nil {
		return nil, notFound(err, "loan %s not found", id)
	}
	normalizeLoan(&l)
	return &l, nil
}

func (s *Store) MarkReturned(ctx context.Context, id uuid.UUID, at time.Time) error {
	n, err := s.exec(ctx, s.update("loans").
		Set(goqu.Record{"returned": true, "returned_date": at.UTC()}).
		Where(goqu.C("id").Eq(id.String())))
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("loan %s not found", id)
	}
	return nil
}

func (s *Store) CountActiveLoans(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	ds := s.from("loans").Select(goqu.COUNT(goqu.Star())).
		Where(goqu.C("user_id").Eq(userID.String()), goqu.C("returned").IsFalse())
	if err := s.get(ctx, &n, ds); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) ListLoans(ctx context.Context, f loan.Filter) ([]*loan.Loan, error) {
	ds := s.from("loans").Select(loanColumns...)
	if f.ActiveOnly {
		ds = ds.Where(goqu.C("returned").IsFalse())
	}
	if f.UserID != nil {
		ds = ds.Where(goqu.C("user_id").Eq(f.UserID.String()))
	}
	if f.BookID != nil {
		ds = ds.Where(goqu.C("book_id").Eq(f.BookID.String()))
	}
	if f.DueBefore != nil {
		ds = ds.Where(goqu.C("due_date").Lt(loan.Day(*f.DueBefore)))
	}
	if f.DueOn != nil {
		ds = ds.Where(goqu.C("due_date").Eq(loan.Day(*f.DueOn)))
	}
	ds = ds.Order(goqu.C("due_date").Asc(), goqu.C("loan_date").Asc(), goqu.C("id").Asc())

	var loans []*loan.Loan
	if err := s.selectAll(ctx, &loans, ds); err != nil {
		return nil, err
	}
	for _, l := range loans {
		normalizeLoan(l)
	}
	return loans, nil
}

func (s *Store) LoanStatistics(ctx context.Context, today time.Time) (*loan.Statistics, error) {
	ds := s.from("loans").Select(
		goqu.COUNT(goqu.Star()).As("total_loans"),
		goqu.L("COALESCE(SUM(CASE WHEN returned THEN 0 ELSE 1 END), 0)").As("active_loans"),
		goqu.L("COALESCE(SUM(CASE WHEN returned THEN 1 ELSE 0 END), 0)").As("returned_loans"),
		goqu.L("COALESCE(SUM(CASE WHEN NOT returned AND due_date < ? THEN 1 ELSE 0 END), 0)", loan.Day(today)).As("overdue_loans"),
	)
	var stats loan.Statistics
	if err := s.get(ctx, &stats, ds); err != nil {
		return nil, err
	}
	return &stats, nil
}

// normalizeLoan puts scanned dates in UTC so values compare the same way
// across drivers.
func normalizeLoan(l *loan.Loan) {
	l.LoanDate = l.LoanDate.UTC()
	l.DueDate = loan.Day(l.DueDate)
	if l.ReturnedDate != nil {
		t := l.ReturnedDate.UTC()
		l.ReturnedDate = &t
	}
}
