// internal/loan/implementation.go
package loan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"libracirc/internal/apperr"
	"libracirc/internal/catalog"
	"libracirc/internal/clock"
	"libracirc/internal/directory"
	"libracirc/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// service implements the Service interface.
type service struct {
	repo    Repository
	tx      store.Transactor
	catalog catalog.Service
	users   directory.Directory
	clock   clock.Clock
	policy  Policy
	tracer  trace.Tracer
}

// NewService creates a new loan ledger instance.
func NewService(repo Repository, tx store.Transactor, cat catalog.Service, users directory.Directory, clk clock.Clock, policy Policy) Service {
	return &service{
		repo:    repo,
		tx:      tx,
		catalog: cat,
		users:   users,
		clock:   clk,
		policy:  policy,
		tracer:  otel.Tracer("libracirc/loan"),
	}
}

func (s *service) Policy() Policy { return s.policy }

func (s *service) Today() time.Time { return Day(s.clock.Now()) }

func (s *service) CountActive(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountActiveLoans(ctx, userID)
}

// Issue lends bookID to userID. The book check, the loan-cap check and both
// writes happen in one transaction holding the user lock and the book lock.
func (s *service) Issue(ctx context.Context, userID, bookID uuid.UUID) (*Loan, error) {
	ctx, span := s.tracer.Start(ctx, "loan.issue",
		trace.WithAttributes(
			attribute.String("user.id", userID.String()),
			attribute.String("book.id", bookID.String()),
		),
	)
	defer span.End()

	// The directory is a remote collaborator; it is not called with locks held.
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !user.IsActive {
		return nil, apperr.InvalidState("user %s is not active", userID)
	}

	var issued *Loan
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockUser(ctx, userID); err != nil {
			return fmt.Errorf("failed to lock user: %w", err)
		}

		book, err := s.catalog.GetBookForUpdate(ctx, bookID)
		if err != nil {
			return err
		}
		if book.Status != catalog.StatusAvailable {
			return apperr.InvalidState("book %s is %s", bookID, book.Status)
		}

		active, err := s.repo.CountActiveLoans(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to count active loans: %w", err)
		}
		if active >= s.policy.MaxLoans {
			return apperr.ResourceExhausted("user %s already has %d active loans", userID, active)
		}

		now := s.clock.Now()
		l := &Loan{
			ID:       uuid.New(),
			BookID:   bookID,
			UserID:   userID,
			LoanDate: now,
			DueDate:  s.policy.DueDate(now),
		}
		if err := s.repo.InsertLoan(ctx, l); err != nil {
			if errors.Is(err, apperr.ErrConflict) {
				return apperr.InvalidState("book %s is already on loan", bookID)
			}
			return fmt.Errorf("failed to insert loan: %w", err)
		}
		if _, err := s.catalog.SetStatus(ctx, bookID, catalog.StatusBorrowed); err != nil {
			return err
		}
		issued = l
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("loan.id", issued.ID.String()))
	return issued, nil
}

// ProcessReturn closes the loan, computes the fine and puts the book back
// (or marks it damaged) in one transaction.
func (s *service) ProcessReturn(ctx context.Context, loanID uuid.UUID, damaged bool) (*ReturnReceipt, error) {
	ctx, span := s.tracer.Start(ctx, "loan.process_return",
		trace.WithAttributes(
			attribute.String("loan.id", loanID.String()),
			attribute.Bool("damaged", damaged),
		),
	)
	defer span.End()

	var receipt *ReturnReceipt
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		l, err := s.repo.GetLoan(ctx, loanID, true)
		if err != nil {
			return err
		}
		if l.Returned {
			return apperr.InvalidState("loan %s is already returned", loanID)
		}
		// Serialise with issue and reserve on the same book.
		if _, err := s.catalog.GetBookForUpdate(ctx, l.BookID); err != nil {
			return err
		}

		now := s.clock.Now()
		a := s.policy.Assess(Day(now), l.DueDate)

		if err := s.repo.MarkReturned(ctx, l.ID, now); err != nil {
			return fmt.Errorf("failed to mark loan returned: %w", err)
		}
		l.Returned = true
		l.ReturnedDate = &now

		status := catalog.StatusAvailable
		if damaged {
			status = catalog.StatusDamaged
		}
		if _, err := s.catalog.SetStatus(ctx, l.BookID, status); err != nil {
			return err
		}

		receipt = &ReturnReceipt{
			Loan:       l,
			FineAmount: a.Fine,
			DaysLate:   a.DaysLate,
			BookStatus: status,
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("fine.amount", receipt.FineAmount),
		attribute.Int("days.late", receipt.DaysLate),
	)
	return receipt, nil
}

func (s *service) GetLoan(ctx context.Context, id uuid.UUID) (*Loan, error) {
	return s.repo.GetLoan(ctx, id, false)
}

func (s *service) ListOverdue(ctx context.Context) ([]*Loan, error) {
	today := s.Today()
	return s.repo.ListLoans(ctx, Filter{ActiveOnly: true, DueBefore: &today})
}

func (s *service) ListActive(ctx context.Context, userID *uuid.UUID) ([]*Loan, error) {
	return s.repo.ListLoans(ctx, Filter{ActiveOnly: true, UserID: userID})
}

func (s *service) ListDueOn(ctx context.Context, day time.Time) ([]*Loan, error) {
	d := Day(day)
	return s.repo.ListLoans(ctx, Filter{ActiveOnly: true, DueOn: &d})
}

func (s *service) CanExtend(ctx context.Context, id uuid.UUID) (bool, error) {
	l, err := s.repo.GetLoan(ctx, id, false)
	if err != nil {
		return false, err
	}
	if l.Returned {
		return false, nil
	}
	return !s.Today().After(Day(l.DueDate)), nil
}

func (s *service) Statistics(ctx context.Context) (*Statistics, error) {
	stats, err := s.repo.LoanStatistics(ctx, s.Today())
	if err != nil {
		return nil, fmt.Errorf("failed to compute loan statistics: %w", err)
	}
	return stats, nil
}
