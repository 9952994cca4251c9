// internal/loan/service.go
package loan

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Service defines the interface for the loan ledger. It is the only component
// allowed to mark a loan returned.
type Service interface {
	CountActive(ctx context.Context, userID uuid.UUID) (int, error)
	Issue(ctx context.Context, userID, bookID uuid.UUID) (*Loan, error)
	ProcessReturn(ctx context.Context, loanID uuid.UUID, damaged bool) (*ReturnReceipt, error)
	GetLoan(ctx context.Context, id uuid.UUID) (*Loan, error)
	ListOverdue(ctx context.Context) ([]*Loan, error)
	// ListActive returns unreturned loans, for one user when userID is set.
	ListActive(ctx context.Context, userID *uuid.UUID) ([]*Loan, error)
	ListDueOn(ctx context.Context, day time.Time) ([]*Loan, error)
	// CanExtend reports whether the loan is still open and not yet past due.
	CanExtend(ctx context.Context, id uuid.UUID) (bool, error)
	Statistics(ctx context.Context) (*Statistics, error)
	Policy() Policy
	Today() time.Time
}

// Repository is the persistence port the ledger needs.
type Repository interface {
	// LockUser serialises loan issuance for one user until the surrounding
	// transaction ends.
	LockUser(ctx context.Context, userID uuid.UUID) error
	InsertLoan(ctx context.Context, l *Loan) error
	GetLoan(ctx context.Context, id uuid.UUID, forUpdate bool) (*Loan, error)
	MarkReturned(ctx context.Context, id uuid.UUID, at time.Time) error
	CountActiveLoans(ctx context.Context, userID uuid.UUID) (int, error)
	// ListLoans orders by due date, then loan date.
	ListLoans(ctx context.Context, f Filter) ([]*Loan, error)
	LoanStatistics(ctx context.Context, today time.Time) (*Statistics, error)
}
