// internal/circulation/service.go
package circulation

import (
	"context"

	"libracirc/internal/loan"

	"github.com/google/uuid"
)

// Service defines the interface for the circulation engine. It coordinates
// the ledger, the queue and the catalog and never writes to them directly.
type Service interface {
	CreateLoan(ctx context.Context, userID, bookID uuid.UUID) (*loan.Loan, error)
	ReturnBook(ctx context.Context, loanID uuid.UUID, damaged bool) (*ReturnResult, error)
	CheckOverdue(ctx context.Context) (*SweepReport, error)
	CheckUpcomingDue(ctx context.Context) (*SweepReport, error)
}
