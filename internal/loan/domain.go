// internal/loan/domain.go
package loan

import (
	"time"

	"libracirc/internal/catalog"

	"github.com/google/uuid"
)

// Loan records one user borrowing one book. It moves from active to
// returned exactly once and is never deleted while its book exists.
type Loan struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	BookID       uuid.UUID  `json:"book_id" db:"book_id"`
	UserID       uuid.UUID  `json:"user_id" db:"user_id"`
	LoanDate     time.Time  `json:"loan_date" db:"loan_date"`
	DueDate      time.Time  `json:"due_date" db:"due_date"`
	ReturnedDate *time.Time `json:"returned_date,omitempty" db:"returned_date"`
	Returned     bool       `json:"returned" db:"returned"`
}

// Active reports whether the loan is still unreturned.
func (l *Loan) Active() bool { return !l.Returned }

// ReturnReceipt is the outcome of processing a return.
type ReturnReceipt struct {
	Loan       *Loan          `json:"loan"`
	FineAmount int            `json:"fine_amount"`
	DaysLate   int            `json:"days_late"`
	BookStatus catalog.Status `json:"book_status"`
}

// Filter narrows ListLoans. Zero values mean "no constraint".
type Filter struct {
	UserID     *uuid.UUID
	BookID     *uuid.UUID
	ActiveOnly bool
	DueBefore  *time.Time
	DueOn      *time.Time
}

// Statistics is the aggregate feed consumed by reporting.
type Statistics struct {
	TotalLoans    int `json:"total_loans" db:"total_loans"`
	ActiveLoans   int `json:"active_loans" db:"active_loans"`
	ReturnedLoans int `json:"returned_loans" db:"returned_loans"`
	OverdueLoans  int `json:"overdue_loans" db:"overdue_loans"`
}

// Day truncates t to midnight UTC. Due dates and "today" are compared as days.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}
