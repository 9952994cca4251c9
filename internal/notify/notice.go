// internal/notify/notice.go
package notify

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// Kind names a notice variant.
type Kind string

const (
	KindLoanIssued    Kind = "loan_issued"
	KindDueReminder   Kind = "due_reminder"
	KindOverdue       Kind = "overdue"
	KindLongOverdue   Kind = "long_overdue"
	KindBookAvailable Kind = "book_available"
	KindCustom        Kind = "custom"
)

// Notice is the closed set of messages the circulation engine sends.
type Notice interface {
	Kind() Kind
	notice()
}

type LoanIssued struct {
	Name      string
	BookTitle string
	DueDate   time.Time
}

type DueReminder struct {
	Name      string
	BookTitle string
	DueDate   time.Time
}

type Overdue struct {
	Name      string
	BookTitle string
	DueDate   time.Time
	DaysLate  int
	Fine      int
}

// LongOverdue is the staff escalation for a loan overdue past the policy threshold.
type LongOverdue struct {
	BorrowerName  string
	BorrowerEmail string
	BookTitle     string
	BookCode      string
	DueDate       time.Time
	DaysLate      int
}

type BookAvailable struct {
	Name      string
	BookTitle string
	HoldDays  int
}

func (LoanIssued) Kind() Kind    { return KindLoanIssued }
func (DueReminder) Kind() Kind   { return KindDueReminder }
func (Overdue) Kind() Kind       { return KindOverdue }
func (LongOverdue) Kind() Kind   { return KindLongOverdue }
func (BookAvailable) Kind() Kind { return KindBookAvailable }

func (LoanIssued) notice()    {}
func (DueReminder) notice()   {}
func (Overdue) notice()       {}
func (LongOverdue) notice()   {}
func (BookAvailable) notice() {}

const (
	dateLayout = "02/01/2006"
	signature  = "\n\nKind regards,\nThe Library"
)

// Render produces the subject and body for a notice.
func Render(n Notice) (subject, body string) {
	switch n := n.(type) {
	case LoanIssued:
		return "Loan registered", fmt.Sprintf(
			"Dear %s,\n\nYour loan of '%s' has been registered. Please return it by %s.%s",
			n.Name, n.BookTitle, n.DueDate.Format(dateLayout), signature)
	case DueReminder:
		return "Return reminder", fmt.Sprintf(
			"Dear %s,\n\nThis is a reminder that '%s' is due back on %s.\n\nPlease return it on time to avoid fines.%s",
			n.Name, n.BookTitle, n.DueDate.Format(dateLayout), signature)
	case Overdue:
		return "Loan overdue", fmt.Sprintf(
			"Dear %s,\n\nThe book '%s' on loan to you has been overdue since %s (%d days). Fines accrued so far: %d.\n\nPlease return it as soon as possible to avoid further fines.%s",
			n.Name, n.BookTitle, n.DueDate.Format(dateLayout), n.DaysLate, n.Fine, signature)
	case LongOverdue:
		return "Long overdue loan", fmt.Sprintf(
			"The book '%s' (code %s) borrowed by %s <%s> has been overdue since %s (%d days). Please follow up with the borrower.",
			n.BookTitle, n.BookCode, n.BorrowerName, n.BorrowerEmail, n.DueDate.Format(dateLayout), n.DaysLate)
	case BookAvailable:
		return "Book available", fmt.Sprintf(
			"Dear %s,\n\nThe book '%s' you reserved is now available.\n\nPlease pick it up at the library within the next %d days.%s",
			n.Name, n.BookTitle, n.HoldDays, signature)
	}
	panic(fmt.Sprintf("notify: unknown notice %T", n))
}

// Message is a rendered notification addressed to one recipient.
type Message struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Kind        Kind      `json:"kind" db:"kind"`
	Subject     string    `json:"subject" db:"subject"`
	Body        string    `json:"message" db:"message"`
	Recipient   string    `json:"recipient" db:"recipient"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	Read        bool      `json:"read" db:"is_read"`
	Fingerprint string    `json:"fingerprint" db:"fingerprint"`
}

// Fingerprint identifies a message by content so broker consumers can drop
// duplicates delivered on retry.
func Fingerprint(kind Kind, subject, body, recipient string) string {
	h, _ := blake2b.New256(nil)
	for _, part := range []string{string(kind), subject, body, recipient} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
