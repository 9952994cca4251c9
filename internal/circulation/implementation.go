// internal/circulation/implementation.go
package circulation

import (
	"context"
	"log/slog"
	"strings"

	"libracirc/internal/apperr"
	"libracirc/internal/catalog"
	"libracirc/internal/clock"
	"libracirc/internal/directory"
	"libracirc/internal/loan"
	"libracirc/internal/notify"
	"libracirc/internal/reservation"
	"libracirc/internal/telemetry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Deps are the collaborators of the engine. Sinks receive every
// notification the engine sends.
type Deps struct {
	Catalog   catalog.Service
	Ledger    loan.Service
	Queue     reservation.Service
	Directory directory.Directory
	Sinks     []notify.Sink
	Clock     clock.Clock
	Logger    *slog.Logger
}

// service implements the Service interface.
type service struct {
	catalog    catalog.Service
	ledger     loan.Service
	queue      reservation.Service
	users      directory.Directory
	dispatcher *notify.Dispatcher
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewService creates a new circulation engine.
func NewService(d Deps) Service {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := d.Clock
	if clk == nil {
		clk = clock.System()
	}
	return &service{
		catalog:    d.Catalog,
		ledger:     d.Ledger,
		queue:      d.Queue,
		users:      d.Directory,
		dispatcher: notify.NewDispatcher(logger, clk, d.Sinks...),
		logger:     logger,
		tracer:     otel.Tracer("libracirc/circulation"),
	}
}

// CreateLoan issues the loan, then tells the borrower. Notification
// failures are logged and never undo the loan.
func (s *service) CreateLoan(ctx context.Context, userID, bookID uuid.UUID) (*loan.Loan, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.create_loan")
	defer span.End()

	l, err := s.ledger.Issue(ctx, userID, bookID)
	if err != nil {
		reject("create_loan", err)
		span.RecordError(err)
		return nil, err
	}
	telemetry.LoansIssued.Inc()
	s.logger.Info("loan issued", "loan_id", l.ID, "user_id", userID, "book_id", bookID, "due_date", l.DueDate)

	user, book, err := s.describe(ctx, l.UserID, l.BookID)
	if err != nil {
		s.logger.Warn("skipping loan notification", "loan_id", l.ID, "error", err)
		return l, nil
	}
	s.send(ctx, notify.LoanIssued{
		Name:      user.DisplayName(),
		BookTitle: book.Title,
		DueDate:   l.DueDate,
	}, user.Email)
	return l, nil
}

// ReturnBook processes the return and, when the book goes back on the
// shelf, tells the head of its reservation queue. The reservation stays
// active until its holder borrows the book or cancels.
func (s *service) ReturnBook(ctx context.Context, loanID uuid.UUID, damaged bool) (*ReturnResult, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.return_book",
		trace.WithAttributes(attribute.String("loan.id", loanID.String())),
	)
	defer span.End()

	receipt, err := s.ledger.ProcessReturn(ctx, loanID, damaged)
	if err != nil {
		reject("return_book", err)
		span.RecordError(err)
		return nil, err
	}
	telemetry.LoansReturned.WithLabelValues(string(receipt.BookStatus)).Inc()
	telemetry.FinesAssessed.Add(float64(receipt.FineAmount))
	s.logger.Info("loan returned",
		"loan_id", loanID,
		"book_status", receipt.BookStatus,
		"days_late", receipt.DaysLate,
		"fine", receipt.FineAmount,
	)

	result := &ReturnResult{ReturnReceipt: receipt}
	if receipt.BookStatus != catalog.StatusAvailable {
		return result, nil
	}

	head, ok, err := s.queue.HeadOfQueue(ctx, receipt.Loan.BookID)
	if err != nil {
		s.logger.Warn("failed to read reservation queue", "book_id", receipt.Loan.BookID, "error", err)
		return result, nil
	}
	if !ok {
		return result, nil
	}

	user, book, err := s.describe(ctx, head.UserID, head.BookID)
	if err != nil {
		s.logger.Warn("skipping availability notification", "reservation_id", head.ID, "error", err)
		return result, nil
	}
	if s.send(ctx, notify.BookAvailable{
		Name:      user.DisplayName(),
		BookTitle: book.Title,
		HoldDays:  s.ledger.Policy().HoldDays,
	}, user.Email) {
		result.NotifiedReservation = head
	}
	return result, nil
}

// CheckOverdue notifies every borrower with an overdue loan and escalates
// long-overdue loans to all staff.
func (s *service) CheckOverdue(ctx context.Context) (*SweepReport, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.check_overdue")
	defer span.End()

	loans, err := s.ledger.ListOverdue(ctx)
	if err != nil {
		return nil, err
	}

	policy := s.ledger.Policy()
	today := s.ledger.Today()
	report := &SweepReport{Loans: len(loans)}
	lookup := newLookup(s)

	var (
		staff       []*directory.User
		staffLoaded bool
	)
	for _, l := range loans {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		user, book, err := lookup.describe(ctx, l.UserID, l.BookID)
		if err != nil {
			s.logger.Warn("skipping overdue notification", "loan_id", l.ID, "error", err)
			report.Failed++
			continue
		}

		a := policy.Assess(today, l.DueDate)
		if s.send(ctx, notify.Overdue{
			Name:      user.DisplayName(),
			BookTitle: book.Title,
			DueDate:   l.DueDate,
			DaysLate:  a.DaysLate,
			Fine:      a.Fine,
		}, user.Email) {
			report.Sent++
		} else {
			report.Failed++
		}

		if !policy.LongOverdue(a) {
			continue
		}
		// The next long-overdue loan retries a failed staff lookup.
		if !staffLoaded {
			staff, err = s.users.ListByRole(ctx, directory.RoleStaff)
			if err != nil {
				s.logger.Warn("failed to list staff for escalation", "loan_id", l.ID, "error", err)
				report.Failed++
				continue
			}
			staffLoaded = true
		}
		escalation := notify.LongOverdue{
			BorrowerName:  user.DisplayName(),
			BorrowerEmail: user.Email,
			BookTitle:     book.Title,
			BookCode:      book.Code,
			DueDate:       l.DueDate,
			DaysLate:      a.DaysLate,
		}
		for _, member := range staff {
			if s.send(ctx, escalation, member.Email) {
				report.Escalations++
			} else {
				report.Failed++
			}
		}
	}

	span.SetAttributes(
		attribute.Int("sweep.loans", report.Loans),
		attribute.Int("sweep.failed", report.Failed),
	)
	return report, nil
}

// CheckUpcomingDue reminds borrowers whose loans fall due in exactly the
// configured number of days.
func (s *service) CheckUpcomingDue(ctx context.Context) (*SweepReport, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.check_upcoming_due")
	defer span.End()

	day := s.ledger.Today().AddDate(0, 0, s.ledger.Policy().ReminderDaysAhead)
	loans, err := s.ledger.ListDueOn(ctx, day)
	if err != nil {
		return nil, err
	}

	report := &SweepReport{Loans: len(loans)}
	lookup := newLookup(s)
	for _, l := range loans {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		user, book, err := lookup.describe(ctx, l.UserID, l.BookID)
		if err != nil {
			s.logger.Warn("skipping due reminder", "loan_id", l.ID, "error", err)
			report.Failed++
			continue
		}
		if s.send(ctx, notify.DueReminder{
			Name:      user.DisplayName(),
			BookTitle: book.Title,
			DueDate:   l.DueDate,
		}, user.Email) {
			report.Sent++
		} else {
			report.Failed++
		}
	}
	return report, nil
}

// send dispatches one notice. Failures are logged and counted, not returned.
func (s *service) send(ctx context.Context, n notify.Notice, recipient string) bool {
	if _, err := s.dispatcher.Send(ctx, n, recipient); err != nil {
		telemetry.NotificationFailures.WithLabelValues(string(n.Kind())).Inc()
		s.logger.Warn("notification failed", "kind", n.Kind(), "recipient", recipient, "error", err)
		return false
	}
	telemetry.NotificationsSent.WithLabelValues(string(n.Kind())).Inc()
	return true
}

func (s *service) describe(ctx context.Context, userID, bookID uuid.UUID) (*directory.User, *catalog.Book, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	book, err := s.catalog.GetBook(ctx, bookID)
	if err != nil {
		return nil, nil, err
	}
	return user, book, nil
}

// lookup memoises user and book reads for the length of one sweep.
type lookup struct {
	s     *service
	users map[uuid.UUID]*directory.User
	books map[uuid.UUID]*catalog.Book
}

func newLookup(s *service) *lookup {
	return &lookup{
		s:     s,
		users: make(map[uuid.UUID]*directory.User),
		books: make(map[uuid.UUID]*catalog.Book),
	}
}

func (l *lookup) describe(ctx context.Context, userID, bookID uuid.UUID) (*directory.User, *catalog.Book, error) {
	user, ok := l.users[userID]
	if !ok {
		u, err := l.s.users.GetUser(ctx, userID)
		if err != nil {
			return nil, nil, err
		}
		l.users[userID], user = u, u
	}
	book, ok := l.books[bookID]
	if !ok {
		b, err := l.s.catalog.GetBook(ctx, bookID)
		if err != nil {
			return nil, nil, err
		}
		l.books[bookID], book = b, b
	}
	return user, book, nil
}

func reject(op string, err error) {
	reason := "internal"
	if kind := apperr.Kind(err); kind != nil {
		reason = strings.ReplaceAll(kind.Error(), " ", "_")
	}
	telemetry.Rejections.WithLabelValues(op, reason).Inc()
}
