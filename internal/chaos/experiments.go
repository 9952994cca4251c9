// internal/chaos/experiments.go
package chaos

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"libracirc/internal/apperr"
	"libracirc/internal/catalog"
	"libracirc/internal/circulation"
	"libracirc/internal/directory"
	"libracirc/internal/loan"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Target is the running system the experiments act on. Users must be the
// directory the services resolve borrowers through.
type Target struct {
	Catalog catalog.Service
	Ledger  loan.Service
	Engine  circulation.Service
	Users   *directory.Static
}

// Experiments returns the predefined experiments for t.
func Experiments(t Target, concurrency int) []Experiment {
	return []Experiment{
		ConcurrentCheckoutRace(t, concurrency),
		LoanCapRace(t, 3),
	}
}

// ConcurrentCheckoutRace has n distinct users issue the same single-copy
// book at once. Exactly one issue may win.
func ConcurrentCheckoutRace(t Target, n int) Experiment {
	var (
		book      *catalog.Book
		successes atomic.Int64
		winner    atomic.Pointer[loan.Loan]
	)

	return Experiment{
		Name:       "concurrent-checkout-race",
		Hypothesis: "Only one of many simultaneous issues of the same book succeeds and the book stays consistent with its loans",
		SteadyState: []Metric{
			{
				Name:      "book_loan_inconsistencies",
				Query:     func(ctx context.Context) (float64, error) { return inconsistencies(ctx, t) },
				Threshold: Threshold{Operator: "==", Value: 0},
			},
			{
				Name:      "successful_issues",
				Query:     func(context.Context) (float64, error) { return float64(successes.Load()), nil },
				Threshold: Threshold{Operator: "<=", Value: 1},
			},
		},
		Method: []Action{
			{
				Type:   "concurrent-requests",
				Target: "circulation-engine",
				Execute: func(ctx context.Context) error {
					b, err := t.Catalog.CreateBook(ctx, catalog.NewBook{
						Title:  "Chaos Copy",
						Author: "Game Day",
						Genre:  "test",
						Code:   "CHAOS-" + uuid.NewString()[:8],
					})
					if err != nil {
						return err
					}
					book = b

					users := newUsers(t.Users, n)
					var unexpected atomic.Int64
					var g errgroup.Group
					for _, u := range users {
						g.Go(func() error {
							l, err := t.Engine.CreateLoan(ctx, u.ID, book.ID)
							switch {
							case err == nil:
								successes.Add(1)
								winner.Store(l)
							case errors.Is(err, apperr.ErrInvalidState):
							default:
								unexpected.Add(1)
							}
							return nil
						})
					}
					_ = g.Wait()

					if c := unexpected.Load(); c > 0 {
						return fmt.Errorf("%d issues failed with an unexpected error", c)
					}
					return nil
				},
			},
		},
		Rollback: []Action{
			{
				Type:   "return-loan",
				Target: "circulation-engine",
				Execute: func(ctx context.Context) error {
					l := winner.Load()
					if l == nil {
						return nil
					}
					_, err := t.Engine.ReturnBook(ctx, l.ID, false)
					return err
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "successful_issues",
				Condition: func(v float64) bool { return v == 1 },
				Message:   "Exactly one issue should succeed",
			},
			{
				Metric:    "book_loan_inconsistencies",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "Every borrowed book should have exactly one active loan",
			},
		},
	}
}

// LoanCapRace has one user issue MaxLoans+extra distinct books at once.
// Active loans must never pass the cap.
func LoanCapRace(t Target, extra int) Experiment {
	var (
		user      *directory.User
		successes atomic.Int64
	)
	maxLoans := t.Ledger.Policy().MaxLoans

	overCap := func(ctx context.Context) (float64, error) {
		if user == nil {
			return 0, nil
		}
		n, err := t.Ledger.CountActive(ctx, user.ID)
		if err != nil {
			return 0, err
		}
		return float64(max(0, n-maxLoans)), nil
	}

	return Experiment{
		Name:       "loan-cap-race",
		Hypothesis: "A user issuing many books at once never holds more than the loan cap",
		SteadyState: []Metric{
			{
				Name:      "loans_over_cap",
				Query:     overCap,
				Threshold: Threshold{Operator: "==", Value: 0},
			},
			{
				Name:      "successful_issues",
				Query:     func(context.Context) (float64, error) { return float64(successes.Load()), nil },
				Threshold: Threshold{Operator: "<=", Value: float64(maxLoans)},
			},
		},
		Method: []Action{
			{
				Type:   "concurrent-requests",
				Target: "loan-ledger",
				Execute: func(ctx context.Context) error {
					user = newUsers(t.Users, 1)[0]

					books := make([]*catalog.Book, 0, maxLoans+extra)
					for i := range maxLoans + extra {
						b, err := t.Catalog.CreateBook(ctx, catalog.NewBook{
							Title:  fmt.Sprintf("Chaos Volume %d", i+1),
							Author: "Game Day",
							Genre:  "test",
							Code:   fmt.Sprintf("CAP-%s-%d", uuid.NewString()[:8], i),
						})
						if err != nil {
							return err
						}
						books = append(books, b)
					}

					var unexpected atomic.Int64
					var g errgroup.Group
					for _, b := range books {
						g.Go(func() error {
							_, err := t.Engine.CreateLoan(ctx, user.ID, b.ID)
							switch {
							case err == nil:
								successes.Add(1)
							case errors.Is(err, apperr.ErrResourceExhausted):
							default:
								unexpected.Add(1)
							}
							return nil
						})
					}
					_ = g.Wait()

					if c := unexpected.Load(); c > 0 {
						return fmt.Errorf("%d issues failed with an unexpected error", c)
					}
					return nil
				},
			},
		},
		Rollback: []Action{
			{
				Type:   "return-loans",
				Target: "circulation-engine",
				Execute: func(ctx context.Context) error {
					if user == nil {
						return nil
					}
					loans, err := t.Ledger.ListActive(ctx, &user.ID)
					if err != nil {
						return err
					}
					var errs []error
					for _, l := range loans {
						if _, err := t.Engine.ReturnBook(ctx, l.ID, false); err != nil {
							errs = append(errs, err)
						}
					}
					return errors.Join(errs...)
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "loans_over_cap",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "Active loans should never exceed the cap",
			},
			{
				Metric:    "successful_issues",
				Condition: func(v float64) bool { return v == float64(maxLoans) },
				Message:   "Exactly the cap's worth of issues should succeed",
			},
		},
	}
}

func newUsers(dir *directory.Static, n int) []*directory.User {
	users := make([]*directory.User, n)
	for i := range n {
		id := uuid.New()
		u := directory.User{
			ID:       id,
			Email:    fmt.Sprintf("chaos-%s@example.org", id.String()[:8]),
			Name:     fmt.Sprintf("Chaos Borrower %d", i+1),
			IsActive: true,
		}
		dir.Put(u)
		users[i] = &u
	}
	return users
}

// inconsistencies counts books whose status disagrees with their loans:
// borrowed without exactly one active loan, or lent while not borrowed.
func inconsistencies(ctx context.Context, t Target) (float64, error) {
	loans, err := t.Ledger.ListActive(ctx, nil)
	if err != nil {
		return 0, err
	}
	active := make(map[uuid.UUID]int, len(loans))
	for _, l := range loans {
		active[l.BookID]++
	}

	seq, err := t.Catalog.Search(ctx, "", catalog.FieldAll)
	if err != nil {
		return 0, err
	}
	var bad float64
	for b, err := range seq {
		if err != nil {
			return 0, err
		}
		n := active[b.ID]
		switch {
		case b.Status == catalog.StatusBorrowed && n != 1:
			bad++
		case b.Status != catalog.StatusBorrowed && n > 0:
			bad++
		}
	}
	return bad, nil
}
