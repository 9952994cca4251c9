package loan_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"libracirc/internal/apperr"
	"libracirc/internal/catalog"
	"libracirc/internal/clock"
	"libracirc/internal/directory"
	"libracirc/internal/loan"
	"libracirc/internal/store/memory"

	"github.com/google/uuid"
	"pgregory.net/rapid"
)

// TestLedgerInvariants drives random issue/return sequences and checks after
// every step that book status agrees with the active loans and that no user
// goes over the cap.
func TestLedgerInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		st := memory.New()
		clk := clock.NewFake(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
		users := directory.NewStatic()
		policy := loan.DefaultPolicy()
		policy.MaxLoans = 2
		cat := catalog.NewService(st, st, clk)
		ledger := loan.NewService(st, st, cat, users, clk, policy)

		userIDs := make([]uuid.UUID, 3)
		for i := range userIDs {
			userIDs[i] = uuid.New()
			users.Put(directory.User{ID: userIDs[i], Email: fmt.Sprintf("u%d@example.org", i), IsActive: true})
		}
		bookIDs := make([]uuid.UUID, 4)
		for i := range bookIDs {
			b, err := cat.CreateBook(ctx, catalog.NewBook{Title: fmt.Sprintf("Book %d", i), Author: "A", Code: fmt.Sprintf("B-%d", i)})
			if err != nil {
				t.Fatalf("create book: %v", err)
			}
			bookIDs[i] = b.ID
		}

		var issued []uuid.UUID
		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for range steps {
			switch rapid.SampledFrom([]string{"issue", "return", "tick"}).Draw(t, "op") {
			case "issue":
				u := rapid.SampledFrom(userIDs).Draw(t, "user")
				b := rapid.SampledFrom(bookIDs).Draw(t, "book")
				l, err := ledger.Issue(ctx, u, b)
				switch {
				case err == nil:
					issued = append(issued, l.ID)
				case errors.Is(err, apperr.ErrInvalidState), errors.Is(err, apperr.ErrResourceExhausted):
				default:
					t.Fatalf("unexpected issue error: %v", err)
				}
			case "return":
				if len(issued) == 0 {
					continue
				}
				id := rapid.SampledFrom(issued).Draw(t, "loan")
				damaged := rapid.IntRange(0, 9).Draw(t, "damage roll") == 0
				before, err := ledger.GetLoan(ctx, id)
				if err != nil {
					t.Fatalf("get loan: %v", err)
				}
				_, err = ledger.ProcessReturn(ctx, id, damaged)
				if before.Returned != errors.Is(err, apperr.ErrInvalidState) {
					t.Fatalf("return of loan (returned=%v) gave %v", before.Returned, err)
				}
			case "tick":
				clk.AddDays(rapid.IntRange(1, 10).Draw(t, "days"))
			}

			active, err := ledger.ListActive(ctx, nil)
			if err != nil {
				t.Fatalf("list active: %v", err)
			}
			perBook := map[uuid.UUID]int{}
			perUser := map[uuid.UUID]int{}
			for _, l := range active {
				perBook[l.BookID]++
				perUser[l.UserID]++
			}
			for u, n := range perUser {
				if n > policy.MaxLoans {
					t.Fatalf("user %s holds %d loans", u, n)
				}
			}
			for _, id := range bookIDs {
				b, err := cat.GetBook(ctx, id)
				if err != nil {
					t.Fatalf("get book: %v", err)
				}
				if (b.Status == catalog.StatusBorrowed) != (perBook[id] == 1) || perBook[id] > 1 {
					t.Fatalf("book %s is %s with %d active loans", id, b.Status, perBook[id])
				}
			}
		}
	})
}
