package loan_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"libracirc/internal/apperr"
	"libracirc/internal/catalog"
	"libracirc/internal/clock"
	"libracirc/internal/directory"
	"libracirc/internal/loan"
	"libracirc/internal/store/memory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	clock   *clock.Fake
	users   *directory.Static
	catalog catalog.Service
	ledger  loan.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	clk := clock.NewFake(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	users := directory.NewStatic()
	cat := catalog.NewService(st, st, clk)
	return &fixture{
		clock:   clk,
		users:   users,
		catalog: cat,
		ledger:  loan.NewService(st, st, cat, users, clk, loan.DefaultPolicy()),
	}
}

func (f *fixture) user(t *testing.T, active bool) uuid.UUID {
	t.Helper()
	id := uuid.New()
	f.users.Put(directory.User{ID: id, Email: id.String()[:8] + "@example.org", IsActive: active})
	return id
}

func (f *fixture) book(t *testing.T, code string) *catalog.Book {
	t.Helper()
	b, err := f.catalog.CreateBook(context.Background(), catalog.NewBook{
		Title:  "Book " + code,
		Author: "Author",
		Code:   code,
	})
	require.NoError(t, err)
	return b
}

func TestIssue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, true)
	b := f.book(t, "B-001")

	l, err := f.ledger.Issue(ctx, u, b.ID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC), l.DueDate)
	assert.False(t, l.Returned)

	got, err := f.catalog.GetBook(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusBorrowed, got.Status)

	n, err := f.ledger.CountActive(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.ledger.Issue(ctx, f.user(t, true), b.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestIssueRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.book(t, "B-001")

	_, err := f.ledger.Issue(ctx, uuid.New(), b.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.ledger.Issue(ctx, f.user(t, false), b.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = f.ledger.Issue(ctx, f.user(t, true), uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.catalog.SetStatus(ctx, b.ID, catalog.StatusLost)
	require.NoError(t, err)
	_, err = f.ledger.Issue(ctx, f.user(t, true), b.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	// Rejections leave nothing behind.
	stats, err := f.ledger.Statistics(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalLoans)
}

func TestLoanCap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, true)

	var loans []*loan.Loan
	for i := range 5 {
		l, err := f.ledger.Issue(ctx, u, f.book(t, string(rune('A'+i))).ID)
		require.NoError(t, err)
		loans = append(loans, l)
	}

	sixth := f.book(t, "F")
	_, err := f.ledger.Issue(ctx, u, sixth.ID)
	require.ErrorIs(t, err, apperr.ErrResourceExhausted)

	got, err := f.catalog.GetBook(ctx, sixth.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusAvailable, got.Status)

	_, err = f.ledger.ProcessReturn(ctx, loans[0].ID, false)
	require.NoError(t, err)

	_, err = f.ledger.Issue(ctx, u, sixth.ID)
	assert.NoError(t, err)
}

func TestProcessReturnAssessesFine(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.book(t, "B-001")

	l, err := f.ledger.Issue(ctx, f.user(t, true), b.ID)
	require.NoError(t, err)

	f.clock.Set(l.DueDate.AddDate(0, 0, 5).Add(9 * time.Hour))
	receipt, err := f.ledger.ProcessReturn(ctx, l.ID, false)
	require.NoError(t, err)

	assert.Equal(t, 5, receipt.DaysLate)
	assert.Equal(t, 30, receipt.FineAmount)
	assert.Equal(t, catalog.StatusAvailable, receipt.BookStatus)
	assert.True(t, receipt.Loan.Returned)
	require.NotNil(t, receipt.Loan.ReturnedDate)

	got, err := f.catalog.GetBook(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusAvailable, got.Status)

	_, err = f.ledger.ProcessReturn(ctx, l.ID, false)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestProcessReturnDamaged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.book(t, "B-001")

	l, err := f.ledger.Issue(ctx, f.user(t, true), b.ID)
	require.NoError(t, err)

	receipt, err := f.ledger.ProcessReturn(ctx, l.ID, true)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusDamaged, receipt.BookStatus)
	assert.Zero(t, receipt.FineAmount)

	got, err := f.catalog.GetBook(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusDamaged, got.Status)
}

func TestListings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u1, u2 := f.user(t, true), f.user(t, true)

	early, err := f.ledger.Issue(ctx, u1, f.book(t, "A").ID)
	require.NoError(t, err)

	f.clock.AddDays(4)
	late, err := f.ledger.Issue(ctx, u2, f.book(t, "B").ID)
	require.NoError(t, err)

	active, err := f.ledger.ListActive(ctx, nil)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, early.ID, active[0].ID)

	mine, err := f.ledger.ListActive(ctx, &u2)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, late.ID, mine[0].ID)

	due, err := f.ledger.ListDueOn(ctx, early.DueDate.Add(15*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, early.ID, due[0].ID)

	// On the first loan's due date nothing is overdue yet.
	f.clock.Set(early.DueDate)
	overdue, err := f.ledger.ListOverdue(ctx)
	require.NoError(t, err)
	assert.Empty(t, overdue)

	f.clock.AddDays(1)
	overdue, err = f.ledger.ListOverdue(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, early.ID, overdue[0].ID)

	stats, err := f.ledger.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, loan.Statistics{TotalLoans: 2, ActiveLoans: 2, OverdueLoans: 1}, *stats)
}

func TestCanExtend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	l, err := f.ledger.Issue(ctx, f.user(t, true), f.book(t, "A").ID)
	require.NoError(t, err)

	ok, err := f.ledger.CanExtend(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	f.clock.Set(l.DueDate.Add(20 * time.Hour))
	ok, err = f.ledger.CanExtend(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, ok, "the due date itself still allows an extension")

	f.clock.AddDays(1)
	ok, err = f.ledger.CanExtend(ctx, l.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.ledger.CanExtend(ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestConcurrentIssueSameBook(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.book(t, "B-001")

	const n = 25
	users := make([]uuid.UUID, n)
	for i := range users {
		users[i] = f.user(t, true)
	}

	var (
		wg           sync.WaitGroup
		successes    atomic.Int32
		invalidState atomic.Int32
	)
	for _, u := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Issue(ctx, u, b.ID)
			switch {
			case err == nil:
				successes.Add(1)
			case apperr.Kind(err) == apperr.ErrInvalidState:
				invalidState.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, successes.Load())
	assert.EqualValues(t, n-1, invalidState.Load())

	active, err := f.ledger.ListActive(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestConcurrentIssueRespectsCap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t, true)

	books := make([]*catalog.Book, 12)
	for i := range books {
		books[i] = f.book(t, uuid.NewString())
	}

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for _, b := range books {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.ledger.Issue(ctx, u, b.ID); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 5, successes.Load())
	n, err := f.ledger.CountActive(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}
