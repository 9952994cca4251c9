package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"libracirc/internal/apperr"
	"libracirc/internal/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSink struct {
	mock.Mock
	name string
}

func (m *mockSink) Name() string { return m.name }

func (m *mockSink) Deliver(ctx context.Context, msg Message) error {
	return m.Called(ctx, msg).Error(0)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var due = time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC)

func TestRender(t *testing.T) {
	tests := []struct {
		notice  Notice
		subject string
		parts   []string
	}{
		{
			LoanIssued{Name: "Ana", BookTitle: "Dune", DueDate: due},
			"Loan registered",
			[]string{"Dear Ana", "'Dune'", "16/03/2025", "Kind regards"},
		},
		{
			DueReminder{Name: "Ana", BookTitle: "Dune", DueDate: due},
			"Return reminder",
			[]string{"'Dune' is due back on 16/03/2025"},
		},
		{
			Overdue{Name: "Ana", BookTitle: "Dune", DueDate: due, DaysLate: 5, Fine: 30},
			"Loan overdue",
			[]string{"overdue since 16/03/2025 (5 days)", "Fines accrued so far: 30"},
		},
		{
			LongOverdue{BorrowerName: "Ana", BorrowerEmail: "ana@example.org", BookTitle: "Dune", BookCode: "B-001", DueDate: due, DaysLate: 31},
			"Long overdue loan",
			[]string{"(code B-001)", "Ana <ana@example.org>", "(31 days)"},
		},
		{
			BookAvailable{Name: "Ana", BookTitle: "Dune", HoldDays: 2},
			"Book available",
			[]string{"'Dune' you reserved is now available", "within the next 2 days"},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.notice.Kind()), func(t *testing.T) {
			subject, body := Render(tt.notice)
			assert.Equal(t, tt.subject, subject)
			for _, p := range tt.parts {
				assert.Contains(t, body, p)
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint(KindOverdue, "s", "b", "ana@example.org")
	assert.Len(t, a, 64)
	assert.Equal(t, a, Fingerprint(KindOverdue, "s", "b", "ana@example.org"))
	assert.NotEqual(t, a, Fingerprint(KindOverdue, "s", "b", "bob@example.org"))
	// Field boundaries matter.
	assert.NotEqual(t, Fingerprint(KindCustom, "ab", "c", "r"), Fingerprint(KindCustom, "a", "bc", "r"))
}

func TestDispatcherFansOut(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	first := &mockSink{name: "first"}
	second := &mockSink{name: "second"}

	isLoanIssued := mock.MatchedBy(func(m Message) bool {
		return m.Kind == KindLoanIssued && m.Recipient == "ana@example.org" && m.Subject == "Loan registered"
	})
	first.On("Deliver", mock.Anything, isLoanIssued).Return(nil).Once()
	second.On("Deliver", mock.Anything, isLoanIssued).Return(nil).Once()

	d := NewDispatcher(discard(), clk, first, second)
	msg, err := d.Send(ctx, LoanIssued{Name: "Ana", BookTitle: "Dune", DueDate: due}, "ana@example.org")
	require.NoError(t, err)

	assert.Equal(t, clk.Now(), msg.CreatedAt)
	assert.Equal(t, Fingerprint(msg.Kind, msg.Subject, msg.Body, msg.Recipient), msg.Fingerprint)
	first.AssertExpectations(t)
	second.AssertExpectations(t)
}

func TestDispatcherSinkFailure(t *testing.T) {
	ctx := context.Background()
	broken := &mockSink{name: "broken"}
	healthy := &mockSink{name: "healthy"}
	broken.On("Deliver", mock.Anything, mock.Anything).Return(errors.New("relay down"))
	healthy.On("Deliver", mock.Anything, mock.Anything).Return(nil)

	d := NewDispatcher(discard(), clock.System(), broken, healthy)
	msg, err := d.Dispatch(ctx, "Hello", "Body", "ana@example.org")

	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrDependencyFailure)
	assert.Contains(t, err.Error(), "broken: relay down")
	require.NotNil(t, msg)
	assert.Equal(t, KindCustom, msg.Kind)
	healthy.AssertNumberOfCalls(t, "Deliver", 1)
}

func TestDispatcherRequiresRecipient(t *testing.T) {
	sink := &mockSink{name: "sink"}
	d := NewDispatcher(discard(), clock.System(), sink)

	_, err := d.Send(context.Background(), BookAvailable{Name: "Ana", BookTitle: "Dune", HoldDays: 2}, "  ")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	sink.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)
}

func TestLogSink(t *testing.T) {
	var buf strings.Builder
	sink := NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, sink.Deliver(context.Background(), Message{Kind: KindOverdue, Recipient: "ana@example.org", Subject: "Loan overdue"}))
	assert.Contains(t, buf.String(), "recipient=ana@example.org")
	assert.Contains(t, buf.String(), "kind=overdue")
}
