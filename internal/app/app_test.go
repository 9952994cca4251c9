package app_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"libracirc/internal/app"
	"libracirc/internal/catalog"
	"libracirc/internal/circulation"
	"libracirc/internal/clock"
	"libracirc/internal/config"
	"libracirc/internal/directory"
	"libracirc/internal/loan"
	"libracirc/internal/notify"
	"libracirc/internal/reservation"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type harness struct {
	clock *clock.Fake
	app   *app.App
	srv   *httptest.Server
	ana   *directory.User
	bob   *directory.User
}

func newHarness(t *testing.T, tweak func(*config.Config)) *harness {
	t.Helper()
	ana := &directory.User{ID: uuid.New(), Email: "ana@example.org", Name: "Ana", IsActive: true}
	bob := &directory.User{ID: uuid.New(), Email: "bob@example.org", Name: "Bob", IsActive: true}
	staff := &directory.User{ID: uuid.New(), Email: "desk@example.org", IsActive: true, Roles: []string{directory.RoleStaff}}

	cfg := config.DefaultConfig()
	cfg.Database = config.DatabaseConfig{Driver: "memory"}
	cfg.Notify = config.NotifyConfig{Persist: true}
	cfg.Server.RateLimit = 0
	cfg.Directory.Users = []*directory.User{ana, bob, staff}
	if tweak != nil {
		tweak(&cfg)
	}
	require.NoError(t, cfg.Validate())

	clk := clock.NewFake(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := app.NewWithClock(context.Background(), cfg, logger, clk)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return &harness{clock: clk, app: a, srv: srv, ana: ana, bob: bob}
}

func (h *harness) do(t *testing.T, method, path string, body any, want int, out any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, want, resp.StatusCode, "%s %s: %s", method, path, raw)
	if out != nil {
		require.NoError(t, json.Unmarshal(raw, out))
	}
}

func TestCirculationOverHTTP(t *testing.T) {
	h := newHarness(t, nil)

	var book catalog.Book
	h.do(t, http.MethodPost, "/books", catalog.NewBook{
		Title: "The Left Hand of Darkness", Author: "Ursula K. Le Guin", Genre: "Fiction", Code: "LG-3",
	}, http.StatusCreated, &book)
	assert.Equal(t, catalog.StatusAvailable, book.Status)

	var l loan.Loan
	h.do(t, http.MethodPost, "/loans", map[string]uuid.UUID{"user_id": h.ana.ID, "book_id": book.ID}, http.StatusCreated, &l)
	assert.Equal(t, time.Date(2025, 3, 16, 0, 0, 0, 0, time.UTC), l.DueDate.UTC())

	// A second borrower is turned away and queues instead.
	h.do(t, http.MethodPost, "/loans", map[string]uuid.UUID{"user_id": h.bob.ID, "book_id": book.ID}, http.StatusConflict, nil)
	var res reservation.Reservation
	h.do(t, http.MethodPost, "/reservations", map[string]uuid.UUID{"user_id": h.bob.ID, "book_id": book.ID}, http.StatusCreated, &res)

	var queue []reservation.Reservation
	h.do(t, http.MethodGet, "/books/"+book.ID.String()+"/queue", nil, http.StatusOK, &queue)
	require.Len(t, queue, 1)
	assert.Equal(t, h.bob.ID, queue[0].UserID)

	h.clock.AddDays(20)
	var overdue []loan.Loan
	h.do(t, http.MethodGet, "/loans/overdue", nil, http.StatusOK, &overdue)
	require.Len(t, overdue, 1)

	var result circulation.ReturnResult
	h.do(t, http.MethodPost, "/loans/"+l.ID.String()+"/return", nil, http.StatusOK, &result)
	assert.Equal(t, 5, result.DaysLate)
	assert.Equal(t, 30, result.FineAmount)
	assert.Equal(t, catalog.StatusAvailable, result.BookStatus)
	require.NotNil(t, result.NotifiedReservation)
	assert.Equal(t, res.ID, result.NotifiedReservation.ID)

	var inbox []notify.Message
	h.do(t, http.MethodGet, "/notifications?recipient=bob@example.org", nil, http.StatusOK, &inbox)
	require.Len(t, inbox, 1)
	assert.Equal(t, notify.KindBookAvailable, inbox[0].Kind)
	h.do(t, http.MethodPost, "/notifications/"+inbox[0].ID.String()+"/read", nil, http.StatusNoContent, nil)
	h.do(t, http.MethodGet, "/notifications?recipient=bob@example.org", nil, http.StatusOK, &inbox)
	assert.Empty(t, inbox)

	var stats loan.Statistics
	h.do(t, http.MethodGet, "/loans/statistics", nil, http.StatusOK, &stats)
	assert.Equal(t, loan.Statistics{TotalLoans: 1, ReturnedLoans: 1}, stats)

	h.do(t, http.MethodPost, "/loans/"+l.ID.String()+"/return", nil, http.StatusConflict, nil)
}

func TestReturnWithEmptyChunkedBody(t *testing.T) {
	h := newHarness(t, nil)

	var book catalog.Book
	h.do(t, http.MethodPost, "/books", catalog.NewBook{Title: "Parable of the Sower", Author: "Octavia E. Butler", Code: "OB-2"}, http.StatusCreated, &book)
	var l loan.Loan
	h.do(t, http.MethodPost, "/loans", map[string]uuid.UUID{"user_id": h.ana.ID, "book_id": book.ID}, http.StatusCreated, &l)

	// A client that streams its body sends no Content-Length.
	req := httptest.NewRequest(http.MethodPost, "/loans/"+l.ID.String()+"/return", io.NopCloser(strings.NewReader("")))
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	h.app.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result circulation.ReturnResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, catalog.StatusAvailable, result.BookStatus)
	assert.Zero(t, result.FineAmount)
}

func TestSweepsOverHTTP(t *testing.T) {
	h := newHarness(t, nil)

	var book catalog.Book
	h.do(t, http.MethodPost, "/books", catalog.NewBook{Title: "Kindred", Author: "Octavia E. Butler", Code: "OB-1"}, http.StatusCreated, &book)
	h.do(t, http.MethodPost, "/loans", map[string]uuid.UUID{"user_id": h.ana.ID, "book_id": book.ID}, http.StatusCreated, nil)

	h.clock.AddDays(12)
	var report circulation.SweepReport
	h.do(t, http.MethodPost, "/sweeps/upcoming", nil, http.StatusOK, &report)
	assert.Equal(t, circulation.SweepReport{Loans: 1, Sent: 1}, report)

	h.clock.AddDays(33)
	h.do(t, http.MethodPost, "/sweeps/overdue", nil, http.StatusOK, &report)
	assert.Equal(t, circulation.SweepReport{Loans: 1, Sent: 1, Escalations: 1}, report)

	var inbox []notify.Message
	h.do(t, http.MethodGet, "/notifications?recipient=desk@example.org", nil, http.StatusOK, &inbox)
	require.Len(t, inbox, 1)
	assert.Equal(t, notify.KindLongOverdue, inbox[0].Kind)

	require.NoError(t, h.app.Sweep(context.Background()))
}

func TestRequestErrors(t *testing.T) {
	h := newHarness(t, nil)

	h.do(t, http.MethodGet, "/books/not-a-uuid", nil, http.StatusBadRequest, nil)
	h.do(t, http.MethodGet, "/books/"+uuid.NewString(), nil, http.StatusNotFound, nil)
	h.do(t, http.MethodPost, "/loans", map[string]string{"user_id": h.ana.ID.String()}, http.StatusBadRequest, nil)
	h.do(t, http.MethodPost, "/loans", map[string]uuid.UUID{"user_id": uuid.New(), "book_id": uuid.New()}, http.StatusNotFound, nil)
	h.do(t, http.MethodGet, "/notifications", nil, http.StatusBadRequest, nil)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, nil)

	var health map[string]string
	h.do(t, http.MethodGet, "/health", nil, http.StatusOK, &health)
	assert.Equal(t, "ok", health["status"])

	h.do(t, http.MethodGet, "/books/search?q=x", nil, http.StatusOK, nil)
	resp, err := http.Get(h.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "libracirc_http_request_duration_seconds")
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Server.RateLimit = 0.001
		c.Server.RateBurst = 1
	})

	h.do(t, http.MethodGet, "/loans/overdue", nil, http.StatusOK, nil)
	h.do(t, http.MethodGet, "/loans/overdue", nil, http.StatusTooManyRequests, nil)
	// Health checks are not limited.
	h.do(t, http.MethodGet, "/health", nil, http.StatusOK, nil)
}

func TestSendFreeFormNotification(t *testing.T) {
	h := newHarness(t, nil)

	var sent notify.Message
	h.do(t, http.MethodPost, "/notifications", map[string]string{
		"subject":   "Library closed on Monday",
		"message":   "The library is closed for maintenance on Monday.",
		"recipient": "ana@example.org",
	}, http.StatusAccepted, &sent)
	assert.Equal(t, notify.KindCustom, sent.Kind)

	var inbox []notify.Message
	h.do(t, http.MethodGet, "/notifications?recipient=ana@example.org", nil, http.StatusOK, &inbox)
	require.Len(t, inbox, 1)
	assert.Equal(t, sent.ID, inbox[0].ID)
	assert.Equal(t, "Library closed on Monday", inbox[0].Subject)

	h.do(t, http.MethodPost, "/notifications", map[string]string{"subject": "s", "message": "m"}, http.StatusBadRequest, nil)
	h.do(t, http.MethodPost, "/notifications", map[string]string{"recipient": "ana@example.org"}, http.StatusBadRequest, nil)
}
