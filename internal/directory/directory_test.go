package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"libracirc/internal/apperr"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	ctx := context.Background()
	ana := User{ID: uuid.New(), Email: "ana@example.org", Name: "Ana", IsActive: true, Roles: []string{RoleStaff}}
	bob := User{ID: uuid.New(), Email: "bob@example.org", IsActive: true}
	cleo := User{ID: uuid.New(), Email: "cleo@example.org", IsActive: false, Roles: []string{RoleStaff}}
	dir := NewStatic(ana, bob, cleo)

	got, err := dir.GetUser(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob@example.org", got.DisplayName())

	_, err = dir.GetUser(ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	staff, err := dir.ListByRole(ctx, RoleStaff)
	require.NoError(t, err)
	require.Len(t, staff, 2)
	assert.Equal(t, ana.ID, staff[0].ID)
	assert.Equal(t, cleo.ID, staff[1].ID)

	bob.Roles = []string{RoleStaff}
	dir.Put(bob)
	staff, err = dir.ListByRole(ctx, RoleStaff)
	require.NoError(t, err)
	assert.Len(t, staff, 3)
	assert.Equal(t, bob.ID, staff[1].ID, "replacing a user keeps its position")
}

func TestHTTPClientGetUser(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/members/" + id.String():
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"` + id.String() + `","email":"ana@example.org","name":"Ana","status":"active","roles":["staff"]}`))
		case "/members":
			assert.Equal(t, "staff", r.URL.Query().Get("role"))
			w.Write([]byte(`[{"id":"` + id.String() + `","email":"ana@example.org","status":"suspended"}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)

	u, err := c.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Ana", u.Name)
	assert.True(t, u.IsActive)
	assert.True(t, u.HasRole(RoleStaff))

	staff, err := c.ListByRole(ctx, RoleStaff)
	require.NoError(t, err)
	require.Len(t, staff, 1)
	assert.False(t, staff[0].IsActive)

	// Unknown users never trip the breaker.
	for range 10 {
		_, err = c.GetUser(ctx, uuid.New())
		require.ErrorIs(t, err, apperr.ErrNotFound)
	}
	_, err = c.GetUser(ctx, id)
	assert.NoError(t, err)
}

func TestHTTPClientBreakerOpens(t *testing.T) {
	ctx := context.Background()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	for range 5 {
		_, err := c.GetUser(ctx, uuid.New())
		require.ErrorIs(t, err, apperr.ErrDependencyFailure)
	}

	_, err := c.GetUser(ctx, uuid.New())
	require.ErrorIs(t, err, apperr.ErrDependencyFailure)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.EqualValues(t, 5, hits.Load())
}

func TestHTTPClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPClient(url, time.Second).ListByRole(context.Background(), RoleStaff)
	assert.ErrorIs(t, err, apperr.ErrDependencyFailure)
}
