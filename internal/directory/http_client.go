// internal/directory/http_client.go
package directory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"libracirc/internal/apperr"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/sony/gobreaker"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// member is the membership service's wire representation.
type member struct {
	ID     uuid.UUID `json:"id"`
	Email  string    `json:"email"`
	Name   string    `json:"name"`
	Status string    `json:"status"`
	Roles  []string  `json:"roles"`
}

func (m member) toUser() *User {
	return &User{
		ID:       m.ID,
		Email:    m.Email,
		Name:     m.Name,
		IsActive: m.Status == "active",
		Roles:    m.Roles,
	}
}

// HTTPClient talks to the membership service behind a circuit breaker.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "user-directory",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// An unknown user is an answer, not an outage.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, apperr.ErrNotFound)
			},
		}),
	}
}

func (c *HTTPClient) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	var m member
	if err := c.get(ctx, fmt.Sprintf("%s/members/%s", c.baseURL, id), &m); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound("user %s not found", id)
		}
		return nil, err
	}
	return m.toUser(), nil
}

func (c *HTTPClient) ListByRole(ctx context.Context, role string) ([]*User, error) {
	var members []member
	endpoint := fmt.Sprintf("%s/members?role=%s", c.baseURL, url.QueryEscape(role))
	if err := c.get(ctx, endpoint, &members); err != nil {
		return nil, err
	}
	users := make([]*User, 0, len(members))
	for _, m := range members {
		users = append(users, m.toUser())
	}
	return users, nil
}

func (c *HTTPClient) get(ctx context.Context, endpoint string, dst any) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, apperr.NotFound("not found")
		case resp.StatusCode != http.StatusOK:
			return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
		return nil, json.NewDecoder(resp.Body).Decode(dst)
	})
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return apperr.DependencyFailure(err, "user directory unavailable")
	}
	return err
}
