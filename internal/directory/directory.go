// internal/directory/directory.go
package directory

import (
	"context"
	"slices"

	"github.com/google/uuid"
)

// RoleStaff marks users who receive long-overdue escalations.
const RoleStaff = "staff"

// User is the subset of a library member the circulation core needs.
type User struct {
	ID       uuid.UUID `json:"id" toml:"id"`
	Email    string    `json:"email" toml:"email"`
	Name     string    `json:"name" toml:"name"`
	IsActive bool      `json:"is_active" toml:"active"`
	Roles    []string  `json:"roles" toml:"roles"`
}

func (u *User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

// DisplayName falls back to the email address when no name is known.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// Directory resolves library users. Implementations return apperr.ErrNotFound
// for unknown ids and apperr.ErrDependencyFailure when the backend is unreachable.
type Directory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	ListByRole(ctx context.Context, role string) ([]*User, error)
}
