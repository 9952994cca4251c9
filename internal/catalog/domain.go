// internal/catalog/domain.go
package catalog

import (
	"strings"
	"time"

	"libracirc/internal/apperr"

	"github.com/google/uuid"
)

// Status is the circulation state of a single book copy.
type Status string

const (
	StatusAvailable Status = "available"
	StatusBorrowed  Status = "borrowed"
	StatusLost      Status = "lost"
	StatusDamaged   Status = "damaged"
)

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusBorrowed, StatusLost, StatusDamaged:
		return true
	}
	return false
}

// Field selects which book attribute a search matches against.
type Field string

const (
	FieldTitle  Field = "title"
	FieldAuthor Field = "author"
	FieldGenre  Field = "genre"
	FieldCode   Field = "code"
	FieldAll    Field = "all"
)

func (f Field) Valid() bool {
	switch f {
	case FieldTitle, FieldAuthor, FieldGenre, FieldCode, FieldAll:
		return true
	}
	return false
}

// Book represents a single physical copy held by the library.
type Book struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Author    string    `json:"author" db:"author"`
	Genre     string    `json:"genre" db:"genre"`
	Code      string    `json:"code" db:"code"`
	Status    Status    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Matches reports whether the book matches a case-insensitive substring
// search. FieldAll matches when any of the four fields does.
func (b *Book) Matches(q SearchQuery) bool {
	needle := strings.ToLower(q.Text)
	contains := func(s string) bool { return strings.Contains(strings.ToLower(s), needle) }

	switch q.Field {
	case FieldTitle:
		return contains(b.Title)
	case FieldAuthor:
		return contains(b.Author)
	case FieldGenre:
		return contains(b.Genre)
	case FieldCode:
		return contains(b.Code)
	case FieldAll:
		return contains(b.Title) || contains(b.Author) || contains(b.Genre) || contains(b.Code)
	}
	return false
}

// NewBook carries the fields an administrator supplies when cataloguing a book.
type NewBook struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Genre  string `json:"genre"`
	Code   string `json:"code"`
}

func (n NewBook) Validate() error {
	if strings.TrimSpace(n.Title) == "" {
		return apperr.InvalidArgument("title is required")
	}
	if strings.TrimSpace(n.Author) == "" {
		return apperr.InvalidArgument("author is required")
	}
	if strings.TrimSpace(n.Code) == "" {
		return apperr.InvalidArgument("code is required")
	}
	return nil
}

// BookUpdate is a partial update; nil fields are left unchanged.
type BookUpdate struct {
	Title  *string `json:"title,omitempty"`
	Author *string `json:"author,omitempty"`
	Genre  *string `json:"genre,omitempty"`
	Code   *string `json:"code,omitempty"`
}

func (u BookUpdate) apply(b *Book) error {
	set := func(dst *string, v *string, name string, required bool) error {
		if v == nil {
			return nil
		}
		if required && strings.TrimSpace(*v) == "" {
			return apperr.InvalidArgument("%s cannot be empty", name)
		}
		*dst = *v
		return nil
	}
	if err := set(&b.Title, u.Title, "title", true); err != nil {
		return err
	}
	if err := set(&b.Author, u.Author, "author", true); err != nil {
		return err
	}
	if err := set(&b.Genre, u.Genre, "genre", false); err != nil {
		return err
	}
	return set(&b.Code, u.Code, "code", true)
}

// SearchQuery is a case-insensitive substring search over one field or all of them.
type SearchQuery struct {
	Text  string
	Field Field
}
