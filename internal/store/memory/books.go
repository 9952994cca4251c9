// internal/store/memory/books.go
package memory

import (
	"cmp"
	"context"
	"slices"

	"libracirc/internal/apperr"
	"libracirc/internal/catalog"

	"github.com/google/uuid"
)

func (s *Store) InsertBook(ctx context.Context, b *catalog.Book) error {
	return s.write(ctx, func(st *state) error {
		for _, other := range st.books {
			if other.Code == b.Code {
				return apperr.Conflict("book code %q already exists", b.Code)
			}
		}
		st.books[b.ID] = *b
		return nil
	})
}

// GetBook ignores forUpdate: transactions are already serialised.
func (s *Store) GetBook(ctx context.Context, id uuid.UUID, _ bool) (*catalog.Book, error) {
	var out *catalog.Book
	err := s.read(ctx, func(st *state) error {
		b, ok := st.books[id]
		if !ok {
			return apperr.NotFound("book %s not found", id)
		}
		out = &b
		return nil
	})
	return out, err
}

func (s *Store) UpdateBook(ctx context.Context, b *catalog.Book) error {
	return s.write(ctx, func(st *state) error {
		if _, ok := st.books[b.ID]; !ok {
			return apperr.NotFound("book %s not found", b.ID)
		}
		for _, other := range st.books {
			if other.ID != b.ID && other.Code == b.Code {
				return apperr.Conflict("book code %q already exists", b.Code)
			}
		}
		st.books[b.ID] = *b
		return nil
	})
}

// DeleteBook removes the book with its loan and reservation history.
func (s *Store) DeleteBook(ctx context.Context, id uuid.UUID) error {
	return s.write(ctx, func(st *state) error {
		if _, ok := st.books[id]; !ok {
			return apperr.NotFound("book %s not found", id)
		}
		delete(st.books, id)
		for lid, l := range st.loans {
			if l.BookID == id {
				delete(st.loans, lid)
			}
		}
		for rid, r := range st.reservations {
			if r.BookID == id {
				delete(st.reservations, rid)
			}
		}
		return nil
	})
}

func (s *Store) SearchBooks(ctx context.Context, q catalog.SearchQuery) ([]*catalog.Book, error) {
	var out []*catalog.Book
	err := s.read(ctx, func(st *state) error {
		for _, b := range st.books {
			if b.Matches(q) {
				out = append(out, &b)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b *catalog.Book) int {
		return cmp.Or(cmp.Compare(a.Title, b.Title), cmp.Compare(a.ID.String(), b.ID.String()))
	})
	return out, err
}

func (s *Store) BookReferences(ctx context.Context, id uuid.UUID) (activeLoans, activeReservations int, err error) {
	err = s.read(ctx, func(st *state) error {
		for _, l := range st.loans {
			if l.BookID == id && !l.Returned {
				activeLoans++
			}
		}
		for _, r := range st.reservations {
			if r.BookID == id && r.Active {
				activeReservations++
			}
		}
		return nil
	})
	return activeLoans, activeReservations, err
}
