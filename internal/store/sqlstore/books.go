// internal/store/sqlstore/books.go
package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"libracirc/internal/apperr"
	"libracirc/internal/catalog"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
)

var bookColumns = []any{"id", "title", "author", "genre", "code", "status", "created_at", "updated_at"}

func bookRecord(b *catalog.Book) goqu.Record {
	return goqu.Record{
		"id":         b.ID.String(),
		"title":      b.Title,
		"author":     b.Author,
		"genre":      b.Genre,
		"code":       b.Code,
		"status":     string(b.Status),
		"created_at": b.CreatedAt.UTC(),
		"updated_at": b.UpdatedAt.UTC(),
	}
}

func (s *Store) InsertBook(ctx context.Context, b *catalog.Book) error {
	if _, err := s.exec(ctx, s.insert("books").Rows(bookRecord(b))); err != nil {
		return err
	}
	return nil
}

func (s *Store) GetBook(ctx context.Context, id uuid.UUID, forUpdate bool) (*catalog.Book, error) {
	ds := s.from("books").Select(bookColumns...).Where(goqu.C("id").Eq(id.String()))
	var b catalog.Book
	if err := s.get(ctx, &b, s.forUpdate(ds, forUpdate)); err != nil {
		return nil, notFound(err, "book %s not found", id)
	}
	return &b, nil
}

func (s *Store) UpdateBook(ctx context.Context, b *catalog.Book) error {
	rec := bookRecord(b)
	delete(rec, "id")
	delete(rec, "created_at")
	n, err := s.exec(ctx, s.update("books").Set(rec).Where(goqu.C("id").Eq(b.ID.String())))
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("book %s not found", b.ID)
	}
	return nil
}

// DeleteBook removes the book with its loan and reservation history.
func (s *Store) DeleteBook(ctx context.Context, id uuid.UUID) error {
	return s.RunInTx(ctx, func(ctx context.Context) error {
		for _, table := range []string{"loans", "reservations"} {
			if _, err := s.exec(ctx, s.delete(table).Where(goqu.C("book_id").Eq(id.String()))); err != nil {
				return fmt.Errorf("delete %s: %w", table, err)
			}
		}
		n, err := s.exec(ctx, s.delete("books").Where(goqu.C("id").Eq(id.String())))
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.NotFound("book %s not found", id)
		}
		return nil
	})
}

func (s *Store) SearchBooks(ctx context.Context, q catalog.SearchQuery) ([]*catalog.Book, error) {
	needle := strings.ToLower(q.Text)
	contains := func(col string) exp.Expression {
		if s.driver == Postgres {
			return goqu.L("strpos(lower(?), ?) > 0", goqu.C(col), needle)
		}
		return goqu.L("instr(lower(?), ?) > 0", goqu.C(col), needle)
	}

	var where exp.Expression
	switch q.Field {
	case catalog.FieldAll:
		where = goqu.Or(contains("title"), contains("author"), contains("genre"), contains("code"))
	case catalog.FieldTitle, catalog.FieldAuthor, catalog.FieldGenre, catalog.FieldCode:
		where = contains(string(q.Field))
	default:
		return nil, apperr.InvalidArgument("invalid search field %q", q.Field)
	}

	ds := s.from("books").Select(bookColumns...).Where(where).Order(goqu.C("title").Asc(), goqu.C("id").Asc())
	var books []*catalog.Book
	if err := s.selectAll(ctx, &books, ds); err != nil {
		return nil, err
	}
	return books, nil
}

func (s *Store) BookReferences(ctx context.Context, id uuid.UUID) (activeLoans, activeReservations int, err error) {
	loans := s.from("loans").Select(goqu.COUNT(goqu.Star())).
		Where(goqu.C("book_id").Eq(id.String()), goqu.C("returned").IsFalse())
	if err := s.get(ctx, &activeLoans, loans); err != nil {
		return 0, 0, err
	}
	reservations := s.from("reservations").Select(goqu.COUNT(goqu.Star())).
		Where(goqu.C("book_id").Eq(id.String()), goqu.C("active").IsTrue())
	if err := s.get(ctx, &activeReservations, reservations); err != nil {
		return 0, 0, err
	}
	return activeLoans, activeReservations, nil
}
