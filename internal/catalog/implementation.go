// internal/catalog/implementation.go
package catalog

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"libracirc/internal/apperr"
	"libracirc/internal/clock"
	"libracirc/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// service implements the Service interface.
type service struct {
	repo   Repository
	tx     store.Transactor
	clock  clock.Clock
	tracer trace.Tracer
}

// NewService creates a new catalog service instance.
func NewService(repo Repository, tx store.Transactor, clk clock.Clock) Service {
	return &service{
		repo:   repo,
		tx:     tx,
		clock:  clk,
		tracer: otel.Tracer("libracirc/catalog"),
	}
}

// CreateBook catalogues a new copy; it starts out available.
func (s *service) CreateBook(ctx context.Context, nb NewBook) (*Book, error) {
	if err := nb.Validate(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	book := &Book{
		ID:        uuid.New(),
		Title:     strings.TrimSpace(nb.Title),
		Author:    strings.TrimSpace(nb.Author),
		Genre:     strings.TrimSpace(nb.Genre),
		Code:      strings.TrimSpace(nb.Code),
		Status:    StatusAvailable,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertBook(ctx, book); err != nil {
		return nil, fmt.Errorf("failed to insert book: %w", err)
	}
	return book, nil
}

func (s *service) GetBook(ctx context.Context, id uuid.UUID) (*Book, error) {
	return s.repo.GetBook(ctx, id, false)
}

func (s *service) GetBookForUpdate(ctx context.Context, id uuid.UUID) (*Book, error) {
	return s.repo.GetBook(ctx, id, true)
}

// UpdateBook changes descriptive fields. Status is not touched here.
func (s *service) UpdateBook(ctx context.Context, id uuid.UUID, upd BookUpdate) (*Book, error) {
	var book *Book
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		b, err := s.repo.GetBook(ctx, id, true)
		if err != nil {
			return err
		}
		if err := upd.apply(b); err != nil {
			return err
		}
		b.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateBook(ctx, b); err != nil {
			return fmt.Errorf("failed to update book: %w", err)
		}
		book = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return book, nil
}

// SetStatus is a pure state transition. Loan and reservation side effects
// belong to the circulation engine.
func (s *service) SetStatus(ctx context.Context, id uuid.UUID, status Status) (*Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.set_status",
		trace.WithAttributes(
			attribute.String("book.id", id.String()),
			attribute.String("book.status", string(status)),
		),
	)
	defer span.End()

	if !status.Valid() {
		return nil, apperr.InvalidArgument("invalid book status %q", status)
	}

	var book *Book
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		b, err := s.repo.GetBook(ctx, id, true)
		if err != nil {
			return err
		}
		b.Status = status
		b.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateBook(ctx, b); err != nil {
			return fmt.Errorf("failed to update book status: %w", err)
		}
		book = b
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return book, nil
}

// DeleteBook removes a book that has no active loan or reservation.
// Closed loans and reservations are removed along with it.
func (s *service) DeleteBook(ctx context.Context, id uuid.UUID) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetBook(ctx, id, true); err != nil {
			return err
		}
		loans, reservations, err := s.repo.BookReferences(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to count book references: %w", err)
		}
		if loans > 0 {
			return apperr.Conflict("book %s has an active loan", id)
		}
		if reservations > 0 {
			return apperr.Conflict("book %s has %d active reservations", id, reservations)
		}
		if err := s.repo.DeleteBook(ctx, id); err != nil {
			return fmt.Errorf("failed to delete book: %w", err)
		}
		return nil
	})
}

func (s *service) Search(ctx context.Context, text string, field Field) (iter.Seq2[*Book, error], error) {
	if field == "" {
		field = FieldAll
	}
	if !field.Valid() {
		return nil, apperr.InvalidArgument("invalid search field %q", field)
	}
	q := SearchQuery{Text: text, Field: field}

	return func(yield func(*Book, error) bool) {
		books, err := s.repo.SearchBooks(ctx, q)
		if err != nil {
			yield(nil, fmt.Errorf("failed to search books: %w", err))
			return
		}
		for _, b := range books {
			if !yield(b, nil) {
				return
			}
		}
	}, nil
}
