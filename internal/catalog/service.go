// internal/catalog/service.go
package catalog

import (
	"context"
	"iter"

	"github.com/google/uuid"
)

// Service defines the interface for the catalog store. It is the only
// component allowed to change a book's status.
type Service interface {
	CreateBook(ctx context.Context, nb NewBook) (*Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (*Book, error)
	// GetBookForUpdate reads the book and, inside a transaction, locks it
	// until commit. Issue, return, reserve and queue reads on the same book
	// serialise on this lock.
	GetBookForUpdate(ctx context.Context, id uuid.UUID) (*Book, error)
	UpdateBook(ctx context.Context, id uuid.UUID, upd BookUpdate) (*Book, error)
	SetStatus(ctx context.Context, id uuid.UUID, status Status) (*Book, error)
	DeleteBook(ctx context.Context, id uuid.UUID) error
	// Search returns a lazy sequence ordered by title. Each range over the
	// sequence runs the query again.
	Search(ctx context.Context, text string, field Field) (iter.Seq2[*Book, error], error)
}

// Repository is the persistence port the catalog service needs.
type Repository interface {
	InsertBook(ctx context.Context, b *Book) error
	GetBook(ctx context.Context, id uuid.UUID, forUpdate bool) (*Book, error)
	UpdateBook(ctx context.Context, b *Book) error
	DeleteBook(ctx context.Context, id uuid.UUID) error
	SearchBooks(ctx context.Context, q SearchQuery) ([]*Book, error)
	// BookReferences counts the active loans and active reservations on a book.
	BookReferences(ctx context.Context, id uuid.UUID) (activeLoans, activeReservations int, err error)
}
