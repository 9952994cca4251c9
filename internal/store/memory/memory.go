// internal/store/memory/memory.go
package memory

import (
	"context"
	"maps"
	"sync"

	"libracirc/internal/catalog"
	"libracirc/internal/loan"
	"libracirc/internal/notify"
	"libracirc/internal/reservation"

	"github.com/google/uuid"
)

// state is one consistent snapshot of every table. Values, not pointers, so
// a shallow map clone is a full copy.
type state struct {
	books         map[uuid.UUID]catalog.Book
	loans         map[uuid.UUID]loan.Loan
	reservations  map[uuid.UUID]reservation.Reservation
	notifications map[uuid.UUID]notify.Message
}

func newState() *state {
	return &state{
		books:         make(map[uuid.UUID]catalog.Book),
		loans:         make(map[uuid.UUID]loan.Loan),
		reservations:  make(map[uuid.UUID]reservation.Reservation),
		notifications: make(map[uuid.UUID]notify.Message),
	}
}

func (s *state) clone() *state {
	return &state{
		books:         maps.Clone(s.books),
		loans:         maps.Clone(s.loans),
		reservations:  maps.Clone(s.reservations),
		notifications: maps.Clone(s.notifications),
	}
}

type txKey struct{}

type tx struct {
	owner *Store
	data  *state
}

// Store is a transactional in-memory implementation of every repository.
// Transactions are serialised: each one works on a private clone of the
// committed state that replaces it on commit.
type Store struct {
	txMu sync.Mutex   // held for the lifetime of a transaction
	mu   sync.RWMutex // guards committed
	data *state
}

func New() *Store {
	return &Store{data: newState()}
}

func (s *Store) current(ctx context.Context) *tx {
	if t, ok := ctx.Value(txKey{}).(*tx); ok && t.owner == s {
		return t
	}
	return nil
}

// RunInTx implements store.Transactor.
// A panic in fn discards the clone, leaving the committed state untouched.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.current(ctx) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	t := &tx{owner: s, data: s.data.clone()}
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		return err
	}
	// A cancelled or timed out caller must not commit.
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = t.data
	s.mu.Unlock()
	return nil
}

// read runs fn against the transaction in ctx or the committed state.
func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if t := s.current(ctx); t != nil {
		return fn(t.data)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.data)
}

// write runs fn in the transaction from ctx, or in a transaction of its own.
func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	return s.RunInTx(ctx, func(ctx context.Context) error {
		return fn(s.current(ctx).data)
	})
}
