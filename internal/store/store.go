// internal/store/store.go
package store

import (
	"context"
)

// Transactor runs fn inside a single storage transaction. The transaction
// travels in the context handed to fn, so repository calls made with that
// context join it. A nested RunInTx joins the outer transaction instead of
// opening a new one.
//
// fn's error (or a panic) rolls everything back; a nil return commits.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
