// internal/store/sqlstore/schema.go
package sqlstore

import (
	"context"
	"fmt"
	"strings"
)

// The partial unique indexes back up the row locks: one unreturned loan per
// book and one active reservation per user and book.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS books (
	id UUID PRIMARY KEY,
	title TEXT NOT NULL,
	author TEXT NOT NULL,
	genre TEXT NOT NULL DEFAULT '',
	code TEXT NOT NULL UNIQUE,
	status TEXT NOT NULL CHECK (status IN ('available', 'borrowed', 'lost', 'damaged')),
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS books_title ON books (title, id);

CREATE TABLE IF NOT EXISTS loans (
	id UUID PRIMARY KEY,
	book_id UUID NOT NULL REFERENCES books (id) ON DELETE CASCADE,
	user_id UUID NOT NULL,
	loan_date TIMESTAMPTZ NOT NULL,
	due_date DATE NOT NULL,
	returned_date TIMESTAMPTZ,
	returned BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE UNIQUE INDEX IF NOT EXISTS loans_one_active_per_book ON loans (book_id) WHERE NOT returned;
CREATE INDEX IF NOT EXISTS loans_active_by_user ON loans (user_id) WHERE NOT returned;
CREATE INDEX IF NOT EXISTS loans_active_by_due_date ON loans (due_date) WHERE NOT returned;

CREATE TABLE IF NOT EXISTS reservations (
	id UUID PRIMARY KEY,
	book_id UUID NOT NULL REFERENCES books (id) ON DELETE CASCADE,
	user_id UUID NOT NULL,
	reservation_date TIMESTAMPTZ NOT NULL,
	position BIGINT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS reservations_one_active_per_user ON reservations (book_id, user_id) WHERE active;
CREATE INDEX IF NOT EXISTS reservations_queue ON reservations (book_id, reservation_date, position) WHERE active;

CREATE TABLE IF NOT EXISTS notifications (
	id UUID PRIMARY KEY,
	kind TEXT NOT NULL,
	subject TEXT NOT NULL,
	message TEXT NOT NULL,
	recipient TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	is_read BOOLEAN NOT NULL DEFAULT FALSE,
	fingerprint TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS notifications_unread ON notifications (recipient, created_at) WHERE NOT is_read;
`

// SQLite stores ids as text. DATE and DATETIME column types make the
// driver decode the stored text back into time.Time.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS books (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	author TEXT NOT NULL,
	genre TEXT NOT NULL DEFAULT '',
	code TEXT NOT NULL UNIQUE,
	status TEXT NOT NULL CHECK (status IN ('available', 'borrowed', 'lost', 'damaged')),
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS books_title ON books (title, id);

CREATE TABLE IF NOT EXISTS loans (
	id TEXT PRIMARY KEY,
	book_id TEXT NOT NULL REFERENCES books (id) ON DELETE CASCADE,
	user_id TEXT NOT NULL,
	loan_date DATETIME NOT NULL,
	due_date DATE NOT NULL,
	returned_date DATETIME,
	returned BOOLEAN NOT NULL DEFAULT 0
);
CREATE UNIQUE INDEX IF NOT EXISTS loans_one_active_per_book ON loans (book_id) WHERE NOT returned;
CREATE INDEX IF NOT EXISTS loans_active_by_user ON loans (user_id) WHERE NOT returned;
CREATE INDEX IF NOT EXISTS loans_active_by_due_date ON loans (due_date) WHERE NOT returned;

CREATE TABLE IF NOT EXISTS reservations (
	id TEXT PRIMARY KEY,
	book_id TEXT NOT NULL REFERENCES books (id) ON DELETE CASCADE,
	user_id TEXT NOT NULL,
	reservation_date DATETIME NOT NULL,
	position INTEGER NOT NULL,
	active BOOLEAN NOT NULL DEFAULT 1,
	updated_at DATETIME NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS reservations_one_active_per_user ON reservations (book_id, user_id) WHERE active;
CREATE INDEX IF NOT EXISTS reservations_queue ON reservations (book_id, reservation_date, position) WHERE active;

CREATE TABLE IF NOT EXISTS notifications (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	subject TEXT NOT NULL,
	message TEXT NOT NULL,
	recipient TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	is_read BOOLEAN NOT NULL DEFAULT 0,
	fingerprint TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS notifications_unread ON notifications (recipient, created_at) WHERE NOT is_read;
`

// Migrate creates the schema if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	schema := postgresSchema
	if s.driver == SQLite {
		schema = sqliteSchema
	}
	return s.RunInTx(ctx, func(ctx context.Context) error {
		for _, stmt := range strings.Split(schema, ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := s.conn(ctx).ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
		}
		return nil
	})
}
