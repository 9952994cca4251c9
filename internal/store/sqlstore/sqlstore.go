// internal/store/sqlstore/sqlstore.go
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"libracirc/internal/apperr"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Driver selects the SQL dialect and database/sql driver.
type Driver string

const (
	Postgres Driver = "postgres"
	SQLite   Driver = "sqlite"
)

// Options configures Open.
type Options struct {
	Driver       Driver
	URL          string
	MaxOpenConns int
	// TxTimeout bounds every transaction started by RunInTx. Zero means no bound.
	TxTimeout time.Duration
}

// Store implements every repository port on top of a relational database.
type Store struct {
	db        *sqlx.DB
	driver    Driver
	dialect   goqu.DialectWrapper
	txTimeout time.Duration
	tracer    trace.Tracer
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, opts Options) (*Store, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch opts.Driver {
	case Postgres:
		db, err = sqlx.Open("postgres", opts.URL)
		if err == nil && opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		}
	case SQLite:
		db, err = sqlx.Open("sqlite", sqliteDSN(opts.URL))
		if err == nil {
			// One connection: every transaction is serialised, and an
			// in-memory database lives as long as that connection.
			db.SetMaxOpenConns(1)
			db.SetConnMaxLifetime(0)
			db.SetConnMaxIdleTime(0)
		}
	default:
		return nil, apperr.InvalidArgument("unsupported database driver %q", opts.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return New(db, opts.Driver, opts.TxTimeout), nil
}

// New wraps an existing connection pool.
func New(db *sqlx.DB, driver Driver, txTimeout time.Duration) *Store {
	dialect := "postgres"
	if driver == SQLite {
		dialect = "sqlite3"
	}
	return &Store{
		db:        db,
		driver:    driver,
		dialect:   goqu.Dialect(dialect),
		txTimeout: txTimeout,
		tracer:    otel.Tracer("libracirc/sqlstore"),
	}
}

// sqliteDSN makes sure times are written in a sortable layout and that
// foreign keys are enforced.
func sqliteDSN(dsn string) string {
	var params []string
	if !strings.Contains(dsn, "_time_format=") {
		params = append(params, "_time_format=sqlite")
	}
	if !strings.Contains(dsn, "foreign_keys") {
		params = append(params, "_pragma=foreign_keys(1)")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the pool for health checks and consistency probes.
func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) Driver() Driver { return s.driver }

type txKey struct{}

type txHandle struct {
	owner *Store
	tx    *sqlx.Tx
}

// RunInTx implements store.Transactor.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.inTx(ctx) != nil {
		return fn(ctx)
	}

	ctx, span := s.tracer.Start(ctx, "sqlstore.tx",
		trace.WithAttributes(attribute.String("db.driver", string(s.driver))),
	)
	defer span.End()

	if s.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, &txHandle{owner: s, tx: tx})); err != nil {
		_ = tx.Rollback()
		span.RecordError(err)
		return err
	}
	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) *sqlx.Tx {
	if h, ok := ctx.Value(txKey{}).(*txHandle); ok && h.owner == s {
		return h.tx
	}
	return nil
}

// conn returns the transaction carried by ctx, or the pool.
func (s *Store) conn(ctx context.Context) sqlx.ExtContext {
	if tx := s.inTx(ctx); tx != nil {
		return tx
	}
	return s.db
}

type sqlBuilder interface {
	ToSQL() (string, []interface{}, error)
}

func (s *Store) from(table string) *goqu.SelectDataset {
	return s.dialect.From(table).Prepared(true)
}

func (s *Store) insert(table string) *goqu.InsertDataset {
	return s.dialect.Insert(table).Prepared(true)
}

func (s *Store) update(table string) *goqu.UpdateDataset {
	return s.dialect.Update(table).Prepared(true)
}

func (s *Store) delete(table string) *goqu.DeleteDataset {
	return s.dialect.Delete(table).Prepared(true)
}

// forUpdate adds a row lock on Postgres. SQLite runs one transaction at a time.
func (s *Store) forUpdate(ds *goqu.SelectDataset, lock bool) *goqu.SelectDataset {
	if lock && s.driver == Postgres {
		return ds.ForUpdate(goqu.Wait)
	}
	return ds
}

func (s *Store) get(ctx context.Context, dest any, b sqlBuilder) error {
	query, args, err := b.ToSQL()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return mapError(sqlx.GetContext(ctx, s.conn(ctx), dest, query, args...))
}

func (s *Store) selectAll(ctx context.Context, dest any, b sqlBuilder) error {
	query, args, err := b.ToSQL()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return mapError(sqlx.SelectContext(ctx, s.conn(ctx), dest, query, args...))
}

func (s *Store) exec(ctx context.Context, b sqlBuilder) (int64, error) {
	query, args, err := b.ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	res, err := s.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapError(err)
	}
	return res.RowsAffected()
}

// mapError turns unique violations into apperr.ErrConflict.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return apperr.Conflict("unique constraint %s violated", pqErr.Constraint)
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) && liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return apperr.Conflict("unique constraint violated: %s", liteErr.Error())
	}
	return err
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(format, args...)
	}
	return err
}
