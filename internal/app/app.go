// Package app wires configuration into a running circulation service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"libracirc/internal/catalog"
	"libracirc/internal/circulation"
	"libracirc/internal/clock"
	"libracirc/internal/config"
	"libracirc/internal/directory"
	"libracirc/internal/loan"
	"libracirc/internal/notify"
	"libracirc/internal/reservation"
	"libracirc/internal/server"
	"libracirc/internal/store"
	"libracirc/internal/store/memory"
	"libracirc/internal/store/sqlstore"
)

// Backend is everything a storage implementation must provide.
type Backend interface {
	store.Transactor
	catalog.Repository
	loan.Repository
	reservation.Repository
	notify.Store
}

// App holds the wired services. Close releases every resource it opened.
type App struct {
	Config      config.Config
	Backend     Backend
	Directory   directory.Directory
	Catalog     catalog.Service
	Ledger      loan.Service
	Queue       reservation.Service
	Engine      circulation.Service
	Logger      *slog.Logger
	dispatcher  *notify.Dispatcher
	closers     []func() error
	healthCheck func(ctx context.Context) error
}

// New opens the configured store, builds the notification sinks and wires
// the services on top of them.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	return NewWithClock(ctx, cfg, logger, clock.System())
}

func NewWithClock(ctx context.Context, cfg config.Config, logger *slog.Logger, clk clock.Clock) (_ *App, err error) {
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := a.openBackend(ctx); err != nil {
		return nil, err
	}
	a.Directory = newDirectory(cfg.Directory)

	sinks, err := a.buildSinks()
	if err != nil {
		return nil, err
	}

	a.dispatcher = notify.NewDispatcher(logger, clk, sinks...)
	a.Catalog = catalog.NewService(a.Backend, a.Backend, clk)
	a.Ledger = loan.NewService(a.Backend, a.Backend, a.Catalog, a.Directory, clk, cfg.Policy)
	a.Queue = reservation.NewService(a.Backend, a.Backend, a.Catalog, a.Directory, clk)
	a.Engine = circulation.NewService(circulation.Deps{
		Catalog:   a.Catalog,
		Ledger:    a.Ledger,
		Queue:     a.Queue,
		Directory: a.Directory,
		Sinks:     sinks,
		Clock:     clk,
		Logger:    logger,
	})
	return a, nil
}

func (a *App) openBackend(ctx context.Context) error {
	db := a.Config.Database
	switch db.Driver {
	case "memory":
		a.Backend = memory.New()
		a.healthCheck = func(context.Context) error { return nil }
		return nil
	case "postgres", "sqlite":
		s, err := sqlstore.Open(ctx, sqlstore.Options{
			Driver:       sqlstore.Driver(db.Driver),
			URL:          db.URL,
			MaxOpenConns: db.MaxOpenConns,
			TxTimeout:    db.TxTimeout.Duration,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, s.Close)
		a.Backend = s
		a.healthCheck = s.DB().PingContext
		// The embedded database has nobody else to create its tables.
		if db.Driver == "sqlite" {
			return s.Migrate(ctx)
		}
		return nil
	default:
		return fmt.Errorf("unknown database driver %q", db.Driver)
	}
}

// Migrate creates the schema on SQL backends; the memory store needs none.
func (a *App) Migrate(ctx context.Context) error {
	s, ok := a.Backend.(*sqlstore.Store)
	if !ok {
		return nil
	}
	return s.Migrate(ctx)
}

func newDirectory(cfg config.DirectoryConfig) directory.Directory {
	if cfg.URL != "" {
		return directory.NewHTTPClient(cfg.URL, cfg.Timeout.Duration)
	}
	users := make([]directory.User, 0, len(cfg.Users))
	for _, u := range cfg.Users {
		users = append(users, *u)
	}
	return directory.NewStatic(users...)
}

func (a *App) buildSinks() ([]notify.Sink, error) {
	cfg := a.Config.Notify
	var sinks []notify.Sink
	if cfg.Log {
		sinks = append(sinks, notify.NewLogSink(a.Logger))
	}
	if cfg.Persist {
		sinks = append(sinks, notify.NewStoreSink(a.Backend))
	}
	if cfg.AMQPURL != "" {
		q, err := notify.DialEmailQueue(cfg.AMQPURL, cfg.EmailQueue, cfg.EmailRate, cfg.EmailBurst)
		if err != nil {
			return nil, fmt.Errorf("failed to connect email queue: %w", err)
		}
		a.closers = append(a.closers, q.Close)
		sinks = append(sinks, q)
	}
	if len(cfg.Brokers) > 0 {
		k := notify.NewKafkaEventSink(cfg.Brokers, cfg.Topic)
		a.closers = append(a.closers, k.Close)
		sinks = append(sinks, k)
	}
	return sinks, nil
}

// Handler builds the HTTP surface.
func (a *App) Handler() http.Handler {
	srv := server.New(server.Options{
		RequestTimeout: a.Config.Server.RequestTimeout.Duration,
		RateLimit:      a.Config.Server.RateLimit,
		RateBurst:      a.Config.Server.RateBurst,
		Health: func(r *http.Request) error {
			return a.healthCheck(r.Context())
		},
	},
		catalog.NewHandler(a.Catalog),
		loan.NewHandler(a.Ledger),
		reservation.NewHandler(a.Queue),
		circulation.NewHandler(a.Engine),
		notify.NewHandler(a.Backend, a.dispatcher),
	)
	return srv.Handler()
}

// Sweep runs the reminder sweep, then the overdue sweep.
func (a *App) Sweep(ctx context.Context) error {
	upcoming, err := a.Engine.CheckUpcomingDue(ctx)
	if err != nil {
		return fmt.Errorf("upcoming sweep failed: %w", err)
	}
	a.Logger.Info("upcoming sweep finished",
		"loans", upcoming.Loans, "sent", upcoming.Sent, "failed", upcoming.Failed)

	overdue, err := a.Engine.CheckOverdue(ctx)
	if err != nil {
		return fmt.Errorf("overdue sweep failed: %w", err)
	}
	a.Logger.Info("overdue sweep finished",
		"loans", overdue.Loans, "sent", overdue.Sent,
		"escalations", overdue.Escalations, "failed", overdue.Failed)
	return nil
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
