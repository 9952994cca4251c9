// cmd/circulation/commands.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"libracirc/internal/telemetry"

	"github.com/spf13/cobra"
)

var sweepInterval time.Duration

func init() {
	serveCmd.Flags().DurationVar(&sweepInterval, "sweep-interval", -1, "Interval of the periodic sweep; overrides [sweep].interval, 0 disables it")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the periodic sweep",
	RunE:  runServe,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Send due reminders and overdue notices once, then exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		a, err := open(cmd.Context(), logger)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Sweep(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		a, err := open(cmd.Context(), logger)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Migrate(cmd.Context()); err != nil {
			return err
		}
		logger.Info("schema up to date", "driver", a.Config.Database.Driver)
		return nil
	},
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	a, err := open(ctx, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	shutdownTracing, err := telemetry.SetupTracing(ctx, a.Config.Telemetry.OTLPEndpoint, a.Config.Telemetry.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	interval := a.Config.Sweep.Interval.Duration
	if sweepInterval >= 0 {
		interval = sweepInterval
	}
	if interval > 0 {
		go runSweeps(ctx, a.Sweep, interval, logger)
	}

	srv := &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting circulation service", "addr", srv.Addr, "driver", a.Config.Database.Driver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

func runSweeps(ctx context.Context, sweep func(context.Context) error, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sweep(ctx); err != nil {
				logger.Error("sweep failed", "error", err)
			}
		}
	}
}
