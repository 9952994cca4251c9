// cmd/chaos/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"libracirc/internal/app"
	"libracirc/internal/chaos"
	"libracirc/internal/config"
	"libracirc/internal/directory"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	concurrency int
	pause       time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "chaos",
	Short:         "Run the circulation game day against the configured store",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runGameDay,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&configPath, "config", "c", os.Getenv("LIBRACIRC_CONFIG"), "Path to the TOML config file")
	flags.IntVar(&concurrency, "concurrency", 100, "Concurrent issues in the checkout race")
	flags.DurationVar(&pause, "pause", 0, "Pause between experiments")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runGameDay(cmd *cobra.Command, _ []string) error {
	if concurrency < 1 {
		return errors.New("--concurrency must be at least 1")
	}
	ctx := cmd.Context()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	// Experiments register their own borrowers.
	cfg.Directory.URL = ""

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer a.Close()

	users, ok := a.Directory.(*directory.Static)
	if !ok {
		return errors.New("chaos experiments need the static directory")
	}

	engine := chaos.NewEngine(logger)
	engine.Register(chaos.Experiments(chaos.Target{
		Catalog: a.Catalog,
		Ledger:  a.Ledger,
		Engine:  a.Engine,
		Users:   users,
	}, concurrency)...)

	return engine.ExecuteGameDay(ctx, chaos.GameDay{
		Name:      "Circulation Game Day",
		Date:      time.Now(),
		Scenarios: engine.Experiments(),
		Pause:     pause,
	})
}
