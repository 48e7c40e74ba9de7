// Command transfer copies the movies tables from a SQLite file into PostgreSQL.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/JonMunkholm/movies-etl/internal/app"
	"github.com/JonMunkholm/movies-etl/internal/config"
	"github.com/JonMunkholm/movies-etl/internal/core"
	_ "github.com/JonMunkholm/movies-etl/internal/core/tables" // Register all tables
	"github.com/JonMunkholm/movies-etl/internal/metrics"
	"github.com/JonMunkholm/movies-etl/internal/transfer"
	"github.com/JonMunkholm/movies-etl/internal/web"
)

func main() {
	cfg, logger, err := app.Setup()
	if err != nil {
		app.Fail(slog.Default(), "failed to load configuration", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()

	metrics.RecordRun("transfer", err)
	if err != nil {
		app.Fail(logger, "transfer failed", err)
		os.Exit(1)
	}
	logger.Info("transfer complete")
}

// run owns both connections and closes them on every return path.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Transfer.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Transfer.Timeout)
		defer cancel()
	}
	ctx = core.ContextWithRunID(ctx, uuid.NewString())

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	conflictKeys, err := cfg.Transfer.ConflictTargets()
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidConfiguration, err)
	}

	tr := transfer.New(stores.Source, stores.Dest, logger)
	tr.SetConflictKeys(conflictKeys)

	if cfg.Status.Enabled() {
		server := web.NewServer(tr, logger)
		go func() {
			if err := server.Start(cfg.Status.Addr); err != nil {
				logger.Error("status server stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Status.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("status server shutdown error", "error", err)
			}
		}()
	}

	report, err := tr.Run(ctx)
	if err != nil {
		return err
	}

	for _, t := range report.Tables {
		logger.Info("table summary",
			"table", t.Table,
			"source_rows", t.SourceRows,
			"read", t.Read,
			"dropped", t.Dropped,
			"inserted", t.Inserted,
			"conflicted", t.Conflicted,
			"failed", t.Failed,
			"duration", t.Duration,
		)
	}
	totals := report.Totals()
	logger.Info("run summary",
		"run_id", report.RunID,
		"tables", len(report.Tables),
		"read", totals.Read,
		"dropped", totals.Dropped,
		"inserted", totals.Inserted,
		"conflicted", totals.Conflicted,
		"failed", totals.Failed,
		"failed_batches", totals.FailedBatches,
		"duration", report.Duration,
	)
	return nil
}
