// Command verify compares the SQLite source with the PostgreSQL destination after a transfer.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JonMunkholm/movies-etl/internal/app"
	"github.com/JonMunkholm/movies-etl/internal/config"
	"github.com/JonMunkholm/movies-etl/internal/consistency"
	_ "github.com/JonMunkholm/movies-etl/internal/core/tables" // Register all tables
	"github.com/JonMunkholm/movies-etl/internal/metrics"
)

var errInconsistent = errors.New("destination is inconsistent with source")

func main() {
	cfg, logger, err := app.Setup()
	if err != nil {
		app.Fail(slog.Default(), "failed to load configuration", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()

	metrics.RecordRun("verify", err)
	if errors.Is(err, errInconsistent) {
		logger.Error("consistency check failed", "error", err)
		os.Exit(1)
	}
	if err != nil {
		app.Fail(logger, "consistency check could not run", err)
		os.Exit(1)
	}
	logger.Info("consistency check passed")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	checker := consistency.NewChecker(stores.Source, stores.Dest, cfg.Check.SampleBatches, logger)
	report, err := checker.Check(ctx)
	if err != nil {
		return err
	}

	for _, t := range report.Tables {
		logger.Info("table report",
			"table", t.Table,
			"ok", t.OK(),
			"source_count", t.SourceCount,
			"dest_count", t.DestCount,
			"checked", t.Checked,
			"missing", len(t.Missing),
			"mismatched", len(t.Mismatched),
		)
	}

	if !report.OK() {
		return fmt.Errorf("%w: %s", errInconsistent, strings.Join(report.Failed(), ", "))
	}
	return nil
}
