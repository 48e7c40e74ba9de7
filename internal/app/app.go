// Package app holds the startup and shutdown steps shared by the transfer and
// verify commands.
package app

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/movies-etl/internal/config"
	"github.com/JonMunkholm/movies-etl/internal/core"
	"github.com/JonMunkholm/movies-etl/internal/logging"
	"github.com/JonMunkholm/movies-etl/internal/postgres"
	"github.com/JonMunkholm/movies-etl/internal/sqlite"
)

// Exit categories logged when a command fails.
const (
	CategoryConfig               = "config"
	CategorySourceConnect        = "source_connect"
	CategorySourceMissing        = "source_missing"
	CategorySourcePermission     = "source_permission"
	CategorySourceQuery          = "source_query"
	CategoryDestinationConnect   = "destination_connect"
	CategoryDestinationInterface = "destination_interface"
	CategoryCancelled            = "cancelled"
	CategoryUnexpected           = "unexpected"
)

// Setup loads .env, reads the configuration and installs the default logger.
// Configuration errors are logged with the bootstrap logger before returning.
func Setup() (*config.Config, *slog.Logger, error) {
	// Overload overwrites existing env vars
	if err := godotenv.Overload(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logger := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	logger.Debug("configuration loaded", "config", cfg.String())
	logger.Info("tables registered", "count", core.TableCount(), "tables", core.Keys())
	return cfg, logger, nil
}

// Stores is an open source and destination pair.
type Stores struct {
	Source *sqlite.Loader
	Dest   *postgres.Saver
	logger *slog.Logger
}

// OpenStores opens the SQLite source, then the destination pool, and applies the batch size to both.
// On error everything opened so far is closed again.
func OpenStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stores, error) {
	src, err := sqlite.Open(ctx, cfg.Source.Path, logger)
	if err != nil {
		return nil, err
	}

	dst, err := postgres.Connect(ctx, cfg.Database, logger)
	if err != nil {
		_ = src.Close()
		return nil, err
	}

	s := &Stores{Source: src, Dest: dst, logger: logger}
	if err := src.Configure(cfg.Transfer.BatchSize); err != nil {
		s.Close()
		return nil, err
	}
	if err := dst.Configure(cfg.Transfer.BatchSize); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases both connections. It is safe to call more than once.
func (s *Stores) Close() {
	if s.Source != nil {
		if err := s.Source.Close(); err != nil {
			s.logger.Warn("closing source failed", "error", err)
		}
		s.Source = nil
	}
	if s.Dest != nil {
		s.Dest.Close()
		s.Dest = nil
	}
}

// Category maps a command failure to the category it is logged under.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, core.ErrInvalidConfiguration):
		return CategoryConfig
	case errors.Is(err, sqlite.ErrSourceNotFound):
		return CategorySourceMissing
	case errors.Is(err, sqlite.ErrSourcePermission):
		return CategorySourcePermission
	case errors.Is(err, sqlite.ErrSourceConnect):
		return CategorySourceConnect
	case postgres.IsConnectError(err):
		return CategoryDestinationConnect
	case errors.Is(err, core.ErrUnclassified), errors.Is(err, core.ErrMixedBatch):
		return CategoryDestinationInterface
	case errors.Is(err, core.ErrQueryExecution), errors.Is(err, core.ErrUnknownTable):
		return CategorySourceQuery
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CategoryCancelled
	default:
		return CategoryUnexpected
	}
}

// Fail logs err under its category with its coded description.
// Errors that match no known pattern are logged without the generic message.
func Fail(logger *slog.Logger, msg string, err error) {
	attrs := []any{"category", Category(err), "code", core.Describe(err).Code}
	if core.IsKnown(err) {
		attrs = append(attrs, "message", core.FormatError(err))
	}
	attrs = append(attrs, "error", err)
	logger.Error(msg, attrs...)
}
