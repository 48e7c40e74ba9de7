package core

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Row-level errors. A row failing with one of these is dropped and the batch continues.
var (
	ErrMalformedIdentifier = errors.New("malformed identifier")
	ErrMalformedTimestamp  = errors.New("malformed timestamp")
	ErrMalformedValue      = errors.New("malformed value")
	ErrMissingField        = errors.New("missing required field")
	ErrRatingOutOfRange    = errors.New("rating out of range")
	ErrInvalidFilmType     = errors.New("invalid film type")
)

// Table-level errors. These abort the table and the run.
var (
	ErrUnknownTable   = errors.New("unknown table")
	ErrQueryExecution = errors.New("query execution failed")
)

var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMixedBatch           = errors.New("mixed batch")
	ErrUnclassified         = errors.New("unclassified write failure")
)

var rowErrors = []error{
	ErrMalformedIdentifier,
	ErrMalformedTimestamp,
	ErrMalformedValue,
	ErrMissingField,
	ErrRatingOutOfRange,
	ErrInvalidFilmType,
}

// IsRowError reports whether err only invalidates a single row.
func IsRowError(err error) bool {
	for _, target := range rowErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// WriteFailure classifies an error returned while writing a sub-batch.
type WriteFailure string

const (
	FailureNone         WriteFailure = ""
	FailureUnique       WriteFailure = "unique_violation"
	FailureForeignKey   WriteFailure = "foreign_key_violation"
	FailureDeadlock     WriteFailure = "deadlock"
	FailureOperational  WriteFailure = "operational"
	FailureUnclassified WriteFailure = "unclassified"
)

// Recoverable reports whether the writer may abandon the sub-batch and keep going.
func (f WriteFailure) Recoverable() bool {
	return f != FailureUnclassified
}

// Level is the log level a failure of this class is reported at.
func (f WriteFailure) Level() slog.Level {
	switch f {
	case FailureNone:
		return slog.LevelInfo
	case FailureUnique, FailureDeadlock:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// PostgreSQL SQLSTATE codes used for classification.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgDeadlockDetected     = "40P01"
	pgSerializationFailure = "40001"
	pgTooManyConnections   = "53300"
)

// ClassifyWriteError maps a write error to a failure class.
// Server errors are classified by SQLSTATE; other errors fall back to message patterns.
func ClassifyWriteError(err error) WriteFailure {
	if err == nil {
		return FailureNone
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation:
			return FailureUnique
		case pgErr.Code == pgForeignKeyViolation:
			return FailureForeignKey
		case pgErr.Code == pgDeadlockDetected, pgErr.Code == pgSerializationFailure:
			return FailureDeadlock
		case strings.HasPrefix(pgErr.Code, "08"),
			strings.HasPrefix(pgErr.Code, "57P"),
			pgErr.Code == pgTooManyConnections:
			return FailureOperational
		}
		return FailureUnclassified
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return FailureOperational
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return FailureOperational
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, net.ErrClosed) {
		return FailureOperational
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureOperational
	}

	switch Describe(err).Code {
	case "DB001", "DB002":
		return FailureUnique
	case "DB003":
		return FailureForeignKey
	case "DB004", "DB005", "DB006":
		return FailureOperational
	case "DB007":
		return FailureDeadlock
	}
	return FailureUnclassified
}
