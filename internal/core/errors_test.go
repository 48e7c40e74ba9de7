package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsRowError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{fmt.Errorf("id: %w", ErrMalformedIdentifier), true},
		{ErrMalformedTimestamp, true},
		{ErrRatingOutOfRange, true},
		{ErrInvalidFilmType, true},
		{ErrMissingField, true},
		{ErrMalformedValue, true},
		{ErrUnknownTable, false},
		{fmt.Errorf("scan: %w", ErrQueryExecution), false},
		{errors.New("boom"), false},
		{nil, false},
	}

	for _, tt := range tests {
		if got := IsRowError(tt.err); got != tt.want {
			t.Errorf("IsRowError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestClassifyWriteError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want WriteFailure
	}{
		{"nil", nil, FailureNone},
		{"unique", &pgconn.PgError{Code: "23505"}, FailureUnique},
		{"foreign key", &pgconn.PgError{Code: "23503"}, FailureForeignKey},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, FailureDeadlock},
		{"serialization", &pgconn.PgError{Code: "40001"}, FailureDeadlock},
		{"connection failure", &pgconn.PgError{Code: "08006"}, FailureOperational},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, FailureOperational},
		{"too many connections", &pgconn.PgError{Code: "53300"}, FailureOperational},
		{"syntax error", &pgconn.PgError{Code: "42601"}, FailureUnclassified},
		{"wrapped unique", fmt.Errorf("insert genre: %w", &pgconn.PgError{Code: "23505"}), FailureUnique},
		{"deadline", fmt.Errorf("exec: %w", context.DeadlineExceeded), FailureOperational},
		{"text connection refused", errors.New("dial tcp: connection refused"), FailureOperational},
		{"text deadlock", errors.New("deadlock detected"), FailureDeadlock},
		{"unknown", errors.New("boom"), FailureUnclassified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyWriteError(tt.err); got != tt.want {
				t.Errorf("ClassifyWriteError(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestWriteFailurePolicy(t *testing.T) {
	tests := []struct {
		class       WriteFailure
		recoverable bool
		level       slog.Level
	}{
		{FailureUnique, true, slog.LevelWarn},
		{FailureDeadlock, true, slog.LevelWarn},
		{FailureForeignKey, true, slog.LevelError},
		{FailureOperational, true, slog.LevelError},
		{FailureUnclassified, false, slog.LevelError},
	}

	for _, tt := range tests {
		if got := tt.class.Recoverable(); got != tt.recoverable {
			t.Errorf("%s.Recoverable() = %v, want %v", tt.class, got, tt.recoverable)
		}
		if got := tt.class.Level(); got != tt.level {
			t.Errorf("%s.Level() = %v, want %v", tt.class, got, tt.level)
		}
	}
}
