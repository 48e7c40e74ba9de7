package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"duplicate key", errors.New(`ERROR: duplicate key value violates unique constraint "genre_pkey"`), "DB001"},
		{"other unique", errors.New("new row violates unique index"), "DB002"},
		{"foreign key", errors.New(`insert violates foreign key constraint "fk_film"`), "DB003"},
		{"connection refused", errors.New("dial tcp 127.0.0.1:5432: connection refused"), "DB004"},
		{"connection reset", errors.New("read: connection reset by peer"), "DB005"},
		{"deadlock", errors.New("deadlock detected"), "DB007"},
		{
			"conflict target",
			errors.New("ERROR: there is no unique or exclusion constraint matching the ON CONFLICT specification (SQLSTATE 42P10)"),
			"DB008",
		},
		{"malformed identifier", fmt.Errorf("genre_id: %w", ErrMalformedIdentifier), "VAL001"},
		{"malformed timestamp", fmt.Errorf("created: %w", ErrMalformedTimestamp), "VAL002"},
		{"rating", ErrRatingOutOfRange, "VAL003"},
		{"film type", ErrInvalidFilmType, "VAL004"},
		{"missing field", ErrMissingField, "VAL005"},
		{"malformed value", ErrMalformedValue, "VAL006"},
		{"unknown table", fmt.Errorf("%w: nonexistent_table", ErrUnknownTable), "TBL001"},
		{"query", fmt.Errorf("select film_work: %w", ErrQueryExecution), "TBL002"},
		{"config", ErrInvalidConfiguration, "CFG001"},
		{"cancelled", errors.New("context canceled"), "RUN001"},
		{"unmatched", errors.New("something odd"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Describe(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("Describe(%v).Code = %q, want %q", tt.err, got.Code, tt.wantCode)
			}
		})
	}
}

func TestFormatError(t *testing.T) {
	if got := FormatError(nil); got != "" {
		t.Errorf("FormatError(nil) = %q, want empty", got)
	}

	got := FormatError(ErrRatingOutOfRange)
	want := "Rating must be between 0 and 100 (Code: VAL003). Fix the source row's rating"
	if got != want {
		t.Errorf("FormatError() = %q, want %q", got, want)
	}
}

func TestIsKnown(t *testing.T) {
	if IsKnown(nil) {
		t.Error("IsKnown(nil) = true")
	}
	if !IsKnown(ErrUnknownTable) {
		t.Error("IsKnown(ErrUnknownTable) = false")
	}
	if IsKnown(errors.New("mystery")) {
		t.Error("IsKnown(mystery) = true")
	}
}
