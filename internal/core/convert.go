package core

// convert.go coerces loosely-typed store values into record field types.
//
// SQLite hands back whatever the column affinity produced: TEXT for most dumps,
// BLOB for binary ids, INTEGER or REAL for numbers, and time.Time when the
// driver recognized a declared DATETIME column. PostgreSQL hands back typed
// values. Every helper accepts all of these.

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Timestamp layouts tried in order. Layouts without a zone are read as UTC.
var (
	zonedLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999Z07",
		"2006-01-02T15:04:05.999999999Z07",
	}
	localLayouts = []string{
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04",
	}
	dateLayouts = []string{
		"2006-01-02",
		"2006/01/02",
	}
)

// ToUUID converts a textual or 16-byte binary identifier.
func ToUUID(v any) (uuid.UUID, error) {
	switch x := v.(type) {
	case nil:
		return uuid.Nil, fmt.Errorf("%w: empty", ErrMalformedIdentifier)
	case uuid.UUID:
		return x, nil
	case [16]byte:
		return uuid.UUID(x), nil
	case pgtype.UUID:
		if !x.Valid {
			return uuid.Nil, fmt.Errorf("%w: null", ErrMalformedIdentifier)
		}
		return uuid.UUID(x.Bytes), nil
	case []byte:
		if len(x) == 16 {
			id, err := uuid.FromBytes(x)
			if err != nil {
				return uuid.Nil, fmt.Errorf("%w: %v", ErrMalformedIdentifier, err)
			}
			return id, nil
		}
		return parseUUID(string(x))
	case string:
		return parseUUID(x)
	default:
		return uuid.Nil, fmt.Errorf("%w: unsupported type %T", ErrMalformedIdentifier, v)
	}
}

func parseUUID(s string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, fmt.Errorf("%w: empty", ErrMalformedIdentifier)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrMalformedIdentifier, s)
	}
	return id, nil
}

// ToTimestamp converts a timestamp value to UTC at microsecond precision.
// A nil or empty value returns the zero time and no error.
func ToTimestamp(v any) (time.Time, error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return normalizeTime(x), nil
	case pgtype.Timestamptz:
		if !x.Valid {
			return time.Time{}, nil
		}
		return normalizeTime(x.Time), nil
	case int64:
		return normalizeTime(time.Unix(x, 0)), nil
	case []byte:
		return parseTimestamp(string(x))
	case string:
		return parseTimestamp(x)
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported type %T", ErrMalformedTimestamp, v)
	}
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return normalizeTime(t), nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return normalizeTime(t), nil
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, s)
}

// normalizeTime drops sub-microsecond precision and the location so values
// compare equal after a round trip through PostgreSQL.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// ToDate converts a date or timestamp value to a calendar date.
// A nil or empty value returns an invalid (NULL) date.
func ToDate(v any) (pgtype.Date, error) {
	switch x := v.(type) {
	case nil:
		return pgtype.Date{}, nil
	case pgtype.Date:
		if !x.Valid {
			return pgtype.Date{}, nil
		}
		return dateOf(x.Time), nil
	case time.Time:
		return dateOf(x), nil
	}

	t, err := ToTimestamp(v)
	if err != nil {
		return pgtype.Date{}, err
	}
	if t.IsZero() {
		return pgtype.Date{}, nil
	}
	return dateOf(t), nil
}

func dateOf(t time.Time) pgtype.Date {
	y, m, d := t.Date()
	return pgtype.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Valid: true}
}

// ToFloat converts a numeric value. The boolean is false for nil or empty input.
func ToFloat(v any) (float64, bool, error) {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, false, nil
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int64:
		f = float64(x)
	case int:
		f = float64(x)
	case pgtype.Numeric:
		if !x.Valid {
			return 0, false, nil
		}
		v, err := x.Float64Value()
		if err != nil || !v.Valid {
			return 0, false, fmt.Errorf("%w: numeric %v", ErrMalformedValue, err)
		}
		f = v.Float64
	case []byte:
		return parseFloat(string(x))
	case string:
		return parseFloat(x)
	default:
		return 0, false, fmt.Errorf("%w: unsupported numeric type %T", ErrMalformedValue, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, fmt.Errorf("%w: %v", ErrMalformedValue, f)
	}
	return f, true, nil
}

func parseFloat(s string) (float64, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, fmt.Errorf("%w: %q is not a number", ErrMalformedValue, s)
	}
	return f, true, nil
}

// ToText converts a textual value. NULL stays NULL and empty text stays empty.
func ToText(v any) (pgtype.Text, error) {
	switch x := v.(type) {
	case nil:
		return pgtype.Text{}, nil
	case pgtype.Text:
		return x, nil
	case string:
		return pgtype.Text{String: x, Valid: true}, nil
	case []byte:
		return pgtype.Text{String: string(x), Valid: true}, nil
	default:
		return pgtype.Text{}, fmt.Errorf("%w: unsupported text type %T", ErrMalformedValue, v)
	}
}

// requiredText returns the value of a text field that must be present and non-blank.
func requiredText(row RawRow, field string) (string, error) {
	t, err := ToText(row[field])
	if err != nil {
		return "", fmt.Errorf("%s: %w", field, err)
	}
	if !t.Valid || strings.TrimSpace(t.String) == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingField, field)
	}
	return t.String, nil
}

// PgUUID wraps an identifier for binding.
func PgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}
