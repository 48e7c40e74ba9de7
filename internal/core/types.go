// Package core provides the record model and table registry for the movies transfer.
// This package has no database dependencies beyond value types and can be used by
// the source loader, the destination saver and the consistency checker alike.
package core

import (
	"time"

	"github.com/google/uuid"
)

// RawRow maps destination field names to loosely-typed values as read from a store.
// Values may be already typed (time.Time, float64, []byte) or string-encoded.
type RawRow map[string]any

// Record is a typed, canonical row for one of the registered tables.
type Record interface {
	// Table returns the registry key of the table the record belongs to.
	Table() string
	// Key returns the record's primary identifier.
	Key() uuid.UUID
	// Values returns the record's values ordered like the table's Columns.
	Values() []any
	// Equal reports whether other holds the same table and field values.
	Equal(other Record) bool
}

// BatchIterator is a forward-only cursor over a table's records, one batch at a time.
// It follows the sql.Rows protocol: call Next until it returns false, then check Err.
type BatchIterator interface {
	Next() bool
	Batch() []Record
	Err() error
	Close() error
	// Dropped returns the number of rows skipped so far because they could not be coerced.
	Dropped() int
}

// FieldSpec describes a single column of a table.
type FieldSpec struct {
	Name         string // Destination column and RawRow key
	SourceColumn string // Source column if different from Name
	Required     bool   // Column must exist in the source
}

// Source returns the column to select from the source store for this field.
func (f FieldSpec) Source() string {
	if f.SourceColumn != "" {
		return f.SourceColumn
	}
	return f.Name
}

// TableInfo contains descriptive information about a table.
type TableInfo struct {
	Key         string   // Table name in both stores: "film_work"
	Label       string   // Display name: "Film works"
	Order       int      // Transfer order; referenced tables come first
	Columns     []string // Destination column names, ordered like Record.Values
	ConflictKey []string // Columns of the destination uniqueness constraint used for ON CONFLICT
}

// BuildFunc constructs a record from a raw row.
type BuildFunc func(row RawRow) (Record, error)

// TableDefinition contains everything needed to move one table.
type TableDefinition struct {
	Info       TableInfo
	FieldSpecs []FieldSpec
	Build      BuildFunc
}

// HasColumn reports whether col is one of the table's destination columns.
func (t TableDefinition) HasColumn(col string) bool {
	for _, c := range t.Info.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// TransferPhase indicates the current stage of a transfer run.
type TransferPhase string

const (
	PhaseStarting  TransferPhase = "starting"
	PhaseReading   TransferPhase = "reading"
	PhaseWriting   TransferPhase = "writing"
	PhaseComplete  TransferPhase = "complete"
	PhaseFailed    TransferPhase = "failed"
	PhaseCancelled TransferPhase = "cancelled"
)

// TransferProgress represents the current state of a transfer run.
type TransferProgress struct {
	Phase      TransferPhase `json:"phase"`
	Table      string        `json:"table"`
	TablesDone int           `json:"tablesDone"`
	TablesAll  int           `json:"tablesTotal"`
	Batches    int           `json:"batches"`
	Read       int           `json:"read"`
	Inserted   int           `json:"inserted"`
	Conflicted int           `json:"conflicted"`
	Failed     int           `json:"failed"`
	Error      string        `json:"error,omitempty"` // Non-empty if Phase is PhaseFailed
	StartedAt  time.Time     `json:"startedAt"`
}

// Percent returns the progress as a percentage of tables completed (0-100).
func (p TransferProgress) Percent() int {
	if p.TablesAll <= 0 {
		return 0
	}
	return (p.TablesDone * 100) / p.TablesAll
}
