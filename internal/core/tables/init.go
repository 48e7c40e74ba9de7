// Package tables registers the movies tables with the core registry.
// Import this package to ensure all tables are registered.
package tables

import "github.com/JonMunkholm/movies-etl/internal/core"

// Each table file uses init() to register its tables.

// build adapts a typed record constructor to a core.BuildFunc.
func build[T core.Record](fn func(core.RawRow) (T, error)) core.BuildFunc {
	return func(row core.RawRow) (core.Record, error) {
		rec, err := fn(row)
		if err != nil {
			return nil, err
		}
		return rec, nil
	}
}

// Audit columns are named created_at/updated_at in the SQLite dump.
var (
	createdField  = core.FieldSpec{Name: "created", SourceColumn: "created_at"}
	modifiedField = core.FieldSpec{Name: "modified", SourceColumn: "updated_at"}
)
