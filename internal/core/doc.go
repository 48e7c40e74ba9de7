// Package core provides the record model shared by every stage of the movies transfer.
//
// The package has no store dependencies. The SQLite loader, the PostgreSQL saver and
// the consistency checker all speak in terms of [Record] values and [TableDefinition]s.
//
// # Table Registry
//
// Tables are registered at init time using [Register] from package core/tables.
// Each [TableDefinition] contains everything needed to move one table:
//
//	core.Register(core.TableDefinition{
//	    Info: core.TableInfo{Key: "genre", Label: "Genres", Order: 2},
//	    FieldSpecs: []core.FieldSpec{
//	        {Name: "id", Required: true},
//	        {Name: "created", SourceColumn: "created_at"},
//	    },
//	    Build: buildGenre,
//	})
//
// [Ordered] returns the definitions so that referenced tables come before the
// junction tables that point at them.
//
// # Coercion
//
// Record constructors coerce each field explicitly with [ToUUID], [ToTimestamp],
// [ToDate], [ToFloat] and [ToText]. A row that cannot be coerced fails with one of
// the row-level sentinels; [IsRowError] tells callers the row can be dropped.
//
// # Error Handling
//
// [ClassifyWriteError] turns destination failures into a [WriteFailure] class that
// decides whether the writer continues. [Describe] maps any error to a coded
// [UserMessage] for log lines:
//
//   - DB001-DB008: destination errors (duplicates, constraints, connections)
//   - VAL001-VAL006: row coercion errors
//   - TBL001-TBL002: table errors
package core
