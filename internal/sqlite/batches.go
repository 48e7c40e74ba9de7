package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/movies-etl/internal/core"
)

// Batches iterates over a table in batches of at most the loader's batch size.
// Rows that fail coercion are logged and left out, so a batch may be shorter
// than the batch size or even empty.
type Batches struct {
	rows   *sql.Rows
	def    core.TableDefinition
	size   int
	query  string
	logger *slog.Logger

	batch   []core.Record
	err     error
	done    bool
	rowNum  int
	dropped int
}

// Next reads the next batch. It returns false when the table is exhausted or on error.
func (b *Batches) Next() bool {
	if b.done {
		return false
	}

	b.batch = make([]core.Record, 0, b.size)
	read := 0
	for read < b.size {
		if !b.rows.Next() {
			if err := b.rows.Err(); err != nil {
				b.fail(fmt.Errorf("%w: iterate %s: %v", core.ErrQueryExecution, b.def.Info.Key, err))
				return false
			}
			b.finish()
			break
		}
		read++
		b.rowNum++

		raw, err := b.scan()
		if err != nil {
			b.fail(err)
			return false
		}

		rec, err := b.def.Build(raw)
		if err != nil {
			if !core.IsRowError(err) {
				b.fail(err)
				return false
			}
			b.dropped++
			b.logger.Error("dropping row",
				"row", b.rowNum,
				"raw", raw,
				"code", core.Describe(err).Code,
				"error", err,
			)
			continue
		}
		b.batch = append(b.batch, rec)
	}

	return read > 0
}

func (b *Batches) scan() (core.RawRow, error) {
	vals := make([]any, len(b.def.FieldSpecs))
	ptrs := make([]any, len(vals))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	if err := b.rows.Scan(ptrs...); err != nil {
		b.logger.Error("scan failed", "row", b.rowNum, "query", b.query, "error", err)
		return nil, fmt.Errorf("%w: scan %s row %d: %v", core.ErrQueryExecution, b.def.Info.Key, b.rowNum, err)
	}

	raw := make(core.RawRow, len(vals))
	for i, spec := range b.def.FieldSpecs {
		raw[spec.Name] = vals[i]
	}
	return raw, nil
}

func (b *Batches) fail(err error) {
	b.err = err
	b.batch = nil
	b.finish()
}

func (b *Batches) finish() {
	b.done = true
	_ = b.rows.Close()
}

// Batch returns the records of the current batch.
func (b *Batches) Batch() []core.Record { return b.batch }

// Err returns the error that stopped iteration, if any.
func (b *Batches) Err() error { return b.err }

// Dropped returns the number of rows skipped so far.
func (b *Batches) Dropped() int { return b.dropped }

// Close releases the underlying rows. It is safe to call more than once.
func (b *Batches) Close() error {
	b.done = true
	return b.rows.Close()
}
