// Package consistency verifies a finished transfer by comparing the source and
// destination table by table.
package consistency

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/movies-etl/internal/core"
	"github.com/JonMunkholm/movies-etl/internal/logging"
	"github.com/JonMunkholm/movies-etl/internal/metrics"
)

// maxLoggedIDs caps the ids listed per problem kind in a log line.
const maxLoggedIDs = 10

// Source yields the records a transfer read.
type Source interface {
	LoadTable(ctx context.Context, table string) (core.BatchIterator, error)
	RowCount(ctx context.Context, table string) int64
}

// Destination re-reads transferred records.
type Destination interface {
	RowCount(ctx context.Context, table string) int64
	FetchByIDs(ctx context.Context, table string, ids []uuid.UUID) ([]core.Record, error)
}

// TableReport holds the findings for one table.
type TableReport struct {
	Table       string      `json:"table"`
	SourceCount int64       `json:"sourceCount"`
	DestCount   int64       `json:"destCount"`
	Batches     int         `json:"batches"`
	Checked     int         `json:"checked"`
	Dropped     int         `json:"dropped"`
	Missing     []uuid.UUID `json:"missing,omitempty"`
	Mismatched  []uuid.UUID `json:"mismatched,omitempty"`
}

// CountsMatch reports whether both sides hold the same number of rows.
func (r TableReport) CountsMatch() bool {
	return r.SourceCount == r.DestCount
}

// OK reports whether the table passed every check.
func (r TableReport) OK() bool {
	return r.CountsMatch() && len(r.Missing) == 0 && len(r.Mismatched) == 0
}

// Report holds the findings of one check run.
type Report struct {
	RunID    string        `json:"runId"`
	Tables   []TableReport `json:"tables"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether every table passed.
func (r Report) OK() bool {
	for _, t := range r.Tables {
		if !t.OK() {
			return false
		}
	}
	return true
}

// Failed returns the tables that did not pass.
func (r Report) Failed() []string {
	var failed []string
	for _, t := range r.Tables {
		if !t.OK() {
			failed = append(failed, t.Table)
		}
	}
	return failed
}

// Checker compares row counts and record contents between source and destination.
type Checker struct {
	source        Source
	dest          Destination
	sampleBatches int
	logger        *slog.Logger
}

// NewChecker creates a Checker. sampleBatches limits the content comparison to
// the first N source batches of each table; 0 compares every batch.
func NewChecker(source Source, dest Destination, sampleBatches int, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	if sampleBatches < 0 {
		sampleBatches = 0
	}
	return &Checker{
		source:        source,
		dest:          dest,
		sampleBatches: sampleBatches,
		logger:        logger.With("component", "consistency"),
	}
}

// Check runs the comparison over every registered table. Problems found in the
// data are reported, not returned; an error means the check itself could not run.
func (c *Checker) Check(ctx context.Context) (Report, error) {
	start := time.Now()

	runID := core.RunIDFromContext(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = core.ContextWithRunID(ctx, runID)
	}

	tables := core.Ordered()
	report := Report{RunID: runID, Tables: make([]TableReport, 0, len(tables))}

	for _, def := range tables {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, err
		}

		tr, err := c.checkTable(ctx, def)
		if err != nil {
			report.Duration = time.Since(start)
			return report, fmt.Errorf("check %s: %w", def.Info.Key, err)
		}
		report.Tables = append(report.Tables, tr)
	}

	report.Duration = time.Since(start)
	return report, nil
}

func (c *Checker) checkTable(ctx context.Context, def core.TableDefinition) (TableReport, error) {
	table := def.Info.Key
	ctx = core.ContextWithTable(ctx, table)
	logger := logging.WithContext(ctx, c.logger)

	tr := TableReport{
		Table:       table,
		SourceCount: c.source.RowCount(ctx, table),
		DestCount:   c.dest.RowCount(ctx, table),
	}

	it, err := c.source.LoadTable(ctx, table)
	if err != nil {
		return tr, err
	}
	defer func() { _ = it.Close() }()

	for it.Next() {
		if c.sampleBatches > 0 && tr.Batches >= c.sampleBatches {
			break
		}
		tr.Batches++

		batch := it.Batch()
		if len(batch) == 0 {
			continue
		}
		if err := c.compareBatch(ctx, table, batch, &tr); err != nil {
			return tr, err
		}
	}
	if err := it.Err(); err != nil {
		return tr, err
	}
	tr.Dropped = it.Dropped()

	metrics.RecordConsistency(table, !tr.CountsMatch(), len(tr.Missing), len(tr.Mismatched))

	attrs := []any{
		"source_count", tr.SourceCount,
		"dest_count", tr.DestCount,
		"checked", tr.Checked,
		"dropped", tr.Dropped,
	}
	if tr.OK() {
		logger.Info("table consistent", attrs...)
		return tr, nil
	}

	attrs = append(attrs,
		"missing", len(tr.Missing),
		"mismatched", len(tr.Mismatched),
	)
	if len(tr.Missing) > 0 {
		attrs = append(attrs, "missing_ids", firstIDs(tr.Missing))
	}
	if len(tr.Mismatched) > 0 {
		attrs = append(attrs, "mismatched_ids", firstIDs(tr.Mismatched))
	}
	logger.Warn("table inconsistent", attrs...)
	return tr, nil
}

func (c *Checker) compareBatch(ctx context.Context, table string, batch []core.Record, tr *TableReport) error {
	ids := make([]uuid.UUID, len(batch))
	for i, rec := range batch {
		ids[i] = rec.Key()
	}

	stored, err := c.dest.FetchByIDs(ctx, table, ids)
	if err != nil {
		return err
	}
	byID := make(map[uuid.UUID]core.Record, len(stored))
	for _, rec := range stored {
		byID[rec.Key()] = rec
	}

	for _, rec := range batch {
		tr.Checked++
		got, ok := byID[rec.Key()]
		switch {
		case !ok:
			tr.Missing = append(tr.Missing, rec.Key())
		case !rec.Equal(got):
			tr.Mismatched = append(tr.Mismatched, rec.Key())
		}
	}
	return nil
}

func firstIDs(ids []uuid.UUID) []string {
	n := min(len(ids), maxLoggedIDs)
	out := make([]string, n)
	for i := range out {
		out[i] = ids[i].String()
	}
	return out
}
