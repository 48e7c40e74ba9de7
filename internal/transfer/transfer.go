// Package transfer copies every registered table from a source to a sink,
// one batch at a time, in dependency order.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/movies-etl/internal/core"
	"github.com/JonMunkholm/movies-etl/internal/logging"
	"github.com/JonMunkholm/movies-etl/internal/metrics"
	"github.com/JonMunkholm/movies-etl/internal/postgres"
)

// Source yields a table's records in batches.
type Source interface {
	LoadTable(ctx context.Context, table string) (core.BatchIterator, error)
	RowCount(ctx context.Context, table string) int64
}

// Sink persists batches of records.
type Sink interface {
	Save(ctx context.Context, records []core.Record, table string, conflictColumns ...string) (postgres.SaveResult, error)
	RowCount(ctx context.Context, table string) int64
}

// TableResult summarizes the transfer of one table.
type TableResult struct {
	Table         string        `json:"table"`
	SourceRows    int64         `json:"sourceRows"`
	Batches       int           `json:"batches"`
	Read          int           `json:"read"`
	Dropped       int           `json:"dropped"`
	Inserted      int           `json:"inserted"`
	Conflicted    int           `json:"conflicted"`
	Failed        int           `json:"failed"`
	FailedBatches int           `json:"failedBatches"`
	Duration      time.Duration `json:"duration"`
}

// Report summarizes a run. Tables holds every table that was started, including
// the one that failed.
type Report struct {
	RunID    string        `json:"runId"`
	Tables   []TableResult `json:"tables"`
	Duration time.Duration `json:"duration"`
}

// Totals sums the per-table counters.
func (r Report) Totals() TableResult {
	var total TableResult
	for _, t := range r.Tables {
		total.SourceRows += t.SourceRows
		total.Batches += t.Batches
		total.Read += t.Read
		total.Dropped += t.Dropped
		total.Inserted += t.Inserted
		total.Conflicted += t.Conflicted
		total.Failed += t.Failed
		total.FailedBatches += t.FailedBatches
	}
	total.Duration = r.Duration
	return total
}

// Transfer runs the table-by-table copy. Progress may be read from other goroutines while Run executes.
type Transfer struct {
	source Source
	sink   Sink
	logger *slog.Logger

	// conflictKeys replaces a table's registered conflict columns.
	conflictKeys map[string][]string

	mu       sync.RWMutex
	progress core.TransferProgress
}

// New creates a Transfer from source to sink.
func New(source Source, sink Sink, logger *slog.Logger) *Transfer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transfer{
		source:   source,
		sink:     sink,
		logger:   logger.With("component", "transfer"),
		progress: core.TransferProgress{Phase: core.PhaseStarting},
	}
}

// SetConflictKeys overrides the ON CONFLICT columns for the named tables.
// Call it before Run.
func (t *Transfer) SetConflictKeys(keys map[string][]string) {
	t.conflictKeys = keys
}

// conflictKey returns the conflict columns used when saving def's table.
func (t *Transfer) conflictKey(def core.TableDefinition) []string {
	if cols, ok := t.conflictKeys[def.Info.Key]; ok {
		return cols
	}
	return def.Info.ConflictKey
}

// Progress returns a snapshot of the current run.
func (t *Transfer) Progress() core.TransferProgress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.progress
}

func (t *Transfer) update(fn func(p *core.TransferProgress)) {
	t.mu.Lock()
	fn(&t.progress)
	t.mu.Unlock()
}

// Run transfers every registered table in order. The first table-level failure
// stops the run; batches committed before it stay in the sink.
func (t *Transfer) Run(ctx context.Context) (Report, error) {
	start := time.Now()

	runID := core.RunIDFromContext(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = core.ContextWithRunID(ctx, runID)
	}
	logger := logging.WithContext(ctx, t.logger)

	tables := core.Ordered()
	report := Report{RunID: runID, Tables: make([]TableResult, 0, len(tables))}

	t.update(func(p *core.TransferProgress) {
		*p = core.TransferProgress{
			Phase:     core.PhaseStarting,
			TablesAll: len(tables),
			StartedAt: start,
		}
	})
	logger.Info("transfer started", "tables", len(tables))

	for _, def := range tables {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			t.stop(err)
			return report, err
		}

		res, err := t.transferTable(ctx, def)
		report.Tables = append(report.Tables, res)
		if err != nil {
			report.Duration = time.Since(start)
			t.stop(err)
			return report, fmt.Errorf("transfer %s: %w", def.Info.Key, err)
		}

		t.update(func(p *core.TransferProgress) { p.TablesDone++ })
	}

	report.Duration = time.Since(start)
	t.update(func(p *core.TransferProgress) {
		p.Phase = core.PhaseComplete
		p.Table = ""
	})
	return report, nil
}

func (t *Transfer) stop(err error) {
	phase := core.PhaseFailed
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		phase = core.PhaseCancelled
	}
	t.update(func(p *core.TransferProgress) {
		p.Phase = phase
		p.Error = err.Error()
	})
}

func (t *Transfer) transferTable(ctx context.Context, def core.TableDefinition) (TableResult, error) {
	table := def.Info.Key
	start := time.Now()
	ctx = core.ContextWithTable(ctx, table)
	logger := logging.WithContext(ctx, t.logger)

	res := TableResult{Table: table}

	t.update(func(p *core.TransferProgress) {
		p.Phase = core.PhaseReading
		p.Table = table
	})

	res.SourceRows = t.source.RowCount(ctx, table)
	conflict := t.conflictKey(def)
	logger.Info("table started", "label", def.Info.Label, "source_rows", res.SourceRows, "conflict_key", conflict)

	it, err := t.source.LoadTable(ctx, table)
	if err != nil {
		logger.Error("load failed", "code", core.Describe(err).Code, "error", err)
		res.Duration = time.Since(start)
		return res, err
	}
	defer func() { _ = it.Close() }()

	dropped := 0
	for it.Next() {
		batch := it.Batch()
		res.Batches++
		res.Read += len(batch)

		metrics.RecordRead(table, len(batch), it.Dropped()-dropped)
		dropped = it.Dropped()

		t.update(func(p *core.TransferProgress) {
			p.Phase = core.PhaseWriting
			p.Batches++
			p.Read += len(batch)
		})

		saved, err := t.sink.Save(ctx, batch, table, conflict...)
		res.Inserted += saved.Inserted
		res.Conflicted += saved.Conflicted
		res.Failed += saved.Failed
		res.FailedBatches += saved.FailedBatches

		t.update(func(p *core.TransferProgress) {
			p.Phase = core.PhaseReading
			p.Inserted += saved.Inserted
			p.Conflicted += saved.Conflicted
			p.Failed += saved.Failed
		})

		if err != nil {
			res.Dropped = it.Dropped()
			res.Duration = time.Since(start)
			logger.Error("save failed", "batch", res.Batches, "code", core.Describe(err).Code, "error", err)
			return res, err
		}
	}
	res.Dropped = it.Dropped()
	res.Duration = time.Since(start)

	if err := it.Err(); err != nil {
		logger.Error("read failed", "batch", res.Batches+1, "code", core.Describe(err).Code, "error", err)
		return res, err
	}

	metrics.ObserveTable(table, res.Duration)
	logger.Info("table transferred",
		"batches", res.Batches,
		"read", res.Read,
		"dropped", res.Dropped,
		"inserted", res.Inserted,
		"conflicted", res.Conflicted,
		"failed", res.Failed,
		"duration", res.Duration,
	)
	return res, nil
}
