// Package postgres writes records into the destination schema and reads them back for verification.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/movies-etl/internal/config"
	"github.com/JonMunkholm/movies-etl/internal/core"
	"github.com/JonMunkholm/movies-etl/internal/metrics"
)

const (
	// DefaultBatchSize is the number of records per sub-batch until Configure is called.
	DefaultBatchSize = 100

	// MaxBindParams is PostgreSQL's limit on parameters in one statement.
	MaxBindParams = 65535
)

var ErrDestinationConnect = errors.New("destination connect failed")

// DB is the subset of *pgxpool.Pool the saver needs.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SaveResult summarizes one Save call.
type SaveResult struct {
	Attempted     int // Records handed to Save
	Inserted      int // Rows the destination reported as inserted
	Conflicted    int // Records skipped by ON CONFLICT in committed sub-batches
	Failed        int // Records in rolled back sub-batches
	FailedBatches int // Rolled back sub-batches
}

// Add accumulates other into r.
func (r *SaveResult) Add(other SaveResult) {
	r.Attempted += other.Attempted
	r.Inserted += other.Inserted
	r.Conflicted += other.Conflicted
	r.Failed += other.Failed
	r.FailedBatches += other.FailedBatches
}

// Saver writes records with multi-row INSERT ... ON CONFLICT DO NOTHING.
type Saver struct {
	db        DB
	pool      *pgxpool.Pool
	schema    string
	batchSize int
	logger    *slog.Logger
}

// Connect opens a connection pool to the destination and pings it.
func Connect(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Saver, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("%w: parse config: %v", ErrDestinationConnect, err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDestinationConnect, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %v", ErrDestinationConnect, err)
	}

	s := NewSaver(pool, cfg.Schema, logger)
	s.pool = pool
	logger.Info("connected to destination",
		"host", cfg.Host,
		"port", cfg.Port,
		"name", cfg.Name,
		"schema", cfg.Schema,
	)
	return s, nil
}

// NewSaver wraps an existing pool or connection. The caller keeps ownership of db.
func NewSaver(db DB, schema string, logger *slog.Logger) *Saver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Saver{
		db:        db,
		schema:    schema,
		batchSize: DefaultBatchSize,
		logger:    logger.With("component", "postgres"),
	}
}

// Configure sets the sub-batch size. A non-positive size is rejected and the current size kept.
func (s *Saver) Configure(batchSize int) error {
	if batchSize <= 0 {
		s.logger.Error("rejected batch size", "batch_size", batchSize, "current", s.batchSize)
		return fmt.Errorf("%w: batch size must be positive, got %d", core.ErrInvalidConfiguration, batchSize)
	}
	s.batchSize = batchSize
	return nil
}

// BatchSize returns the configured sub-batch size.
func (s *Saver) BatchSize() int {
	return s.batchSize
}

// chunkSize caps the batch size so a statement stays within MaxBindParams.
func (s *Saver) chunkSize(columns int) int {
	if columns <= 0 {
		return s.batchSize
	}
	if limit := MaxBindParams / columns; s.batchSize > limit {
		return limit
	}
	return s.batchSize
}

// Close releases the pool if the saver opened it.
func (s *Saver) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Save inserts records into table in sub-batches, each in its own transaction.
// Duplicate keys on conflictColumns (default "id") are skipped.
//
// A sub-batch that fails with a recognized error class is rolled back and logged
// and the remaining sub-batches are still attempted. Any other failure stops the
// save and returns an error wrapping core.ErrUnclassified.
func (s *Saver) Save(ctx context.Context, records []core.Record, table string, conflictColumns ...string) (SaveResult, error) {
	var result SaveResult
	logger := s.logger.With("table", table)

	if len(records) == 0 {
		logger.Debug("nothing to save")
		return result, nil
	}

	def, err := core.Lookup(table)
	if err != nil {
		return result, err
	}

	for i, rec := range records {
		if rec.Table() != table {
			return result, fmt.Errorf("%w: record %d belongs to %s, not %s", core.ErrMixedBatch, i, rec.Table(), table)
		}
	}

	if len(conflictColumns) == 0 {
		conflictColumns = []string{"id"}
	}
	for _, col := range conflictColumns {
		if !def.HasColumn(col) {
			return result, fmt.Errorf("%w: conflict column %s is not a column of %s", core.ErrInvalidConfiguration, col, table)
		}
	}

	size := s.chunkSize(len(def.Info.Columns))
	for start := 0; start < len(records); start += size {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		end := min(start+size, len(records))
		chunk := records[start:end]
		result.Attempted += len(chunk)

		inserted, err := s.saveChunk(ctx, def, chunk, conflictColumns)
		if err == nil {
			result.Inserted += inserted
			result.Conflicted += len(chunk) - inserted
			continue
		}

		class := core.ClassifyWriteError(err)
		result.Failed += len(chunk)
		result.FailedBatches++
		metrics.RecordBatchFailure(table, string(class))

		logger.Log(ctx, class.Level(), "batch rolled back",
			"class", class,
			"rows", len(chunk),
			"first_id", chunk[0].Key(),
			"code", core.Describe(err).Code,
			"error", err,
		)

		if !class.Recoverable() {
			metrics.RecordWrite(table, result.Inserted, result.Conflicted, result.Failed)
			return result, fmt.Errorf("%w: %s: %v", core.ErrUnclassified, table, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			metrics.RecordWrite(table, result.Inserted, result.Conflicted, result.Failed)
			return result, ctxErr
		}
	}

	metrics.RecordWrite(table, result.Inserted, result.Conflicted, result.Failed)
	logger.Debug("batch saved",
		"attempted", result.Attempted,
		"inserted", result.Inserted,
		"conflicted", result.Conflicted,
		"failed", result.Failed,
	)
	return result, nil
}

// saveChunk inserts one sub-batch in its own transaction and returns the inserted row count.
func (s *Saver) saveChunk(ctx context.Context, def core.TableDefinition, chunk []core.Record, conflictColumns []string) (int, error) {
	start := time.Now()
	query, args := BuildInsert(s.schema, def.Info.Key, def.Info.Columns, conflictColumns, chunk)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	metrics.ObserveBatch(def.Info.Key, time.Since(start))
	return int(tag.RowsAffected()), nil
}

// BuildInsert returns a multi-row INSERT for records with every value bound positionally:
//
//	INSERT INTO "schema"."table" ("c1", "c2") VALUES ($1, $2), ($3, $4) ON CONFLICT ("c1") DO NOTHING
//
// Identifiers are quoted; callers take them from the registry and configuration only.
func BuildInsert(schema, table string, columns, conflictColumns []string, records []core.Record) (string, []any) {
	var b strings.Builder
	args := make([]any, 0, len(records)*len(columns))

	b.WriteString("INSERT INTO ")
	b.WriteString(core.QualifiedName(schema, table))
	b.WriteString(" (")
	b.WriteString(core.QuoteColumns(columns))
	b.WriteString(") VALUES ")

	n := 1
	for i, rec := range records {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
		}
		b.WriteByte(')')
		args = append(args, rec.Values()...)
	}

	if len(conflictColumns) == 0 {
		b.WriteString(" ON CONFLICT DO NOTHING")
	} else {
		b.WriteString(" ON CONFLICT (")
		b.WriteString(core.QuoteColumns(conflictColumns))
		b.WriteString(") DO NOTHING")
	}

	return b.String(), args
}

// RowCount returns the number of rows in table, or 0 if it cannot be counted.
func (s *Saver) RowCount(ctx context.Context, table string) int64 {
	if _, err := core.Lookup(table); err != nil {
		s.logger.Error("count failed", "table", table, "error", err)
		return 0
	}

	query := "SELECT COUNT(*) FROM " + core.QualifiedName(s.schema, table)
	var n int64
	if err := s.db.QueryRow(ctx, query).Scan(&n); err != nil {
		s.logger.Error("count failed", "table", table, "query", query, "code", core.Describe(err).Code, "error", err)
		return 0
	}
	return n
}

// FetchByIDs reads back the rows of table whose id is in ids and rebuilds them as records.
// Ids with no row are simply absent from the result.
func (s *Saver) FetchByIDs(ctx context.Context, table string, ids []uuid.UUID) ([]core.Record, error) {
	def, err := core.Lookup(table)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pgIDs := make([]pgtype.UUID, len(ids))
	for i, id := range ids {
		pgIDs[i] = core.PgUUID(id)
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ANY($1)",
		core.QuoteColumns(def.Info.Columns),
		core.QualifiedName(s.schema, table),
		core.QuoteIdentifier("id"),
	)

	rows, err := s.db.Query(ctx, query, pgIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", core.ErrQueryExecution, table, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", core.ErrQueryExecution, table, err)
	}

	records := make([]core.Record, 0, len(maps))
	for _, m := range maps {
		rec, err := def.Build(core.RawRow(m))
		if err != nil {
			return nil, fmt.Errorf("rebuild %s row %v: %w", table, m["id"], err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// IsConnectError reports whether err came from a failed connection attempt.
func IsConnectError(err error) bool {
	if errors.Is(err, ErrDestinationConnect) {
		return true
	}
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}
