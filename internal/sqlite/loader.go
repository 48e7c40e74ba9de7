// Package sqlite reads the movies tables out of a SQLite file in bounded batches.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/movies-etl/internal/core"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// DefaultBatchSize is the number of rows per batch until Configure is called.
const DefaultBatchSize = 100

var (
	ErrSourceNotFound   = errors.New("source file not found")
	ErrSourcePermission = errors.New("source file not readable")
	ErrSourceConnect    = errors.New("source connect failed")
)

// Querier is the subset of *sql.DB the loader needs.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Loader reads registered tables from a SQLite database.
type Loader struct {
	db        Querier
	closer    func() error
	batchSize int
	logger    *slog.Logger
}

// Open opens the SQLite file at path read-only and verifies it can be queried.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Loader, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
	case errors.Is(err, fs.ErrPermission):
		return nil, fmt.Errorf("%w: %s", ErrSourcePermission, path)
	case err != nil:
		return nil, fmt.Errorf("%w: stat %s: %v", ErrSourceConnect, path, err)
	case info.IsDir():
		return nil, fmt.Errorf("%w: %s is a directory", ErrSourceConnect, path)
	}

	// SQLite opens lazily; check readability up front so the error is classified.
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %s", ErrSourcePermission, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrSourceConnect, err)
	}
	_ = f.Close()

	dsn, err := readOnlyDSN(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceConnect, err)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %v", ErrSourceConnect, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping sqlite: %v", ErrSourceConnect, err)
	}

	l := NewLoader(db, logger)
	l.closer = db.Close
	logger.Info("source opened", "path", path, "size_bytes", info.Size())
	return l, nil
}

// readOnlyDSN returns a read-only SQLite URI for path. The path is made absolute
// and escaped so that '?', '#' and '%' in file names are not read as URI syntax.
func readOnlyDSN(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: "mode=ro"}
	return u.String(), nil
}

// NewLoader wraps an existing connection. The caller keeps ownership of db.
func NewLoader(db Querier, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		db:        db,
		batchSize: DefaultBatchSize,
		logger:    logger.With("component", "sqlite"),
	}
}

// Configure sets the batch size. A non-positive size is rejected and the current size kept.
func (l *Loader) Configure(batchSize int) error {
	if batchSize <= 0 {
		l.logger.Error("rejected batch size", "batch_size", batchSize, "current", l.batchSize)
		return fmt.Errorf("%w: batch size must be positive, got %d", core.ErrInvalidConfiguration, batchSize)
	}
	l.batchSize = batchSize
	return nil
}

// BatchSize returns the current batch size.
func (l *Loader) BatchSize() int {
	return l.batchSize
}

// Close releases the connection if the loader opened it.
func (l *Loader) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer()
}

// RowCount returns the number of rows in table, or 0 if it cannot be counted.
func (l *Loader) RowCount(ctx context.Context, table string) int64 {
	if _, err := core.Lookup(table); err != nil {
		l.logger.Error("count failed", "table", table, "error", err)
		return 0
	}

	query := "SELECT COUNT(*) FROM " + core.QuoteIdentifier(table)
	var n int64
	if err := l.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		l.logger.Error("count failed", "table", table, "query", query, "error", err)
		return 0
	}
	return n
}

// LoadTable starts reading table. The returned iterator is a *Batches.
func (l *Loader) LoadTable(ctx context.Context, table string) (core.BatchIterator, error) {
	def, err := core.Lookup(table)
	if err != nil {
		l.logger.Error("load rejected", "table", table, "code", core.Describe(err).Code, "error", err)
		return nil, err
	}

	query, err := l.selectQuery(ctx, def)
	if err != nil {
		return nil, err
	}

	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		l.logger.Error("select failed", "table", table, "query", query, "error", err)
		return nil, fmt.Errorf("%w: select %s: %v", core.ErrQueryExecution, table, err)
	}

	l.logger.Debug("loading table", "table", table, "batch_size", l.batchSize)
	return &Batches{
		rows:   rows,
		def:    def,
		size:   l.batchSize,
		query:  query,
		logger: l.logger.With("table", table),
	}, nil
}

// selectQuery builds the SELECT for def against the columns the source actually has.
// Renamed columns are aliased to their destination names and absent optional columns read as NULL.
func (l *Loader) selectQuery(ctx context.Context, def core.TableDefinition) (string, error) {
	table := def.Info.Key

	present, err := l.sourceColumns(ctx, table)
	if err != nil {
		return "", err
	}
	if len(present) == 0 {
		l.logger.Error("table missing from source", "table", table)
		return "", fmt.Errorf("%w: table %s not found in source", core.ErrQueryExecution, table)
	}

	exprs := make([]string, 0, len(def.FieldSpecs))
	for _, spec := range def.FieldSpecs {
		alias := core.QuoteIdentifier(spec.Name)
		switch {
		case present[spec.Source()]:
			exprs = append(exprs, core.QuoteIdentifier(spec.Source())+" AS "+alias)
		case present[spec.Name]:
			exprs = append(exprs, alias)
		case !spec.Required:
			exprs = append(exprs, "NULL AS "+alias)
		default:
			l.logger.Error("required column missing from source", "table", table, "column", spec.Source())
			return "", fmt.Errorf("%w: %s has no column %s", core.ErrQueryExecution, table, spec.Source())
		}
	}

	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, ", "), core.QuoteIdentifier(table)), nil
}

func (l *Loader) sourceColumns(ctx context.Context, table string) (map[string]bool, error) {
	const query = "SELECT name FROM pragma_table_info(?)"

	rows, err := l.db.QueryContext(ctx, query, table)
	if err != nil {
		l.logger.Error("column discovery failed", "table", table, "query", query, "error", err)
		return nil, fmt.Errorf("%w: columns of %s: %v", core.ErrQueryExecution, table, err)
	}
	defer func() { _ = rows.Close() }()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: scan column name: %v", core.ErrQueryExecution, err)
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: columns of %s: %v", core.ErrQueryExecution, table, err)
	}
	return cols, nil
}
