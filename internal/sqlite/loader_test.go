package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/JonMunkholm/movies-etl/internal/core"
	_ "github.com/JonMunkholm/movies-etl/internal/core/tables"
)

const sourceSchema = `
CREATE TABLE film_work (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT,
	creation_date DATE,
	file_path TEXT,
	rating FLOAT,
	type TEXT NOT NULL,
	created_at timestamp with time zone,
	updated_at timestamp with time zone
);
CREATE TABLE genre (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	created_at timestamp with time zone,
	updated_at timestamp with time zone
);
CREATE TABLE person (
	id TEXT PRIMARY KEY,
	full_name TEXT NOT NULL,
	created_at timestamp with time zone,
	updated_at timestamp with time zone
);
CREATE TABLE genre_film_work (
	id TEXT PRIMARY KEY,
	film_work_id TEXT NOT NULL,
	genre_id TEXT NOT NULL,
	created_at timestamp with time zone
);
CREATE TABLE person_film_work (
	id TEXT PRIMARY KEY,
	film_work_id TEXT NOT NULL,
	person_id TEXT NOT NULL,
	role TEXT NOT NULL,
	created_at timestamp with time zone
);
`

const (
	filmA  = "3d825f60-9fff-4dfe-b294-1a45fa1e115d"
	filmB  = "0312ed51-8833-413f-bff5-0e139c11264a"
	genreA = "3d8d9bf5-0d90-4353-88ba-4ccc5d2c07ff"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newMemoryDB returns a private in-memory database with the source schema applied.
func newMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.Exec(sourceSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

func mustExec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

// countingQuerier counts every statement issued through it.
type countingQuerier struct {
	db      *sql.DB
	queries atomic.Int32
}

func (c *countingQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	c.queries.Add(1)
	return c.db.QueryContext(ctx, query, args...)
}

func (c *countingQuerier) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	c.queries.Add(1)
	return c.db.QueryRowContext(ctx, query, args...)
}

func collect(t *testing.T, it core.BatchIterator) [][]core.Record {
	t.Helper()
	defer func() { _ = it.Close() }()

	var batches [][]core.Record
	for it.Next() {
		batches = append(batches, it.Batch())
	}
	if err := it.Err(); err != nil {
		t.Fatalf("iteration error: %v", err)
	}
	return batches
}

func TestLoadTable_UnknownTableIssuesNoQuery(t *testing.T) {
	q := &countingQuerier{db: newMemoryDB(t)}
	l := NewLoader(q, discardLogger())

	it, err := l.LoadTable(context.Background(), "nonexistent_table")
	if !errors.Is(err, core.ErrUnknownTable) {
		t.Fatalf("LoadTable() error = %v, want ErrUnknownTable", err)
	}
	if it != nil {
		t.Error("LoadTable() returned an iterator alongside an error")
	}
	if n := q.queries.Load(); n != 0 {
		t.Errorf("issued %d queries, want 0", n)
	}
}

func TestLoadTable_Batching(t *testing.T) {
	db := newMemoryDB(t)
	for i := 0; i < 5; i++ {
		mustExec(t, db, `INSERT INTO person (id, full_name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			uuidFor(i), "Person", "2021-06-16 20:14:09.221838+00", "2021-06-16 20:14:09.221855+00")
	}

	l := NewLoader(db, discardLogger())
	if err := l.Configure(2); err != nil {
		t.Fatalf("Configure(2) error = %v", err)
	}

	it, err := l.LoadTable(context.Background(), "person")
	if err != nil {
		t.Fatalf("LoadTable() error = %v", err)
	}
	batches := collect(t, it)

	sizes := make([]int, len(batches))
	for i, b := range batches {
		sizes[i] = len(b)
	}
	if len(sizes) != 3 || sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Fatalf("batch sizes = %v, want [2 2 1]", sizes)
	}

	p, ok := batches[0][0].(core.Person)
	if !ok {
		t.Fatalf("record type = %T, want core.Person", batches[0][0])
	}
	if p.Created.IsZero() || p.Modified.Equal(p.Created) {
		t.Errorf("created_at/updated_at not mapped: created=%v modified=%v", p.Created, p.Modified)
	}
}

func TestLoadTable_DropsMalformedRows(t *testing.T) {
	db := newMemoryDB(t)
	rows := []struct{ id, genreID string }{
		{"a0000000-0000-0000-0000-000000000001", genreA},
		{"a0000000-0000-0000-0000-000000000002", "not-a-uuid"},
		{"a0000000-0000-0000-0000-000000000003", genreA},
	}
	for _, r := range rows {
		mustExec(t, db, `INSERT INTO genre_film_work (id, film_work_id, genre_id, created_at) VALUES (?, ?, ?, ?)`,
			r.id, filmA, r.genreID, "2021-06-16 20:14:09+00")
	}

	var logs bytes.Buffer
	l := NewLoader(db, slog.New(slog.NewTextHandler(&logs, nil)))

	it, err := l.LoadTable(context.Background(), "genre_film_work")
	if err != nil {
		t.Fatalf("LoadTable() error = %v", err)
	}
	batches := collect(t, it)

	if len(batches) != 1 || len(batches[0]) != 2 {
		t.Fatalf("got %d batches, first len %d; want one batch of 2", len(batches), len(batches[0]))
	}
	if it.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", it.Dropped())
	}
	if n := strings.Count(logs.String(), "level=ERROR"); n != 1 {
		t.Errorf("logged %d errors, want 1:\n%s", n, logs.String())
	}
	if !strings.Contains(logs.String(), "not-a-uuid") {
		t.Errorf("log does not include the raw row:\n%s", logs.String())
	}
}

func TestLoadTable_RatingOutOfRangeDropped(t *testing.T) {
	db := newMemoryDB(t)
	mustExec(t, db, `INSERT INTO film_work (id, title, rating, type) VALUES (?, 'Ok', 8.5, 'movie')`, filmA)
	mustExec(t, db, `INSERT INTO film_work (id, title, rating, type) VALUES (?, 'Too good', '150', 'movie')`, filmB)

	l := NewLoader(db, discardLogger())
	it, err := l.LoadTable(context.Background(), "film_work")
	if err != nil {
		t.Fatalf("LoadTable() error = %v", err)
	}
	batches := collect(t, it)

	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Fatalf("want one batch with one record, got %v", batches)
	}
	if got := batches[0][0].Key().String(); got != filmA {
		t.Errorf("kept %s, want %s", got, filmA)
	}
}

func TestLoadTable_AllRowsDroppedYieldsEmptyBatch(t *testing.T) {
	db := newMemoryDB(t)
	mustExec(t, db, `INSERT INTO genre (id, name) VALUES ('bad-id', 'Drama')`)

	l := NewLoader(db, discardLogger())
	it, err := l.LoadTable(context.Background(), "genre")
	if err != nil {
		t.Fatalf("LoadTable() error = %v", err)
	}
	batches := collect(t, it)

	if len(batches) != 1 || len(batches[0]) != 0 {
		t.Fatalf("want a single empty batch, got %v", batches)
	}
}

func TestLoadTable_EmptyTable(t *testing.T) {
	l := NewLoader(newMemoryDB(t), discardLogger())
	it, err := l.LoadTable(context.Background(), "genre")
	if err != nil {
		t.Fatalf("LoadTable() error = %v", err)
	}
	if batches := collect(t, it); len(batches) != 0 {
		t.Errorf("got %d batches from empty table, want 0", len(batches))
	}
}

func TestLoadTable_MissingColumns(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	// Optional columns absent and audit columns already renamed.
	mustExec(t, db, `CREATE TABLE genre (id TEXT, name TEXT, created TEXT)`)
	mustExec(t, db, `INSERT INTO genre VALUES (?, 'Comedy', '2020-01-01 00:00:00+00')`, genreA)
	// Required column absent.
	mustExec(t, db, `CREATE TABLE person (id TEXT)`)

	l := NewLoader(db, discardLogger())

	it, err := l.LoadTable(context.Background(), "genre")
	if err != nil {
		t.Fatalf("LoadTable(genre) error = %v", err)
	}
	batches := collect(t, it)
	g := batches[0][0].(core.Genre)
	if g.Description.Valid {
		t.Errorf("Description = %+v, want NULL", g.Description)
	}
	if g.Created.Year() != 2020 {
		t.Errorf("Created = %v, want 2020", g.Created)
	}

	if _, err := l.LoadTable(context.Background(), "person"); !errors.Is(err, core.ErrQueryExecution) {
		t.Errorf("LoadTable(person) error = %v, want ErrQueryExecution", err)
	}
	if _, err := l.LoadTable(context.Background(), "film_work"); !errors.Is(err, core.ErrQueryExecution) {
		t.Errorf("LoadTable(film_work) error = %v, want ErrQueryExecution", err)
	}
}

func TestConfigure(t *testing.T) {
	l := NewLoader(newMemoryDB(t), discardLogger())

	if l.BatchSize() != DefaultBatchSize {
		t.Fatalf("BatchSize() = %d, want %d", l.BatchSize(), DefaultBatchSize)
	}
	if err := l.Configure(50); err != nil {
		t.Fatalf("Configure(50) error = %v", err)
	}

	for _, n := range []int{0, -1} {
		if err := l.Configure(n); !errors.Is(err, core.ErrInvalidConfiguration) {
			t.Errorf("Configure(%d) error = %v, want ErrInvalidConfiguration", n, err)
		}
		if l.BatchSize() != 50 {
			t.Errorf("after Configure(%d) BatchSize() = %d, want 50", n, l.BatchSize())
		}
	}
}

func TestRowCount(t *testing.T) {
	db := newMemoryDB(t)
	mustExec(t, db, `INSERT INTO genre (id, name) VALUES (?, 'Action')`, genreA)
	l := NewLoader(db, discardLogger())

	if got := l.RowCount(context.Background(), "genre"); got != 1 {
		t.Errorf("RowCount(genre) = %d, want 1", got)
	}
	if got := l.RowCount(context.Background(), "nonexistent_table"); got != 0 {
		t.Errorf("RowCount(nonexistent_table) = %d, want 0", got)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := Open(ctx, filepath.Join(dir, "absent.sqlite"), discardLogger())
		if !errors.Is(err, ErrSourceNotFound) {
			t.Errorf("Open() error = %v, want ErrSourceNotFound", err)
		}
	})

	t.Run("directory", func(t *testing.T) {
		_, err := Open(ctx, dir, discardLogger())
		if !errors.Is(err, ErrSourceConnect) {
			t.Errorf("Open() error = %v, want ErrSourceConnect", err)
		}
	})

	t.Run("unreadable file", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root can read any file")
		}
		path := filepath.Join(dir, "locked.sqlite")
		if err := os.WriteFile(path, nil, 0o000); err != nil {
			t.Fatal(err)
		}
		_, err := Open(ctx, path, discardLogger())
		if !errors.Is(err, ErrSourcePermission) {
			t.Errorf("Open() error = %v, want ErrSourcePermission", err)
		}
	})

	// Names with URI syntax characters must still open the file they name.
	for _, name := range []string{"db.sqlite", "movies?#1 100%.sqlite"} {
		t.Run("valid file "+name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			seedSource(t, path)

			l, err := Open(ctx, path, discardLogger())
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer func() { _ = l.Close() }()

			if got := l.RowCount(ctx, "genre"); got != 1 {
				t.Errorf("RowCount(genre) = %d, want 1", got)
			}
		})
	}
}

// seedSource writes a source database holding one genre at path.
func seedSource(t *testing.T, path string) {
	t.Helper()
	dsn := (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
	seed, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = seed.Close() }()

	if _, err := seed.Exec(sourceSchema); err != nil {
		t.Fatal(err)
	}
	if _, err := seed.Exec(`INSERT INTO genre (id, name) VALUES (?, 'Action')`, genreA); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("seeded file missing: %v", err)
	}
}

func TestReadOnlyDSN(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/data/db.sqlite", "file:///data/db.sqlite?mode=ro"},
		{"/data/movies?#1.sqlite", "file:///data/movies%3F%231.sqlite?mode=ro"},
		{"/data/100%.sqlite", "file:///data/100%25.sqlite?mode=ro"},
	}

	for _, tt := range tests {
		got, err := readOnlyDSN(tt.path)
		if err != nil {
			t.Fatalf("readOnlyDSN(%q) error = %v", tt.path, err)
		}
		if got != tt.want {
			t.Errorf("readOnlyDSN(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}

	rel, err := readOnlyDSN("db.sqlite")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(rel, "file:///") {
		t.Errorf("readOnlyDSN(relative) = %q, want an absolute file URI", rel)
	}
}

func uuidFor(i int) string {
	return "b0000000-0000-0000-0000-00000000000" + string(rune('0'+i))
}
