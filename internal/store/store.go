/**
 * Document store for the ingestion pipeline
 *
 * Persists users, folders, documents and pages over database/sql.
 * PostgreSQL (lib/pq) in production, SQLite (modernc) for development and tests.
 */

package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/adverant/nexus/docingest/internal/errors"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = stderrors.New("not found")

// ErrNoPages signals that a document version has no pages to regenerate from
var ErrNoPages = stderrors.New("no pages for source version")

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// SQLStore handles database operations
type SQLStore struct {
	db     *sql.DB
	driver string
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	is_superuser BOOLEAN NOT NULL DEFAULT FALSE,
	ocr_language TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS folders (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	user_id TEXT NOT NULL REFERENCES users(id),
	parent_id TEXT REFERENCES folders(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS folders_root_title_idx
	ON folders (user_id, title) WHERE parent_id IS NULL;

CREATE UNIQUE INDEX IF NOT EXISTS folders_child_title_idx
	ON folders (parent_id, title) WHERE parent_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	file_name TEXT NOT NULL,
	size BIGINT NOT NULL DEFAULT 0,
	page_count INTEGER NOT NULL DEFAULT 0,
	lang TEXT NOT NULL DEFAULT '',
	version INTEGER NOT NULL DEFAULT 0,
	user_id TEXT NOT NULL REFERENCES users(id),
	parent_id TEXT NOT NULL REFERENCES folders(id),
	notes TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	UNIQUE (parent_id, title)
);

CREATE TABLE IF NOT EXISTS pages (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	version INTEGER NOT NULL,
	number INTEGER NOT NULL,
	text TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (document_id, version, number)
);
`

// Open connects to the database and creates the schema if needed
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if driver == DriverSQLite {
		// single writer
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetConnMaxIdleTime(2 * time.Minute)
	}

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if driver == DriverSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	s := &SQLStore{db: db, driver: driver}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Ping checks the database is reachable
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for PostgreSQL
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// inTx runs fn inside a transaction and commits when fn succeeds
func (s *SQLStore) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewDatabaseError(op, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.NewDatabaseError(op, err)
	}
	return nil
}

// isUniqueViolation detects unique constraint failures from either driver
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// timestamp scans TIMESTAMP columns from either driver. lib/pq yields
// time.Time while SQLite may hand back text.
type timestamp struct {
	t *time.Time
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (ts timestamp) Scan(value interface{}) error {
	var text string
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		*ts.t = v
		return nil
	case string:
		text = v
	case []byte:
		text = string(v)
	case int64:
		*ts.t = time.Unix(v, 0).UTC()
		return nil
	default:
		return fmt.Errorf("cannot scan %T into timestamp", value)
	}

	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, text); err == nil {
			*ts.t = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", text)
}
