// Package sqlite implements the record stores on a single SQLite file using
// the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS federations (
	federation_id TEXT PRIMARY KEY,
	name          TEXT NOT NULL DEFAULT '',
	file_key      TEXT NOT NULL DEFAULT '',
	url           TEXT NOT NULL DEFAULT '',
	file_id       TEXT NOT NULL DEFAULT '',
	logo_ref      TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL,
	refreshed_at  TEXT
);

CREATE TABLE IF NOT EXISTS entities (
	id          TEXT PRIMARY KEY,
	entity_id   TEXT NOT NULL UNIQUE,
	entity_type TEXT NOT NULL CHECK (entity_type IN ('idp', 'sp')),
	file_key    TEXT NOT NULL DEFAULT '',
	url         TEXT NOT NULL DEFAULT '',
	file_id     TEXT NOT NULL DEFAULT '',
	logo_ref    TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entity_federations (
	entity_ref    TEXT NOT NULL REFERENCES entities (id) ON DELETE CASCADE,
	federation_id TEXT NOT NULL REFERENCES federations (federation_id) ON DELETE CASCADE,
	PRIMARY KEY (entity_ref, federation_id)
);

CREATE INDEX IF NOT EXISTS idx_entity_federations_federation
	ON entity_federations (federation_id);
`

// Open opens (creating if necessary) the database at path and applies the
// schema. Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		path = "metsync.db"
	}

	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
		dsn = "file:" + path
	}
	dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// a single connection serializes writers and keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return db, nil
}

func sqliteCode(err error) int {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()
	}
	return 0
}

func isUniqueViolation(err error) bool {
	code := sqliteCode(err)
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func isForeignKeyViolation(err error) bool {
	return sqliteCode(err) == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

type rowScanner interface {
	Scan(dest ...any) error
}
