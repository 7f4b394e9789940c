package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (and creates if needed) the ledger database at path and
// ensures the verdict tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
		if err := ensureLocalFilesystem(path); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; the ledger is append-mostly and small.
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA journal_mode = WAL;",
	} {
		if _, err := db.ExecContext(pctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates tables/indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS verdict_log (
  invocation_id    TEXT PRIMARY KEY,
  delivery_id      TEXT,
  repository       TEXT NOT NULL,
  sha              TEXT NOT NULL,
  author_email     TEXT,
  device_id        TEXT,
  cert_fingerprint TEXT,
  trusted          INTEGER NOT NULL DEFAULT 0,
  indeterminate    INTEGER NOT NULL DEFAULT 0,
  reason           TEXT NOT NULL,
  detail           TEXT,
  conclusion       TEXT NOT NULL,
  reported         INTEGER NOT NULL DEFAULT 0,
  report_error     TEXT,
  created_at       TEXT NOT NULL,
  duration_ms      INTEGER NOT NULL DEFAULT 0
);`,
		`CREATE INDEX IF NOT EXISTS verdict_log_repo_sha_idx ON verdict_log(repository, sha);`,
		`CREATE INDEX IF NOT EXISTS verdict_log_created_at_idx ON verdict_log(created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
