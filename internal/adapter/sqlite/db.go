package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS system_config (
	key         TEXT PRIMARY KEY,
	value       TEXT NOT NULL,
	type        TEXT NOT NULL DEFAULT 'string',
	description TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS backups (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	kind         TEXT NOT NULL CHECK (kind IN ('full', 'incremental')),
	created_at   INTEGER NOT NULL,
	size_bytes   INTEGER NOT NULL DEFAULT 0,
	window_start INTEGER,
	description  TEXT NOT NULL DEFAULT '',
	requested_by TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_backups_created_at ON backups(created_at DESC);

CREATE TABLE IF NOT EXISTS backup_audit (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	backup_id    TEXT NOT NULL,
	action       TEXT NOT NULL,
	requested_by TEXT NOT NULL,
	at           INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_backup_audit_backup_id ON backup_audit(backup_id);
`

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
}

// DB is the catalog database shared by the config repository and the
// backup catalog.
type DB struct {
	db   *sql.DB
	path string
}

func Open(ctx context.Context, path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &DB{db: db, path: path}, nil
}

func (d *DB) Path() string {
	return d.path
}

func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DB) Close() error {
	return d.db.Close()
}

// withTx runs fn in a transaction and commits only if fn succeeds.
func (d *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
