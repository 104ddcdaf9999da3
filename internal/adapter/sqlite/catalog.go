package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/semmidev/backupkeeper/internal/domain"
)

const (
	ActionCreate = "create"
	ActionDelete = "delete"
)

type AuditEntry struct {
	BackupID    string
	Action      string
	RequestedBy string
	At          time.Time
}

// Catalog is the record of every backup archive and who asked for it.
type Catalog struct {
	db *DB
}

func NewCatalog(db *DB) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) Insert(ctx context.Context, rec domain.BackupRecord) error {
	var windowStart sql.NullInt64
	if rec.WindowStart != nil {
		windowStart = sql.NullInt64{Int64: rec.WindowStart.UnixNano(), Valid: true}
	}

	return c.db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO backups (id, name, kind, created_at, size_bytes, window_start, description, requested_by)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.Name, string(rec.Kind), rec.CreatedAt.UnixNano(), rec.SizeBytes,
			windowStart, rec.Description, rec.RequestedBy,
		)
		if err != nil {
			return fmt.Errorf("insert backup %s: %w", rec.ID, err)
		}
		return audit(ctx, tx, rec.ID, ActionCreate, rec.RequestedBy, rec.CreatedAt)
	})
}

// List returns every backup, newest first.
func (c *Catalog) List(ctx context.Context) ([]domain.BackupRecord, error) {
	rows, err := c.db.db.QueryContext(ctx, `
		SELECT id, name, kind, created_at, size_bytes, window_start, description, requested_by
		FROM backups
		ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query backups: %w", err)
	}
	defer rows.Close()

	var records []domain.BackupRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (c *Catalog) Get(ctx context.Context, id string) (domain.BackupRecord, error) {
	row := c.db.db.QueryRowContext(ctx, `
		SELECT id, name, kind, created_at, size_bytes, window_start, description, requested_by
		FROM backups
		WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BackupRecord{}, domain.ErrBackupNotFound
	}
	return rec, err
}

// Delete removes the record and writes the audit row in the same
// transaction.
func (c *Catalog) Delete(ctx context.Context, id, requesterID string, at time.Time) error {
	return c.db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM backups WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete backup %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete backup %s: %w", id, err)
		}
		if n == 0 {
			return domain.ErrBackupNotFound
		}
		return audit(ctx, tx, id, ActionDelete, requesterID, at)
	})
}

func (c *Catalog) AuditLog(ctx context.Context, backupID string) ([]AuditEntry, error) {
	rows, err := c.db.db.QueryContext(ctx, `
		SELECT backup_id, action, requested_by, at
		FROM backup_audit
		WHERE backup_id = ?
		ORDER BY id`, backupID)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var at int64
		if err := rows.Scan(&e.BackupID, &e.Action, &e.RequestedBy, &at); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.At = time.Unix(0, at).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func audit(ctx context.Context, tx *sql.Tx, backupID, action, requesterID string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO backup_audit (backup_id, action, requested_by, at)
		VALUES (?, ?, ?, ?)`,
		backupID, action, requesterID, at.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (domain.BackupRecord, error) {
	var (
		rec         domain.BackupRecord
		kind        string
		createdAt   int64
		windowStart sql.NullInt64
	)
	err := s.Scan(&rec.ID, &rec.Name, &kind, &createdAt, &rec.SizeBytes, &windowStart, &rec.Description, &rec.RequestedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan backup: %w", err)
	}

	rec.Kind = domain.BackupKind(kind)
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	if windowStart.Valid {
		ws := time.Unix(0, windowStart.Int64).UTC()
		rec.WindowStart = &ws
	}
	return rec, nil
}
