package domain

import (
	"context"
	"time"
)

type BackupKind string

const (
	BackupKindFull        BackupKind = "full"
	BackupKindIncremental BackupKind = "incremental"
)

func (k BackupKind) Valid() bool {
	return k == BackupKindFull || k == BackupKindIncremental
}

// BackupRecord describes one archive known to the Backup Store.
// WindowStart is set for incremental backups only.
type BackupRecord struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Kind        BackupKind `json:"kind"`
	CreatedAt   time.Time  `json:"createdAt"`
	SizeBytes   int64      `json:"sizeBytes"`
	WindowStart *time.Time `json:"windowStart,omitempty"`
	Description string     `json:"description,omitempty"`
	RequestedBy string     `json:"requestedBy,omitempty"`
}

// BackupStore produces, lists and deletes backups. The scheduling core
// only decides when these calls happen.
type BackupStore interface {
	CreateFullBackup(ctx context.Context, requesterID, description string) (BackupRecord, error)
	CreateIncrementalBackup(ctx context.Context, requesterID string, windowStart time.Time) (BackupRecord, error)
	ListBackups(ctx context.Context) ([]BackupRecord, error)
	DeleteBackup(ctx context.Context, id, requesterID string) error
}

// FilterKind returns the records of the given kind, preserving order.
func FilterKind(records []BackupRecord, kind BackupKind) []BackupRecord {
	out := make([]BackupRecord, 0, len(records))
	for _, r := range records {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}
