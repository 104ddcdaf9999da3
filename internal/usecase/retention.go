package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/juju/clock"

	"github.com/semmidev/backupkeeper/internal/domain"
)

const (
	DefaultMaxFullBackups    = 10
	DefaultIncrementalMaxAge = 7 * 24 * time.Hour
)

type RetentionPolicy struct {
	MaxFullBackups    int
	IncrementalMaxAge time.Duration
}

// RetentionReport lists what one cleanup pass removed and what it could not.
type RetentionReport struct {
	Deleted []domain.BackupRecord
	Failed  []error
}

type Retention struct {
	store     domain.BackupStore
	policy    RetentionPolicy
	requester string
	clock     clock.Clock
	logger    Logger
	metrics   Metrics
}

func NewRetention(
	store domain.BackupStore,
	policy RetentionPolicy,
	requester string,
	clk clock.Clock,
	logger Logger,
	metrics Metrics,
) *Retention {
	if policy.MaxFullBackups <= 0 {
		policy.MaxFullBackups = DefaultMaxFullBackups
	}
	if policy.IncrementalMaxAge <= 0 {
		policy.IncrementalMaxAge = DefaultIncrementalMaxAge
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Retention{
		store:     store,
		policy:    policy,
		requester: requester,
		clock:     clk,
		logger:    logger,
		metrics:   metrics,
	}
}

// Candidates returns the records the policy would delete at now: every full
// backup beyond the newest MaxFullBackups, then every incremental older than
// IncrementalMaxAge.
func (r *Retention) Candidates(records []domain.BackupRecord, now time.Time) []domain.BackupRecord {
	full := domain.FilterKind(records, domain.BackupKindFull)
	sort.SliceStable(full, func(i, j int) bool {
		return full[i].CreatedAt.After(full[j].CreatedAt)
	})

	var out []domain.BackupRecord
	if len(full) > r.policy.MaxFullBackups {
		out = append(out, full[r.policy.MaxFullBackups:]...)
	}

	cutoff := now.Add(-r.policy.IncrementalMaxAge)
	for _, rec := range domain.FilterKind(records, domain.BackupKindIncremental) {
		if rec.CreatedAt.Before(cutoff) {
			out = append(out, rec)
		}
	}

	return out
}

// Enforce runs one cleanup pass. Candidates are deleted one at a time and a
// failed deletion does not stop the rest of the pass.
func (r *Retention) Enforce(ctx context.Context) (RetentionReport, error) {
	var report RetentionReport

	records, err := r.store.ListBackups(ctx)
	if err != nil {
		return report, fmt.Errorf("list backups: %w", err)
	}

	candidates := r.Candidates(records, r.clock.Now())
	if len(candidates) == 0 {
		r.logger.Debugf("Retention: nothing to delete (%d backup(s) on record)", len(records))
		return report, nil
	}

	for _, rec := range candidates {
		if err := ctx.Err(); err != nil {
			report.Failed = append(report.Failed, &domain.BackupDeletionError{ID: rec.ID, Err: err})
			continue
		}

		err := r.store.DeleteBackup(ctx, rec.ID, r.requester)
		switch {
		case err == nil:
			report.Deleted = append(report.Deleted, rec)
			r.metrics.RetentionDeleted(rec.Kind, nil)
			r.logger.Infof("Cleaned up old %s backup: %s", rec.Kind, rec.Name)
		case errors.Is(err, domain.ErrBackupNotFound):
			r.logger.Warnf("Old %s backup %s was already gone", rec.Kind, rec.Name)
		default:
			derr := &domain.BackupDeletionError{ID: rec.ID, Err: err}
			report.Failed = append(report.Failed, derr)
			r.metrics.RetentionDeleted(rec.Kind, derr)
			r.logger.Errorf("Failed to delete %s backup %s: %v", rec.Kind, rec.Name, err)
		}
	}

	r.logger.Infof("Retention: deleted %d, failed %d", len(report.Deleted), len(report.Failed))
	return report, nil
}
