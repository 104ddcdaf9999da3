package usecase

import (
	"context"
	"fmt"

	"github.com/semmidev/backupkeeper/internal/domain"
)

type Lifecycle interface {
	State() domain.SchedulerState
	ActiveTimers() []string
}

type HealthSource interface {
	Health() Health
}

// StatusReporter is a read path over the other components.
type StatusReporter struct {
	configs   ScheduleReader
	store     domain.BackupStore
	lifecycle Lifecycle
	health    HealthSource
}

func NewStatusReporter(configs ScheduleReader, store domain.BackupStore, lifecycle Lifecycle, health HealthSource) *StatusReporter {
	return &StatusReporter{
		configs:   configs,
		store:     store,
		lifecycle: lifecycle,
		health:    health,
	}
}

// Status builds the snapshot. NextBackupAt is known only while automatic
// backups are enabled and at least one full backup exists.
func (r *StatusReporter) Status(ctx context.Context) (domain.Status, error) {
	status := domain.Status{
		State:        r.lifecycle.State(),
		ActiveTimers: r.lifecycle.ActiveTimers(),
	}
	r.fillHealth(&status)

	cfg, err := r.configs.Get(ctx)
	status.Enabled = cfg.AutoEnabled
	status.FrequencyHours = cfg.FrequencyHours
	if err != nil {
		status.Enabled = false
		return status, fmt.Errorf("read schedule: %w", err)
	}

	records, err := r.store.ListBackups(ctx)
	if err != nil {
		return status, fmt.Errorf("list backups: %w", err)
	}
	status.TotalBackupCount = len(records)

	var last *domain.BackupRecord
	for i := range records {
		rec := &records[i]
		if rec.Kind != domain.BackupKindFull {
			continue
		}
		if last == nil || rec.CreatedAt.After(last.CreatedAt) {
			last = rec
		}
	}

	if last != nil {
		lastAt := last.CreatedAt
		status.LastBackupAt = &lastAt
		if cfg.AutoEnabled {
			next := lastAt.Add(cfg.Frequency())
			status.NextBackupAt = &next
		}
	}

	return status, nil
}

func (r *StatusReporter) fillHealth(status *domain.Status) {
	if r.health == nil {
		return
	}
	h := r.health.Health()
	if len(h.LastSuccess) > 0 {
		status.LastSuccess = h.LastSuccess
	}
	if !h.LastFailureAt.IsZero() {
		at := h.LastFailureAt
		status.LastFailureAt = &at
		status.LastFailure = h.LastFailure
	}
}
