package domain

import (
	"context"
	"time"
)

// ScheduleConfig is the persisted automatic-backup setting.
type ScheduleConfig struct {
	AutoEnabled    bool `json:"enabled"`
	FrequencyHours int  `json:"frequencyHours"`
}

func (c ScheduleConfig) Frequency() time.Duration {
	return time.Duration(c.FrequencyHours) * time.Hour
}

// SystemConfigValue is one stored key as returned by the config repository.
type SystemConfigValue struct {
	Value string
	Type  string
}

type SystemConfigEntry struct {
	Key         string
	Value       string
	Type        string
	Description string
	Category    string
}

// ConfigRepository persists system configuration keys. UpsertSystemConfig
// writes every entry or none.
type ConfigRepository interface {
	GetSystemConfig(ctx context.Context) (map[string]SystemConfigValue, error)
	UpsertSystemConfig(ctx context.Context, entries ...SystemConfigEntry) error
}

type SchedulerState string

const (
	StateUninitialized             SchedulerState = "uninitialized"
	StateDisabled                  SchedulerState = "disabled"
	StateActiveFullOnly            SchedulerState = "active_full_only"
	StateActiveFullPlusIncremental SchedulerState = "active_full_plus_incremental"
)

func (s SchedulerState) Active() bool {
	return s == StateActiveFullOnly || s == StateActiveFullPlusIncremental
}

// Status is the read-only snapshot served to dashboards and health checks.
// A nil LastBackupAt or NextBackupAt means unknown, not "never" or "now".
type Status struct {
	Enabled          bool                     `json:"enabled"`
	FrequencyHours   int                      `json:"frequencyHours"`
	LastBackupAt     *time.Time               `json:"lastBackupAt"`
	NextBackupAt     *time.Time               `json:"nextBackupAt"`
	TotalBackupCount int                      `json:"totalBackupCount"`
	State            SchedulerState           `json:"state"`
	ActiveTimers     []string                 `json:"activeTimers"`
	LastSuccess      map[BackupKind]time.Time `json:"lastSuccess,omitempty"`
	LastFailureAt    *time.Time               `json:"lastFailureAt,omitempty"`
	LastFailure      string                   `json:"lastFailure,omitempty"`
}
