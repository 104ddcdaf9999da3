package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/semmidev/backupkeeper/internal/domain"
)

const (
	KeyFrequencyHours       = "backup.frequency_hours"
	KeyAutoEnabled          = "backup.auto_enabled"
	KeyIncrementalWatermark = "backup.incremental_watermark"

	configCategory = "backup"
)

var DefaultScheduleConfig = domain.ScheduleConfig{AutoEnabled: true, FrequencyHours: 24}

// ScheduleConfigStore reads and writes the persisted schedule pair.
//
// A persisted value wins whenever it is present and parseable. The default
// is used only for a key that is absent or unparseable, so a stored "false"
// for the enabled flag is honoured.
type ScheduleConfigStore struct {
	repo     domain.ConfigRepository
	defaults domain.ScheduleConfig
	logger   Logger
}

func NewScheduleConfigStore(repo domain.ConfigRepository, defaults domain.ScheduleConfig, logger Logger) *ScheduleConfigStore {
	if defaults.FrequencyHours <= 0 {
		defaults.FrequencyHours = DefaultScheduleConfig.FrequencyHours
	}
	return &ScheduleConfigStore{
		repo:     repo,
		defaults: defaults,
		logger:   logger,
	}
}

func (s *ScheduleConfigStore) Defaults() domain.ScheduleConfig {
	return s.defaults
}

// Get returns the effective schedule. It fails only when the repository
// itself cannot be read.
func (s *ScheduleConfigStore) Get(ctx context.Context) (domain.ScheduleConfig, error) {
	values, err := s.repo.GetSystemConfig(ctx)
	if err != nil {
		return s.defaults, fmt.Errorf("read system config: %w", err)
	}

	cfg := s.defaults

	enabled, err := parseEnabled(values)
	if err != nil {
		s.warnDefault(err)
	} else {
		cfg.AutoEnabled = enabled
	}

	hours, err := parseFrequency(values)
	if err != nil {
		s.warnDefault(err)
	} else {
		cfg.FrequencyHours = hours
	}

	return cfg, nil
}

func (s *ScheduleConfigStore) warnDefault(err error) {
	var cerr *domain.ConfigurationError
	if errors.As(err, &cerr) && cerr.Err == nil {
		s.logger.Debugf("%v, using default", err)
		return
	}
	s.logger.Warnf("%v, using default", err)
}

func parseEnabled(values map[string]domain.SystemConfigValue) (bool, error) {
	v, ok := values[KeyAutoEnabled]
	if !ok {
		return false, &domain.ConfigurationError{Key: KeyAutoEnabled}
	}
	enabled, err := strconv.ParseBool(v.Value)
	if err != nil {
		return false, &domain.ConfigurationError{Key: KeyAutoEnabled, Value: v.Value, Err: err}
	}
	return enabled, nil
}

func parseFrequency(values map[string]domain.SystemConfigValue) (int, error) {
	v, ok := values[KeyFrequencyHours]
	if !ok {
		return 0, &domain.ConfigurationError{Key: KeyFrequencyHours}
	}
	hours, err := strconv.Atoi(v.Value)
	if err != nil {
		return 0, &domain.ConfigurationError{Key: KeyFrequencyHours, Value: v.Value, Err: err}
	}
	if hours <= 0 {
		return 0, &domain.ConfigurationError{Key: KeyFrequencyHours, Value: v.Value, Err: domain.ErrInvalidFrequency}
	}
	return hours, nil
}

// Save persists both keys in one write.
func (s *ScheduleConfigStore) Save(ctx context.Context, cfg domain.ScheduleConfig) error {
	if cfg.FrequencyHours <= 0 {
		return domain.ErrInvalidFrequency
	}

	return s.repo.UpsertSystemConfig(ctx,
		domain.SystemConfigEntry{
			Key:         KeyFrequencyHours,
			Value:       strconv.Itoa(cfg.FrequencyHours),
			Type:        "number",
			Description: "Full backup frequency in hours",
			Category:    configCategory,
		},
		domain.SystemConfigEntry{
			Key:         KeyAutoEnabled,
			Value:       strconv.FormatBool(cfg.AutoEnabled),
			Type:        "boolean",
			Description: "Automatic backups enabled",
			Category:    configCategory,
		},
	)
}

// Watermark returns the end of the last captured incremental window.
func (s *ScheduleConfigStore) Watermark(ctx context.Context) (time.Time, bool, error) {
	values, err := s.repo.GetSystemConfig(ctx)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read system config: %w", err)
	}

	v, ok := values[KeyIncrementalWatermark]
	if !ok {
		return time.Time{}, false, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, v.Value)
	if err != nil {
		s.logger.Warnf("%v, ignoring watermark", &domain.ConfigurationError{Key: KeyIncrementalWatermark, Value: v.Value, Err: err})
		return time.Time{}, false, nil
	}
	return ts, true, nil
}

func (s *ScheduleConfigStore) SaveWatermark(ctx context.Context, ts time.Time) error {
	return s.repo.UpsertSystemConfig(ctx, domain.SystemConfigEntry{
		Key:         KeyIncrementalWatermark,
		Value:       ts.UTC().Format(time.RFC3339Nano),
		Type:        "timestamp",
		Description: "End of the last captured incremental window",
		Category:    configCategory,
	})
}
