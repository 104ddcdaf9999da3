package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/semmidev/backupkeeper/internal/domain"
)

type Options struct {
	Defaults            domain.ScheduleConfig
	WarmupDelay         time.Duration
	IncrementalInterval time.Duration
	IncrementalLookback time.Duration
	WindowMode          WindowMode
	Retention           RetentionPolicy
	SchedulerRequester  string
	CleanupRequester    string
	ManualRequester     string
}

func DefaultOptions() Options {
	return Options{
		Defaults:            DefaultScheduleConfig,
		WarmupDelay:         DefaultWarmupDelay,
		IncrementalInterval: DefaultIncrementalInterval,
		IncrementalLookback: DefaultIncrementalLookback,
		WindowMode:          WindowFixed,
		Retention: RetentionPolicy{
			MaxFullBackups:    DefaultMaxFullBackups,
			IncrementalMaxAge: DefaultIncrementalMaxAge,
		},
		SchedulerRequester: "system-scheduler",
		CleanupRequester:   "system-cleanup",
		ManualRequester:    "system-admin",
	}
}

type Dependencies struct {
	Store    domain.BackupStore
	Configs  domain.ConfigRepository
	Timers   Timers
	Clock    clock.Clock
	Logger   Logger
	Metrics  Metrics
	Notifier Notifier
}

// Scheduler is the administrative surface of the backup scheduling engine.
// It is constructed once at process entry and passed to whoever needs it.
type Scheduler struct {
	store        domain.BackupStore
	configs      *ScheduleConfigStore
	orchestrator *Orchestrator
	retention    *Retention
	coordinator  *TimerCoordinator
	status       *StatusReporter
	logger       Logger
	opts         Options

	// updateMu serializes persist-then-apply so the armed timers always
	// follow the last write.
	updateMu sync.Mutex
}

func NewScheduler(deps Dependencies, opts Options) *Scheduler {
	clk := deps.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	if opts.ManualRequester == "" {
		opts.ManualRequester = DefaultOptions().ManualRequester
	}

	configs := NewScheduleConfigStore(deps.Configs, opts.Defaults, deps.Logger)
	retention := NewRetention(deps.Store, opts.Retention, opts.CleanupRequester, clk, deps.Logger, metrics)
	orchestrator := NewOrchestrator(
		deps.Store,
		retention,
		configs,
		deps.Notifier,
		clk,
		deps.Logger,
		metrics,
		OrchestratorConfig{
			Requester:  opts.SchedulerRequester,
			Lookback:   opts.IncrementalLookback,
			WindowMode: opts.WindowMode,
		},
	)
	coordinator := NewTimerCoordinator(
		deps.Timers,
		configs,
		orchestrator,
		deps.Logger,
		metrics,
		TimerConfig{
			WarmupDelay:         opts.WarmupDelay,
			IncrementalInterval: opts.IncrementalInterval,
		},
	)

	return &Scheduler{
		store:        deps.Store,
		configs:      configs,
		orchestrator: orchestrator,
		retention:    retention,
		coordinator:  coordinator,
		status:       NewStatusReporter(configs, deps.Store, coordinator, orchestrator),
		logger:       deps.Logger,
		opts:         opts,
	}
}

// Initialize reads the persisted schedule and arms the timers. It is safe
// to call more than once.
func (s *Scheduler) Initialize(ctx context.Context) error {
	return s.coordinator.Init(ctx)
}

// UpdateSchedule persists the new schedule and then re-arms the timers to
// match it. Nothing changes when the frequency is invalid or the write
// fails.
func (s *Scheduler) UpdateSchedule(ctx context.Context, frequencyHours int, enabled bool) error {
	if frequencyHours <= 0 {
		return domain.ErrInvalidFrequency
	}

	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	if s.coordinator.Closed() {
		return domain.ErrSchedulerClosed
	}

	cfg := domain.ScheduleConfig{AutoEnabled: enabled, FrequencyHours: frequencyHours}
	if err := s.configs.Save(ctx, cfg); err != nil {
		s.logger.Errorf("Failed to save backup schedule: %v", err)
		return err
	}

	if err := s.coordinator.Apply(cfg); err != nil {
		s.logger.Errorf("Failed to apply backup schedule: %v", err)
		return err
	}

	s.logger.Infof("Backup schedule updated: enabled=%t, every %d hours", enabled, frequencyHours)
	return nil
}

func (s *Scheduler) GetStatus(ctx context.Context) (domain.Status, error) {
	return s.status.Status(ctx)
}

func (s *Scheduler) ListBackups(ctx context.Context) ([]domain.BackupRecord, error) {
	return s.store.ListBackups(ctx)
}

// RunFullNow takes one full backup outside the timer schedule, recorded
// under requesterID or the configured manual requester when it is empty.
// The scheduler and cleanup identities are refused.
func (s *Scheduler) RunFullNow(ctx context.Context, requesterID string) (domain.BackupRecord, error) {
	if requesterID == "" {
		requesterID = s.opts.ManualRequester
	}
	if requesterID == s.opts.SchedulerRequester || requesterID == s.opts.CleanupRequester {
		return domain.BackupRecord{}, domain.ErrReservedRequester
	}
	return s.orchestrator.RunManual(ctx, requesterID)
}

func (s *Scheduler) EnforceRetention(ctx context.Context) (RetentionReport, error) {
	return s.retention.Enforce(ctx)
}

func (s *Scheduler) State() domain.SchedulerState {
	return s.coordinator.State()
}

// Shutdown clears every timer and waits for running backups until ctx is
// done.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.logger.Infof("Shutting down automatic backup scheduler...")

	// No UpdateSchedule may persist once the coordinator is closed.
	s.updateMu.Lock()
	defer s.updateMu.Unlock()
	return s.coordinator.Close(ctx)
}
