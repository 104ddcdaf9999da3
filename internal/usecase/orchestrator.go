package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/juju/clock"

	"github.com/semmidev/backupkeeper/internal/domain"
)

const DefaultIncrementalLookback = 6 * time.Hour

type WindowMode string

const (
	// WindowFixed starts every incremental window a fixed lookback before
	// now. Windows overlap when ticks are on time and leave gaps when a tick
	// is late or missed.
	WindowFixed WindowMode = "fixed"
	// WindowWatermark starts each window where the last successful one
	// ended.
	WindowWatermark WindowMode = "watermark"
)

// Watermarks stores the end of the last captured incremental window.
type Watermarks interface {
	Watermark(ctx context.Context) (time.Time, bool, error)
	SaveWatermark(ctx context.Context, ts time.Time) error
}

type Cleaner interface {
	Enforce(ctx context.Context) (RetentionReport, error)
}

// Health is the orchestrator's view of recent runs.
type Health struct {
	LastSuccess   map[domain.BackupKind]time.Time
	LastFailureAt time.Time
	LastFailure   string
}

type OrchestratorConfig struct {
	Requester  string
	Lookback   time.Duration
	WindowMode WindowMode
}

type Orchestrator struct {
	store      domain.BackupStore
	retention  Cleaner
	watermarks Watermarks
	notifier   Notifier
	clock      clock.Clock
	logger     Logger
	metrics    Metrics
	cfg        OrchestratorConfig

	mu     sync.Mutex
	health Health
}

func NewOrchestrator(
	store domain.BackupStore,
	retention Cleaner,
	watermarks Watermarks,
	notifier Notifier,
	clk clock.Clock,
	logger Logger,
	metrics Metrics,
	cfg OrchestratorConfig,
) *Orchestrator {
	if cfg.Lookback <= 0 {
		cfg.Lookback = DefaultIncrementalLookback
	}
	if cfg.WindowMode == "" {
		cfg.WindowMode = WindowFixed
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Orchestrator{
		store:      store,
		retention:  retention,
		watermarks: watermarks,
		notifier:   notifier,
		clock:      clk,
		logger:     logger,
		metrics:    metrics,
		cfg:        cfg,
		health:     Health{LastSuccess: make(map[domain.BackupKind]time.Time)},
	}
}

// RunFull creates one full backup and, once it is acknowledged, applies
// retention.
func (o *Orchestrator) RunFull(ctx context.Context) error {
	start := o.clock.Now()
	o.logger.Infof("Starting scheduled full backup...")

	description := fmt.Sprintf("Scheduled automatic backup - %s", start.UTC().Format(time.RFC3339))
	rec, err := o.store.CreateFullBackup(ctx, o.cfg.Requester, description)
	o.metrics.BackupFinished(domain.BackupKindFull, err, o.clock.Now().Sub(start))
	if err != nil {
		return o.failed(ctx, domain.BackupKindFull, err)
	}

	o.succeeded(domain.BackupKindFull, rec)

	if o.retention != nil {
		if _, err := o.retention.Enforce(ctx); err != nil {
			o.logger.Errorf("Failed to clean up old backups: %v", err)
		}
	}

	return nil
}

// RunManual creates one full backup on behalf of requesterID. Scheduled
// health, failure alerts and retention are left to the timers.
func (o *Orchestrator) RunManual(ctx context.Context, requesterID string) (domain.BackupRecord, error) {
	start := o.clock.Now()
	o.logger.Infof("Starting manual full backup for %s...", requesterID)

	description := fmt.Sprintf("Manual backup - %s", start.UTC().Format(time.RFC3339))
	rec, err := o.store.CreateFullBackup(ctx, requesterID, description)
	o.metrics.BackupFinished(domain.BackupKindFull, err, o.clock.Now().Sub(start))
	if err != nil {
		o.logger.Errorf("Failed to create manual backup for %s: %v", requesterID, err)
		return domain.BackupRecord{}, &domain.BackupCreationError{Kind: domain.BackupKindFull, Err: err}
	}

	o.logger.Infof("Manual backup completed: %s (%s)", rec.Name, humanize.IBytes(uint64(max(rec.SizeBytes, 0))))
	return rec, nil
}

// RunIncremental captures the changes of one window.
func (o *Orchestrator) RunIncremental(ctx context.Context) error {
	start := o.clock.Now()
	windowStart := o.windowStart(ctx, start)
	o.logger.Infof("Starting scheduled incremental backup (since %s)...", windowStart.UTC().Format(time.RFC3339))

	rec, err := o.store.CreateIncrementalBackup(ctx, o.cfg.Requester, windowStart)
	o.metrics.BackupFinished(domain.BackupKindIncremental, err, o.clock.Now().Sub(start))
	if err != nil {
		return o.failed(ctx, domain.BackupKindIncremental, err)
	}

	o.succeeded(domain.BackupKindIncremental, rec)

	if o.cfg.WindowMode == WindowWatermark && o.watermarks != nil {
		if err := o.watermarks.SaveWatermark(ctx, start); err != nil {
			o.logger.Errorf("Failed to store incremental watermark: %v", err)
		}
	}

	return nil
}

func (o *Orchestrator) windowStart(ctx context.Context, now time.Time) time.Time {
	fallback := now.Add(-o.cfg.Lookback)
	if o.cfg.WindowMode != WindowWatermark || o.watermarks == nil {
		return fallback
	}

	mark, ok, err := o.watermarks.Watermark(ctx)
	if err != nil {
		o.logger.Warnf("Failed to read incremental watermark, using %s lookback: %v", o.cfg.Lookback, err)
		return fallback
	}
	if !ok || mark.After(now) {
		return fallback
	}
	return mark
}

func (o *Orchestrator) succeeded(kind domain.BackupKind, rec domain.BackupRecord) {
	o.mu.Lock()
	o.health.LastSuccess[kind] = o.clock.Now()
	o.mu.Unlock()

	o.logger.Infof("%s backup completed: %s (%s)", kindTitle(kind), rec.Name, humanize.IBytes(uint64(max(rec.SizeBytes, 0))))
}

func (o *Orchestrator) failed(ctx context.Context, kind domain.BackupKind, err error) error {
	cerr := &domain.BackupCreationError{Kind: kind, Err: err}

	o.mu.Lock()
	o.health.LastFailureAt = o.clock.Now()
	o.health.LastFailure = cerr.Error()
	o.mu.Unlock()

	o.logger.Errorf("Failed to create scheduled %s backup: %v", kind, err)

	if o.notifier != nil {
		msg := fmt.Sprintf("Scheduled %s backup failed: %v", kind, err)
		if nerr := o.notifier.Notify(ctx, msg); nerr != nil {
			o.logger.Warnf("Failed to send failure notification: %v", nerr)
		}
	}

	return cerr
}

// Health returns a copy of the latest run outcomes.
func (o *Orchestrator) Health() Health {
	o.mu.Lock()
	defer o.mu.Unlock()

	h := Health{
		LastSuccess:   make(map[domain.BackupKind]time.Time, len(o.health.LastSuccess)),
		LastFailureAt: o.health.LastFailureAt,
		LastFailure:   o.health.LastFailure,
	}
	for k, v := range o.health.LastSuccess {
		h.LastSuccess[k] = v
	}
	return h
}

func kindTitle(kind domain.BackupKind) string {
	if kind == domain.BackupKindIncremental {
		return "Incremental"
	}
	return "Full"
}
