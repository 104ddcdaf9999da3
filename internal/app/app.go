package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/semmidev/backupkeeper/internal/adapter/backupstore"
	"github.com/semmidev/backupkeeper/internal/adapter/compressor"
	"github.com/semmidev/backupkeeper/internal/adapter/database"
	"github.com/semmidev/backupkeeper/internal/adapter/sqlite"
	"github.com/semmidev/backupkeeper/internal/adapter/storage"
	"github.com/semmidev/backupkeeper/internal/api"
	"github.com/semmidev/backupkeeper/internal/config"
	"github.com/semmidev/backupkeeper/internal/domain"
	"github.com/semmidev/backupkeeper/internal/infrastructure/logger"
	"github.com/semmidev/backupkeeper/internal/infrastructure/metrics"
	"github.com/semmidev/backupkeeper/internal/infrastructure/scheduler"
	"github.com/semmidev/backupkeeper/internal/usecase"
)

const metricsNamespace = "backupkeeper"

type App struct {
	config    *config.Config
	logger    *logger.Logger
	db        *sqlite.DB
	timers    *scheduler.Scheduler
	scheduler *usecase.Scheduler
	server    *http.Server
	mirrors   []backupstore.Mirror
	sources   []domain.Source
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log, err := logger.New(logger.Options{
		Level:      cfg.App.LogLevel,
		File:       cfg.App.LogFile,
		MaxSizeMB:  cfg.App.LogMaxSizeMB,
		MaxBackups: cfg.App.LogMaxBackups,
		MaxAgeDays: cfg.App.LogMaxAgeDays,
		Compress:   cfg.App.LogCompress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.Infof("Starting %s", cfg.App.Name)

	db, err := sqlite.Open(ctx, cfg.Catalog.Path)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	log.Infof("✓ Catalog opened at %s", db.Path())

	localStorage, err := storage.NewLocal(cfg.Backup.LocalPath)
	if err != nil {
		_ = db.Close()
		log.Close()
		return nil, fmt.Errorf("failed to initialize local storage: %w", err)
	}

	mirrors, notifier := initializeMirrors(ctx, cfg, log)
	sources := initializeSources(ctx, cfg, log)
	if len(sources) == 0 {
		log.Warnf("No enabled sources configured; scheduled backups will fail until one is added")
	}

	clk := clock.WallClock
	store := backupstore.New(
		sources,
		compressor.NewTar(cfg.Backup.Compress),
		localStorage,
		mirrors,
		sqlite.NewCatalog(db),
		clk,
		log.Named("store"),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	timers := scheduler.New(log.Cron())
	sched := usecase.NewScheduler(usecase.Dependencies{
		Store:    store,
		Configs:  sqlite.NewConfigRepository(db),
		Timers:   timers,
		Clock:    clk,
		Logger:   log.Named("scheduler"),
		Metrics:  metrics.New(metricsNamespace, registry),
		Notifier: notifier,
	}, schedulerOptions(cfg))

	var metricsHandler http.Handler
	if cfg.Admin.Metrics {
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}

	server := &http.Server{
		Addr:              cfg.Admin.ListenAddr,
		Handler:           api.NewHandler(sched, metricsHandler, log.Named("api")),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &App{
		config:    cfg,
		logger:    log,
		db:        db,
		timers:    timers,
		scheduler: sched,
		server:    server,
		mirrors:   mirrors,
		sources:   sources,
	}, nil
}

func schedulerOptions(cfg *config.Config) usecase.Options {
	opts := usecase.DefaultOptions()
	opts.Defaults = domain.ScheduleConfig{
		AutoEnabled:    cfg.Schedule.DefaultEnabled,
		FrequencyHours: cfg.Schedule.DefaultFrequencyHours,
	}
	opts.WarmupDelay = cfg.Schedule.WarmupDelay
	opts.IncrementalInterval = cfg.Schedule.IncrementalInterval
	opts.IncrementalLookback = cfg.Schedule.IncrementalLookback
	opts.WindowMode = usecase.WindowMode(cfg.Schedule.WindowMode)
	opts.Retention = usecase.RetentionPolicy{
		MaxFullBackups:    cfg.Retention.MaxFullBackups,
		IncrementalMaxAge: cfg.Retention.IncrementalMaxAge,
	}
	opts.SchedulerRequester = cfg.Requesters.Scheduler
	opts.CleanupRequester = cfg.Requesters.Cleanup
	opts.ManualRequester = cfg.Requesters.Manual
	return opts
}

// initializeMirrors builds every enabled remote target. A Telegram target
// also becomes the failure notifier.
func initializeMirrors(ctx context.Context, cfg *config.Config, log *logger.Logger) ([]backupstore.Mirror, usecase.Notifier) {
	var (
		mirrors  []backupstore.Mirror
		notifier usecase.Notifier
	)

	for _, targetCfg := range cfg.GetEnabledUploadTargets() {
		var stor domain.Storage

		switch targetCfg.Type {
		case "gdrive":
			gdrive, err := storage.NewGDrive(ctx, &targetCfg)
			if err != nil {
				log.Errorf("Failed to initialize Google Drive: %v", err)
				continue
			}
			stor = gdrive
			log.Infof("✓ Google Drive upload enabled")

		case "s3":
			s3, err := storage.NewS3(ctx, &targetCfg)
			if err != nil {
				log.Errorf("Failed to initialize S3: %v", err)
				continue
			}
			stor = s3
			log.Infof("✓ AWS S3 upload enabled (bucket: %s)", targetCfg.Bucket)

		case "telegram":
			telegram, err := storage.NewTelegram(&targetCfg)
			if err != nil {
				log.Errorf("Failed to initialize Telegram: %v", err)
				continue
			}
			stor = telegram
			if notifier == nil {
				notifier = telegram
			}
			log.Infof("✓ Telegram upload enabled")

		case "local":
			// Local storage is always enabled
			continue

		default:
			log.Warnf("Unknown upload target type: %s", targetCfg.Type)
			continue
		}

		mirrors = append(mirrors, backupstore.Mirror{
			Name:    targetCfg.Type,
			Storage: stor,
		})
	}

	return mirrors, notifier
}

func initializeSources(ctx context.Context, cfg *config.Config, log *logger.Logger) []domain.Source {
	var sources []domain.Source

	for _, srcCfg := range cfg.GetEnabledSources() {
		src, err := database.New(srcCfg)
		if err != nil {
			log.Warnf("Skipping source %s: %v", srcCfg.Name, err)
			continue
		}

		// An unreachable source is still kept; each backup pings it again.
		if err := src.Ping(ctx); err != nil {
			log.Errorf("Failed to connect to %s: %v", srcCfg.Name, err)
		} else {
			log.Infof("✓ Connected to %s (%s)", srcCfg.Name, srcCfg.Type)
		}

		sources = append(sources, src)
	}

	return sources
}

// Run starts the timers, arms the persisted schedule and serves the admin
// API until ctx is cancelled. A failed schedule read is logged and left to
// the next UpdateSchedule.
func (a *App) Run(ctx context.Context) error {
	a.logger.Infof("Application started with %d source(s)", len(a.sources))

	a.timers.Start()
	if err := a.scheduler.Initialize(ctx); err != nil {
		a.logger.Errorf("Automatic backups not started: %v", err)
	} else {
		a.logger.Infof("Backup scheduler initialized (%s)", a.scheduler.State())
	}
	a.logger.Infof("Backup destinations: local + %d remote target(s)", len(a.mirrors))

	errCh := make(chan error, 1)
	go func() {
		a.logger.Infof("Admin API listening on %s", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("admin API: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the timers, waits for running backups, then closes the
// API server and the catalog.
func (a *App) Shutdown() {
	a.logger.Infof("Shutting down application...")

	ctx, cancel := context.WithTimeout(context.Background(), a.config.Admin.ShutdownTimeout)
	defer cancel()

	if err := a.scheduler.Shutdown(ctx); err != nil {
		a.logger.Warnf("Scheduler did not stop cleanly: %v", err)
	}
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Warnf("Failed to shutdown admin API: %v", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warnf("Failed to close catalog: %v", err)
	}

	a.logger.Close()
}
