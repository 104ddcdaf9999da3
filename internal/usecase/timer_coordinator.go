package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/semmidev/backupkeeper/internal/domain"
)

const (
	TimerFull        = "full"
	TimerIncremental = "incremental"
	TimerWarmup      = "full-warmup"

	DefaultWarmupDelay         = 5 * time.Second
	DefaultIncrementalInterval = 6 * time.Hour
)

// Timers is the named-timer table. Arming a name replaces any live timer
// with that name.
type Timers interface {
	Every(name string, interval time.Duration, job func()) error
	Once(name string, delay time.Duration, job func()) error
	CancelAll() []string
	Active() []string
	Interval(name string) (time.Duration, bool)
	Stop(ctx context.Context) error
}

type ScheduleReader interface {
	Get(ctx context.Context) (domain.ScheduleConfig, error)
}

type Runner interface {
	RunFull(ctx context.Context) error
	RunIncremental(ctx context.Context) error
}

type TimerConfig struct {
	WarmupDelay         time.Duration
	IncrementalInterval time.Duration
}

// TimerCoordinator arms and tears down the backup timers. One mutex guards
// the timer table, the initialized flag and the lifecycle state; backup work
// always runs outside it.
type TimerCoordinator struct {
	timers  Timers
	configs ScheduleReader
	runner  Runner
	logger  Logger
	metrics Metrics
	cfg     TimerConfig

	// ctx is handed to timer callbacks and cancelled only on Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	initialized bool
	closed      bool
	state       domain.SchedulerState
	generation  uint64
}

func NewTimerCoordinator(
	timers Timers,
	configs ScheduleReader,
	runner Runner,
	logger Logger,
	metrics Metrics,
	cfg TimerConfig,
) *TimerCoordinator {
	if cfg.WarmupDelay < 0 {
		cfg.WarmupDelay = DefaultWarmupDelay
	}
	if cfg.IncrementalInterval <= 0 {
		cfg.IncrementalInterval = DefaultIncrementalInterval
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TimerCoordinator{
		timers:  timers,
		configs: configs,
		runner:  runner,
		logger:  logger,
		metrics: metrics,
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		state:   domain.StateUninitialized,
	}
}

// Init loads the persisted schedule once. Later calls return without side
// effects. If the config repository is unreachable nothing is armed and the
// coordinator stays uninitialized.
func (c *TimerCoordinator) Init(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrSchedulerClosed
	}
	if c.initialized {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.logger.Infof("Initializing automatic backup system...")

	cfg, err := c.configs.Get(ctx)
	if err != nil {
		ierr := &domain.InitializationError{Err: err}
		c.logger.Errorf("Failed to initialize: %v", ierr)
		return ierr
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return domain.ErrSchedulerClosed
	}
	if c.initialized {
		return nil
	}

	if err := c.applyLocked(cfg); err != nil {
		c.logger.Errorf("Failed to arm timers: %v", err)
		return &domain.InitializationError{Err: err}
	}
	c.initialized = true
	return nil
}

// Start re-arms every timer for the given frequency.
func (c *TimerCoordinator) Start(frequencyHours int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return domain.ErrSchedulerClosed
	}
	return c.startLocked(frequencyHours)
}

// Stop cancels every live timer. In-flight runs finish on their own.
func (c *TimerCoordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// Apply makes the armed timers match cfg and marks the coordinator
// initialized.
func (c *TimerCoordinator) Apply(cfg domain.ScheduleConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return domain.ErrSchedulerClosed
	}
	if err := c.applyLocked(cfg); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

func (c *TimerCoordinator) applyLocked(cfg domain.ScheduleConfig) error {
	if !cfg.AutoEnabled {
		c.stopLocked()
		c.logger.Infof("Automatic backups disabled")
		return nil
	}
	if err := c.startLocked(cfg.FrequencyHours); err != nil {
		return err
	}
	c.logger.Infof("Automatic backups enabled - every %d hours", cfg.FrequencyHours)
	return nil
}

func (c *TimerCoordinator) startLocked(frequencyHours int) error {
	if frequencyHours <= 0 {
		return domain.ErrInvalidFrequency
	}

	c.stopLocked()
	c.generation++
	gen := c.generation

	frequency := time.Duration(frequencyHours) * time.Hour

	if err := c.timers.Once(TimerWarmup, c.cfg.WarmupDelay, c.fire(gen, TimerWarmup, c.runner.RunFull)); err != nil {
		c.stopLocked()
		return err
	}
	if err := c.timers.Every(TimerFull, frequency, c.fire(gen, TimerFull, c.runner.RunFull)); err != nil {
		c.stopLocked()
		return err
	}
	c.logger.Infof("Scheduled full backups every %d hours", frequencyHours)

	c.state = domain.StateActiveFullOnly
	if frequency > c.cfg.IncrementalInterval {
		if err := c.timers.Every(TimerIncremental, c.cfg.IncrementalInterval, c.fire(gen, TimerIncremental, c.runner.RunIncremental)); err != nil {
			c.stopLocked()
			return err
		}
		c.state = domain.StateActiveFullPlusIncremental
		c.logger.Infof("Scheduled incremental backups every %s", c.cfg.IncrementalInterval)
	}

	c.metrics.ActiveTimers(len(c.timers.Active()))
	return nil
}

func (c *TimerCoordinator) stopLocked() {
	for _, name := range c.timers.CancelAll() {
		c.logger.Infof("Stopped %s schedule", name)
	}
	// Callbacks already dispatched under an older generation become no-ops.
	c.generation++
	c.state = domain.StateDisabled
	c.metrics.ActiveTimers(0)
}

// fire builds a timer callback bound to the arming generation gen.
func (c *TimerCoordinator) fire(gen uint64, name string, run func(context.Context) error) func() {
	return func() {
		if !c.current(gen) {
			c.logger.Debugf("[%s] tick from a cancelled schedule skipped", name)
			return
		}
		if name == TimerWarmup {
			c.warmedUp(gen)
		}
		supervise(c.ctx, c.logger, name, run)
	}
}

// warmedUp refreshes the timer gauge once the one-shot has left the table.
func (c *TimerCoordinator) warmedUp(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == gen {
		c.metrics.ActiveTimers(len(c.timers.Active()))
	}
}

func (c *TimerCoordinator) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.generation == gen && c.state.Active()
}

// Close cancels every timer for good, then waits for running callbacks
// until ctx is done. Whatever is still running after that sees its context
// cancelled.
func (c *TimerCoordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.stopLocked()
	c.closed = true
	c.initialized = false
	c.mu.Unlock()

	defer c.cancel()
	return c.timers.Stop(ctx)
}

func (c *TimerCoordinator) State() domain.SchedulerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *TimerCoordinator) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *TimerCoordinator) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

func (c *TimerCoordinator) ActiveTimers() []string {
	return c.timers.Active()
}
