// Package scheduler keeps a table of named timers on top of robfig/cron.
// A name maps to at most one live cron entry; arming a name that is already
// armed replaces the old entry.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

type timer struct {
	id       cron.EntryID
	interval time.Duration
	// once is the schedule of a one-shot; nil for recurring timers.
	once *onceSchedule
}

type Scheduler struct {
	cron   *cron.Cron
	mu     sync.Mutex
	timers map[string]timer
}

// New builds a scheduler whose jobs recover from panics and never overlap
// with a still-running previous tick of the same entry.
func New(logger cron.Logger) *Scheduler {
	if logger == nil {
		logger = cron.DiscardLogger
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		timers: make(map[string]timer),
	}
}

// Every arms a recurring timer. Intervals are rounded down to whole seconds
// by cron.Every.
func (s *Scheduler) Every(name string, interval time.Duration, job func()) error {
	if interval <= 0 {
		return fmt.Errorf("timer %s: interval must be positive, got %s", name, interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked(name)
	id := s.cron.Schedule(cron.Every(interval), cron.FuncJob(job))
	s.timers[name] = timer{id: id, interval: interval}
	return nil
}

// Once arms a one-shot timer that fires after delay and then drops out of
// the table on its own.
func (s *Scheduler) Once(name string, delay time.Duration, job func()) error {
	if delay < 0 {
		return fmt.Errorf("timer %s: delay must not be negative, got %s", name, delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked(name)

	// The job may start before Schedule returns, so it identifies its
	// arming by the schedule value rather than the entry id.
	sched := newOnceSchedule(time.Now().Add(delay))
	id := s.cron.Schedule(sched, cron.FuncJob(func() {
		s.release(name, sched)
		job()
	}))
	s.timers[name] = timer{id: id, interval: delay, once: sched}
	return nil
}

// release forgets a fired one-shot, unless the name has been re-armed since.
// It blocks until the arming Once has recorded the entry.
func (s *Scheduler) release(name string, sched *onceSchedule) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[name]; ok && t.once == sched {
		s.cron.Remove(t.id)
		delete(s.timers, name)
	}
}

func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(name)
}

func (s *Scheduler) cancelLocked(name string) bool {
	t, ok := s.timers[name]
	if !ok {
		return false
	}
	s.cron.Remove(t.id)
	delete(s.timers, name)
	return true
}

// CancelAll removes every live timer and returns their names.
func (s *Scheduler) CancelAll() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.timers))
	for name, t := range s.timers {
		s.cron.Remove(t.id)
		names = append(names, name)
	}
	s.timers = make(map[string]timer)
	sort.Strings(names)
	return names
}

// Active returns the names of live timers in sorted order.
func (s *Scheduler) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.timers))
	for name := range s.timers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Interval returns the period of a recurring timer or the delay of a one-shot.
func (s *Scheduler) Interval(name string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[name]
	return t.interval, ok
}

// Next returns when the named timer fires next. It is zero until the
// scheduler has been started.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	t, ok := s.timers[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(t.id).Next, true
}

// Len reports how many cron entries exist, live or spent.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts dispatch and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running jobs: %w", ctx.Err())
	}
}

// onceSchedule yields its time on the first query and never again.
type onceSchedule struct {
	at    time.Time
	fired atomic.Bool
}

func newOnceSchedule(at time.Time) *onceSchedule {
	return &onceSchedule{at: at}
}

func (o *onceSchedule) Next(t time.Time) time.Time {
	if o.fired.Swap(true) {
		return time.Time{}
	}
	if o.at.Before(t) {
		return t
	}
	return o.at
}
