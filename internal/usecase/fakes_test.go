package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/semmidev/backupkeeper/internal/domain"
)

var nopLogger = zap.NewNop().Sugar()

type fakeTimer struct {
	interval time.Duration
	once     bool
	job      func()
}

// fakeTimers keeps the timer table in memory. Jobs only run when a test
// calls fire.
type fakeTimers struct {
	mu       sync.Mutex
	entries  map[string]fakeTimer
	replaced int
	armed    int
	stopped  bool
	stopErr  error
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{entries: make(map[string]fakeTimer)}
}

func (f *fakeTimers) arm(name string, t fakeTimer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.entries[name]; ok {
		f.replaced++
	}
	f.entries[name] = t
	f.armed++
}

func (f *fakeTimers) Every(name string, interval time.Duration, job func()) error {
	if interval <= 0 {
		return fmt.Errorf("timer %s: interval must be positive", name)
	}
	f.arm(name, fakeTimer{interval: interval, job: job})
	return nil
}

func (f *fakeTimers) Once(name string, delay time.Duration, job func()) error {
	f.arm(name, fakeTimer{interval: delay, once: true, job: job})
	return nil
}

func (f *fakeTimers) CancelAll() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.entries))
	for name := range f.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	f.entries = make(map[string]fakeTimer)
	return names
}

func (f *fakeTimers) Active() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.entries))
	for name := range f.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *fakeTimers) Interval(name string) (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.entries[name]
	return t.interval, ok
}

func (f *fakeTimers) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return f.stopErr
}

// job returns the callback armed under name so a test can keep it after
// the timer is cancelled.
func (f *fakeTimers) job(name string) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[name].job
}

func (f *fakeTimers) fire(name string) bool {
	f.mu.Lock()
	t, ok := f.entries[name]
	if ok && t.once {
		delete(f.entries, name)
	}
	f.mu.Unlock()
	if !ok {
		return false
	}
	t.job()
	return true
}

type fakeStore struct {
	mu        sync.Mutex
	clock     clock.Clock
	records   []domain.BackupRecord
	seq       int
	createErr error
	listErr   error
	deleteErr map[string]error
	panicOn   bool

	fullCalls    int
	incCalls     int
	descriptions []string
	requesters   []string
	windows      []time.Time
	deleted      []string
}

func newFakeStore(clk clock.Clock) *fakeStore {
	return &fakeStore{clock: clk, deleteErr: make(map[string]error)}
}

func (s *fakeStore) add(kind domain.BackupKind, createdAt time.Time) domain.BackupRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	rec := domain.BackupRecord{
		ID:        fmt.Sprintf("b-%03d", s.seq),
		Name:      fmt.Sprintf("%s-%03d", kind, s.seq),
		Kind:      kind,
		CreatedAt: createdAt,
		SizeBytes: 1024,
	}
	s.records = append(s.records, rec)
	return rec
}

func (s *fakeStore) CreateFullBackup(ctx context.Context, requesterID, description string) (domain.BackupRecord, error) {
	s.mu.Lock()
	s.fullCalls++
	s.descriptions = append(s.descriptions, description)
	s.requesters = append(s.requesters, requesterID)
	err := s.createErr
	panicOn := s.panicOn
	s.mu.Unlock()

	if panicOn {
		panic("store exploded")
	}
	if err != nil {
		return domain.BackupRecord{}, err
	}
	return s.add(domain.BackupKindFull, s.clock.Now()), nil
}

func (s *fakeStore) CreateIncrementalBackup(ctx context.Context, requesterID string, windowStart time.Time) (domain.BackupRecord, error) {
	s.mu.Lock()
	s.incCalls++
	s.windows = append(s.windows, windowStart)
	s.requesters = append(s.requesters, requesterID)
	err := s.createErr
	s.mu.Unlock()

	if err != nil {
		return domain.BackupRecord{}, err
	}
	rec := s.add(domain.BackupKindIncremental, s.clock.Now())
	rec.WindowStart = &windowStart
	return rec, nil
}

func (s *fakeStore) ListBackups(ctx context.Context) ([]domain.BackupRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]domain.BackupRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *fakeStore) DeleteBackup(ctx context.Context, id, requesterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.deleteErr[id]; ok {
		return err
	}
	for i, rec := range s.records {
		if rec.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			s.deleted = append(s.deleted, id)
			return nil
		}
	}
	return domain.ErrBackupNotFound
}

func (s *fakeStore) count(kind domain.BackupKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(domain.FilterKind(s.records, kind))
}

type fakeRepo struct {
	mu        sync.Mutex
	values    map[string]domain.SystemConfigValue
	getErr    error
	upsertErr error
	gets      int
	upserts   int
	entries   []domain.SystemConfigEntry
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{values: make(map[string]domain.SystemConfigValue)}
}

func (r *fakeRepo) set(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = domain.SystemConfigValue{Value: value, Type: "string"}
}

func (r *fakeRepo) GetSystemConfig(ctx context.Context) (map[string]domain.SystemConfigValue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	if r.getErr != nil {
		return nil, r.getErr
	}
	out := make(map[string]domain.SystemConfigValue, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out, nil
}

func (r *fakeRepo) UpsertSystemConfig(ctx context.Context, entries ...domain.SystemConfigEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	if r.upsertErr != nil {
		return r.upsertErr
	}
	for _, e := range entries {
		r.values[e.Key] = domain.SystemConfigValue{Value: e.Value, Type: e.Type}
		r.entries = append(r.entries, e)
	}
	return nil
}

func (r *fakeRepo) value(key string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.values[key].Value
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Notify(ctx context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

type fakeCleaner struct {
	calls int
	err   error
}

func (c *fakeCleaner) Enforce(ctx context.Context) (RetentionReport, error) {
	c.calls++
	return RetentionReport{}, c.err
}

type fakeMetrics struct {
	mu       sync.Mutex
	finished map[domain.BackupKind][]error
	deleted  int
	timers   int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{finished: make(map[domain.BackupKind][]error)}
}

func (m *fakeMetrics) BackupFinished(kind domain.BackupKind, err error, took time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished[kind] = append(m.finished[kind], err)
}

func (m *fakeMetrics) RetentionDeleted(kind domain.BackupKind, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		m.deleted++
	}
}

func (m *fakeMetrics) ActiveTimers(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers = n
}
