package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/backupkeeper/internal/domain"
)

type staticLifecycle struct {
	state  domain.SchedulerState
	timers []string
}

func (l staticLifecycle) State() domain.SchedulerState { return l.state }
func (l staticLifecycle) ActiveTimers() []string       { return l.timers }

type staticHealth Health

func (h staticHealth) Health() Health { return Health(h) }

func TestStatusReporter(t *testing.T) {
	Convey("Given a StatusReporter", t, func() {
		ctx := context.Background()
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		clk := testclock.NewClock(now)
		store := newFakeStore(clk)
		repo := newFakeRepo()
		configs := NewScheduleConfigStore(repo, DefaultScheduleConfig, nopLogger)
		lifecycle := staticLifecycle{
			state:  domain.StateActiveFullPlusIncremental,
			timers: []string{TimerFull, TimerIncremental},
		}
		reporter := NewStatusReporter(configs, store, lifecycle, nil)

		Convey("When no backup exists", func() {
			status, err := reporter.Status(ctx)

			Convey("Both timestamps should be unknown", func() {
				So(err, ShouldBeNil)
				So(status.LastBackupAt, ShouldBeNil)
				So(status.NextBackupAt, ShouldBeNil)
				So(status.TotalBackupCount, ShouldEqual, 0)
				So(status.Enabled, ShouldBeTrue)
				So(status.FrequencyHours, ShouldEqual, 24)
				So(status.State, ShouldEqual, domain.StateActiveFullPlusIncremental)
				So(status.ActiveTimers, ShouldResemble, []string{TimerFull, TimerIncremental})
			})
		})

		Convey("When full and incremental backups exist", func() {
			store.add(domain.BackupKindFull, now.Add(-30*time.Hour))
			newest := store.add(domain.BackupKindFull, now.Add(-6*time.Hour))
			store.add(domain.BackupKindIncremental, now.Add(-time.Hour))

			status, err := reporter.Status(ctx)

			Convey("The newest full backup should drive both timestamps", func() {
				So(err, ShouldBeNil)
				So(status.TotalBackupCount, ShouldEqual, 3)
				So(*status.LastBackupAt, ShouldEqual, newest.CreatedAt)
				So(*status.NextBackupAt, ShouldEqual, newest.CreatedAt.Add(24*time.Hour))
			})
		})

		Convey("When only incremental backups exist", func() {
			store.add(domain.BackupKindIncremental, now.Add(-time.Hour))

			status, err := reporter.Status(ctx)

			Convey("Both timestamps should still be unknown", func() {
				So(err, ShouldBeNil)
				So(status.TotalBackupCount, ShouldEqual, 1)
				So(status.LastBackupAt, ShouldBeNil)
				So(status.NextBackupAt, ShouldBeNil)
			})
		})

		Convey("When automatic backups are disabled", func() {
			repo.set(KeyAutoEnabled, "false")
			store.add(domain.BackupKindFull, now.Add(-time.Hour))

			status, err := reporter.Status(ctx)

			Convey("The next backup should be unknown", func() {
				So(err, ShouldBeNil)
				So(status.Enabled, ShouldBeFalse)
				So(status.LastBackupAt, ShouldNotBeNil)
				So(status.NextBackupAt, ShouldBeNil)
			})
		})

		Convey("When the store cannot list", func() {
			store.listErr = errors.New("catalog locked")

			_, err := reporter.Status(ctx)

			Convey("It should return the error", func() {
				So(errors.Is(err, store.listErr), ShouldBeTrue)
			})
		})

		Convey("With run health", func() {
			failedAt := now.Add(-2 * time.Hour)
			reporter := NewStatusReporter(configs, store, lifecycle, staticHealth{
				LastSuccess:   map[domain.BackupKind]time.Time{domain.BackupKindFull: now.Add(-3 * time.Hour)},
				LastFailureAt: failedAt,
				LastFailure:   "create full backup: disk full",
			})

			status, err := reporter.Status(ctx)

			Convey("It should surface the last failure", func() {
				So(err, ShouldBeNil)
				So(*status.LastFailureAt, ShouldEqual, failedAt)
				So(status.LastFailure, ShouldEqual, "create full backup: disk full")
				So(status.LastSuccess[domain.BackupKindFull], ShouldEqual, now.Add(-3*time.Hour))
			})
		})
	})
}
