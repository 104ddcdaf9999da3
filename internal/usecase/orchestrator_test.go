package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/backupkeeper/internal/domain"
)

func TestOrchestrator(t *testing.T) {
	Convey("Given an Orchestrator", t, func() {
		ctx := context.Background()
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		clk := testclock.NewClock(now)
		store := newFakeStore(clk)
		repo := newFakeRepo()
		configs := NewScheduleConfigStore(repo, DefaultScheduleConfig, nopLogger)
		cleaner := &fakeCleaner{}
		notifier := &fakeNotifier{}
		metrics := newFakeMetrics()

		newOrchestrator := func(mode WindowMode) *Orchestrator {
			return NewOrchestrator(store, cleaner, configs, notifier, clk, nopLogger, metrics, OrchestratorConfig{
				Requester:  "system-scheduler",
				WindowMode: mode,
			})
		}

		Convey("RunManual method", func() {
			orchestrator := newOrchestrator(WindowFixed)

			Convey("When the backup succeeds", func() {
				rec, err := orchestrator.RunManual(ctx, "user-42")

				Convey("It should be tagged with the caller and skip retention", func() {
					So(err, ShouldBeNil)
					So(rec.Kind, ShouldEqual, domain.BackupKindFull)
					So(store.requesters, ShouldResemble, []string{"user-42"})
					So(store.descriptions[0], ShouldEqual, "Manual backup - 2026-03-01T12:00:00Z")
					So(cleaner.calls, ShouldEqual, 0)
					So(orchestrator.Health().LastSuccess, ShouldBeEmpty)
				})
			})

			Convey("When the backup fails", func() {
				store.createErr = errors.New("dump exited with status 2")
				_, err := orchestrator.RunManual(ctx, "user-42")

				Convey("It should return the error and send no scheduled alert", func() {
					var cerr *domain.BackupCreationError
					So(errors.As(err, &cerr), ShouldBeTrue)
					So(notifier.messages, ShouldBeEmpty)
					So(orchestrator.Health().LastFailureAt.IsZero(), ShouldBeTrue)
					So(metrics.finished[domain.BackupKindFull], ShouldHaveLength, 1)
				})
			})
		})

		Convey("RunFull method", func() {
			orchestrator := newOrchestrator(WindowFixed)

			Convey("When the backup succeeds", func() {
				err := orchestrator.RunFull(ctx)

				Convey("It should create one full backup and then enforce retention", func() {
					So(err, ShouldBeNil)
					So(store.fullCalls, ShouldEqual, 1)
					So(store.requesters, ShouldResemble, []string{"system-scheduler"})
					So(store.descriptions[0], ShouldEqual, "Scheduled automatic backup - 2026-03-01T12:00:00Z")
					So(cleaner.calls, ShouldEqual, 1)
					So(metrics.finished[domain.BackupKindFull], ShouldResemble, []error{nil})

					health := orchestrator.Health()
					So(health.LastSuccess[domain.BackupKindFull], ShouldEqual, now)
					So(health.LastFailureAt.IsZero(), ShouldBeTrue)
				})
			})

			Convey("When retention fails", func() {
				cleaner.err = errors.New("list failed")
				err := orchestrator.RunFull(ctx)

				Convey("The backup should still count as done", func() {
					So(err, ShouldBeNil)
					So(cleaner.calls, ShouldEqual, 1)
				})
			})

			Convey("When the backup fails", func() {
				store.createErr = errors.New("dump exited with status 2")
				err := orchestrator.RunFull(ctx)

				Convey("It should report a BackupCreationError and skip retention", func() {
					var cerr *domain.BackupCreationError
					So(errors.As(err, &cerr), ShouldBeTrue)
					So(cerr.Kind, ShouldEqual, domain.BackupKindFull)
					So(errors.Is(err, store.createErr), ShouldBeTrue)
					So(cleaner.calls, ShouldEqual, 0)
				})

				Convey("It should record and announce the failure", func() {
					health := orchestrator.Health()
					So(health.LastFailureAt, ShouldEqual, now)
					So(health.LastFailure, ShouldContainSubstring, "dump exited with status 2")
					So(len(notifier.messages), ShouldEqual, 1)
					So(strings.HasPrefix(notifier.messages[0], "Scheduled full backup failed"), ShouldBeTrue)
				})
			})
		})

		Convey("RunIncremental method", func() {
			Convey("With fixed windows", func() {
				orchestrator := newOrchestrator(WindowFixed)

				So(orchestrator.RunIncremental(ctx), ShouldBeNil)
				clk.Advance(6 * time.Hour)
				So(orchestrator.RunIncremental(ctx), ShouldBeNil)

				Convey("Every window should start six hours before its run", func() {
					So(store.windows, ShouldHaveLength, 2)
					So(store.windows[0], ShouldEqual, now.Add(-6*time.Hour))
					So(store.windows[1], ShouldEqual, now)
					So(repo.value(KeyIncrementalWatermark), ShouldBeEmpty)
				})
			})

			Convey("With watermark windows", func() {
				orchestrator := newOrchestrator(WindowWatermark)

				So(orchestrator.RunIncremental(ctx), ShouldBeNil)
				clk.Advance(9 * time.Hour)
				So(orchestrator.RunIncremental(ctx), ShouldBeNil)

				Convey("The second window should start where the first ended", func() {
					So(store.windows[0], ShouldEqual, now.Add(-6*time.Hour))
					So(store.windows[1].Equal(now), ShouldBeTrue)
					So(repo.value(KeyIncrementalWatermark), ShouldEqual, now.Add(9*time.Hour).Format(time.RFC3339Nano))
				})
			})

			Convey("With a watermark in the future", func() {
				repo.set(KeyIncrementalWatermark, now.Add(time.Hour).Format(time.RFC3339Nano))
				orchestrator := newOrchestrator(WindowWatermark)

				So(orchestrator.RunIncremental(ctx), ShouldBeNil)

				Convey("It should fall back to the lookback", func() {
					So(store.windows[0], ShouldEqual, now.Add(-6*time.Hour))
				})
			})

			Convey("When the incremental backup fails", func() {
				store.createErr = domain.ErrIncrementalUnsupported
				orchestrator := newOrchestrator(WindowWatermark)

				err := orchestrator.RunIncremental(ctx)

				Convey("It should not move the watermark", func() {
					var cerr *domain.BackupCreationError
					So(errors.As(err, &cerr), ShouldBeTrue)
					So(cerr.Kind, ShouldEqual, domain.BackupKindIncremental)
					So(repo.value(KeyIncrementalWatermark), ShouldBeEmpty)
					So(cleaner.calls, ShouldEqual, 0)
				})
			})
		})
	})
}
