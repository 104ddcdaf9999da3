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

func TestRetention(t *testing.T) {
	Convey("Given a Retention with the default policy", t, func() {
		ctx := context.Background()
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		clk := testclock.NewClock(now)
		store := newFakeStore(clk)
		metrics := newFakeMetrics()
		retention := NewRetention(store, RetentionPolicy{}, "system-cleanup", clk, nopLogger, metrics)

		Convey("When there are 11 full backups", func() {
			var oldest domain.BackupRecord
			for i := 0; i < 11; i++ {
				rec := store.add(domain.BackupKindFull, now.Add(-time.Duration(i)*24*time.Hour))
				if i == 10 {
					oldest = rec
				}
			}

			report, err := retention.Enforce(ctx)

			Convey("It should delete only the oldest one", func() {
				So(err, ShouldBeNil)
				So(len(report.Deleted), ShouldEqual, 1)
				So(report.Deleted[0].ID, ShouldEqual, oldest.ID)
				So(store.deleted, ShouldResemble, []string{oldest.ID})
				So(store.count(domain.BackupKindFull), ShouldEqual, 10)
				So(metrics.deleted, ShouldEqual, 1)
			})
		})

		Convey("When there are exactly 10 full backups", func() {
			for i := 0; i < 10; i++ {
				store.add(domain.BackupKindFull, now.Add(-time.Duration(i)*time.Hour))
			}

			report, err := retention.Enforce(ctx)

			Convey("It should delete nothing", func() {
				So(err, ShouldBeNil)
				So(report.Deleted, ShouldBeEmpty)
				So(store.deleted, ShouldBeEmpty)
			})
		})

		Convey("When there are incrementals 8 and 3 days old", func() {
			old := store.add(domain.BackupKindIncremental, now.Add(-8*24*time.Hour))
			store.add(domain.BackupKindIncremental, now.Add(-3*24*time.Hour))

			_, err := retention.Enforce(ctx)

			Convey("It should delete only the 8 day old one", func() {
				So(err, ShouldBeNil)
				So(store.deleted, ShouldResemble, []string{old.ID})
				So(store.count(domain.BackupKindIncremental), ShouldEqual, 1)
			})
		})

		Convey("When a recent incremental sits next to 10 full backups", func() {
			for i := 0; i < 10; i++ {
				store.add(domain.BackupKindFull, now.Add(-time.Duration(i)*time.Hour))
			}
			store.add(domain.BackupKindIncremental, now.Add(-time.Hour))

			report, err := retention.Enforce(ctx)

			Convey("It should keep everything", func() {
				So(err, ShouldBeNil)
				So(report.Deleted, ShouldBeEmpty)
			})
		})

		Convey("When one deletion fails", func() {
			for i := 0; i < 12; i++ {
				store.add(domain.BackupKindFull, now.Add(-time.Duration(i)*time.Hour))
			}
			records, _ := store.ListBackups(ctx)
			store.deleteErr[records[10].ID] = errors.New("permission denied")

			report, err := retention.Enforce(ctx)

			Convey("It should keep deleting the other candidates", func() {
				So(err, ShouldBeNil)
				So(len(report.Deleted), ShouldEqual, 1)
				So(report.Deleted[0].ID, ShouldEqual, records[11].ID)
				So(len(report.Failed), ShouldEqual, 1)

				var derr *domain.BackupDeletionError
				So(errors.As(report.Failed[0], &derr), ShouldBeTrue)
				So(derr.ID, ShouldEqual, records[10].ID)
			})
		})

		Convey("When a candidate is already gone", func() {
			for i := 0; i < 11; i++ {
				store.add(domain.BackupKindFull, now.Add(-time.Duration(i)*time.Hour))
			}
			records, _ := store.ListBackups(ctx)
			store.deleteErr[records[10].ID] = domain.ErrBackupNotFound

			report, err := retention.Enforce(ctx)

			Convey("It should not count it as a failure", func() {
				So(err, ShouldBeNil)
				So(report.Failed, ShouldBeEmpty)
				So(report.Deleted, ShouldBeEmpty)
			})
		})

		Convey("When the store cannot list", func() {
			store.listErr = errors.New("catalog locked")

			_, err := retention.Enforce(ctx)

			Convey("It should return the error", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, store.listErr), ShouldBeTrue)
			})
		})

		Convey("Candidates method", func() {
			Convey("With a custom policy", func() {
				retention := NewRetention(store, RetentionPolicy{MaxFullBackups: 2, IncrementalMaxAge: 24 * time.Hour}, "system-cleanup", clk, nopLogger, nil)
				records := []domain.BackupRecord{
					{ID: "f1", Kind: domain.BackupKindFull, CreatedAt: now.Add(-3 * time.Hour)},
					{ID: "f2", Kind: domain.BackupKindFull, CreatedAt: now.Add(-1 * time.Hour)},
					{ID: "f3", Kind: domain.BackupKindFull, CreatedAt: now.Add(-2 * time.Hour)},
					{ID: "i1", Kind: domain.BackupKindIncremental, CreatedAt: now.Add(-25 * time.Hour)},
					{ID: "i2", Kind: domain.BackupKindIncremental, CreatedAt: now.Add(-23 * time.Hour)},
				}

				candidates := retention.Candidates(records, now)

				Convey("It should pick the oldest full and the expired incremental", func() {
					ids := make([]string, 0, len(candidates))
					for _, c := range candidates {
						ids = append(ids, c.ID)
					}
					So(ids, ShouldResemble, []string{"f1", "i1"})
				})
			})
		})
	})
}
