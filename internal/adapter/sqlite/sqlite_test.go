package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/backupkeeper/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "catalog.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestConfigRepository(t *testing.T) {
	Convey("Given a ConfigRepository on a fresh database", t, func() {
		ctx := context.Background()
		repo := NewConfigRepository(openTestDB(t))

		Convey("When nothing was written", func() {
			values, err := repo.GetSystemConfig(ctx)

			Convey("It should return an empty map", func() {
				So(err, ShouldBeNil)
				So(values, ShouldBeEmpty)
			})
		})

		Convey("When entries are upserted twice", func() {
			err := repo.UpsertSystemConfig(ctx,
				domain.SystemConfigEntry{Key: "backup.frequency_hours", Value: "24", Type: "number", Category: "backup"},
				domain.SystemConfigEntry{Key: "backup.auto_enabled", Value: "true", Type: "boolean", Category: "backup"},
			)
			So(err, ShouldBeNil)
			err = repo.UpsertSystemConfig(ctx,
				domain.SystemConfigEntry{Key: "backup.frequency_hours", Value: "4", Type: "number", Category: "backup"},
			)
			So(err, ShouldBeNil)

			values, err := repo.GetSystemConfig(ctx)

			Convey("The latest value should win", func() {
				So(err, ShouldBeNil)
				So(values, ShouldHaveLength, 2)
				So(values["backup.frequency_hours"], ShouldResemble, domain.SystemConfigValue{Value: "4", Type: "number"})
				So(values["backup.auto_enabled"], ShouldResemble, domain.SystemConfigValue{Value: "true", Type: "boolean"})
			})
		})

		Convey("When no entries are given", func() {
			Convey("It should be a no-op", func() {
				So(repo.UpsertSystemConfig(ctx), ShouldBeNil)
			})
		})
	})
}

func TestCatalog(t *testing.T) {
	Convey("Given a Catalog on a fresh database", t, func() {
		ctx := context.Background()
		catalog := NewCatalog(openTestDB(t))
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		window := base.Add(-6 * time.Hour)

		older := domain.BackupRecord{
			ID: "a", Name: "full-a.tar.gz", Kind: domain.BackupKindFull,
			CreatedAt: base, SizeBytes: 2048, Description: "first", RequestedBy: "system-scheduler",
		}
		newer := domain.BackupRecord{
			ID: "b", Name: "incremental-b.tar.gz", Kind: domain.BackupKindIncremental,
			CreatedAt: base.Add(time.Hour), SizeBytes: 512, WindowStart: &window, RequestedBy: "system-scheduler",
		}

		So(catalog.Insert(ctx, older), ShouldBeNil)
		So(catalog.Insert(ctx, newer), ShouldBeNil)

		Convey("List method", func() {
			records, err := catalog.List(ctx)

			Convey("It should return newest first with every field", func() {
				So(err, ShouldBeNil)
				So(records, ShouldHaveLength, 2)
				So(records[0].ID, ShouldEqual, "b")
				So(records[0].WindowStart, ShouldNotBeNil)
				So(records[0].WindowStart.Equal(window), ShouldBeTrue)
				So(records[1], ShouldResemble, older)
			})
		})

		Convey("Get method", func() {
			Convey("When the record exists", func() {
				rec, err := catalog.Get(ctx, "a")
				So(err, ShouldBeNil)
				So(rec, ShouldResemble, older)
			})

			Convey("When it does not", func() {
				_, err := catalog.Get(ctx, "missing")
				So(err, ShouldEqual, domain.ErrBackupNotFound)
			})
		})

		Convey("Delete method", func() {
			Convey("When the record exists", func() {
				err := catalog.Delete(ctx, "a", "system-cleanup", base.Add(48*time.Hour))

				Convey("It should remove it and audit both events", func() {
					So(err, ShouldBeNil)
					_, err := catalog.Get(ctx, "a")
					So(err, ShouldEqual, domain.ErrBackupNotFound)

					log, err := catalog.AuditLog(ctx, "a")
					So(err, ShouldBeNil)
					So(log, ShouldHaveLength, 2)
					So(log[0].Action, ShouldEqual, ActionCreate)
					So(log[0].RequestedBy, ShouldEqual, "system-scheduler")
					So(log[1].Action, ShouldEqual, ActionDelete)
					So(log[1].RequestedBy, ShouldEqual, "system-cleanup")
					So(log[1].At.Equal(base.Add(48*time.Hour)), ShouldBeTrue)
				})
			})

			Convey("When the record is already gone", func() {
				err := catalog.Delete(ctx, "missing", "system-cleanup", base)

				Convey("It should return ErrBackupNotFound and audit nothing", func() {
					So(err, ShouldEqual, domain.ErrBackupNotFound)
					log, err := catalog.AuditLog(ctx, "missing")
					So(err, ShouldBeNil)
					So(log, ShouldBeEmpty)
				})
			})
		})
	})
}
