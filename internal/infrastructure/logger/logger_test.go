package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	Convey("Given the logger package", t, func() {
		tempDir, err := os.MkdirTemp("", "logger_test")
		So(err, ShouldBeNil)
		Reset(func() { os.RemoveAll(tempDir) })

		Convey("When only the console sink is configured", func() {
			log, err := New(Options{Level: "warn"})

			So(err, ShouldBeNil)
			So(log.Desugar().Core().Enabled(zapcore.InfoLevel), ShouldBeFalse)
			So(log.Desugar().Core().Enabled(zapcore.WarnLevel), ShouldBeTrue)
		})

		Convey("When the level is unknown", func() {
			log, err := New(Options{Level: "loud"})

			So(err, ShouldBeNil)
			So(log.Desugar().Core().Enabled(zapcore.DebugLevel), ShouldBeFalse)
			So(log.Desugar().Core().Enabled(zapcore.InfoLevel), ShouldBeTrue)
		})

		Convey("When a log file is configured", func() {
			logFile := filepath.Join(tempDir, "nested", "keeper.log")
			log, err := New(Options{Level: "debug", File: logFile})
			So(err, ShouldBeNil)

			log.Named("retention").Infof("deleted %d backups", 2)
			log.Close()

			Convey("It should write JSON entries to it", func() {
				data, err := os.ReadFile(logFile)
				So(err, ShouldBeNil)
				So(string(data), ShouldContainSubstring, `"msg":"deleted 2 backups"`)
				So(string(data), ShouldContainSubstring, `"logger":"retention"`)
				So(string(data), ShouldContainSubstring, `"level":"INFO"`)
			})
		})

		Convey("When the log directory cannot be created", func() {
			blocker := filepath.Join(tempDir, "file")
			So(os.WriteFile(blocker, nil, 0644), ShouldBeNil)

			log, err := New(Options{File: filepath.Join(blocker, "keeper.log")})

			So(log, ShouldBeNil)
			So(err.Error(), ShouldContainSubstring, "failed to create log directory")
		})
	})
}

func TestRotator(t *testing.T) {
	Convey("Given rotation options", t, func() {
		Convey("Zero values should use the defaults", func() {
			r := Options{File: "keeper.log"}.rotator()
			So(r.MaxSize, ShouldEqual, 100)
			So(r.MaxBackups, ShouldEqual, 3)
			So(r.MaxAge, ShouldEqual, 28)
		})

		Convey("Explicit values should be kept", func() {
			r := Options{File: "keeper.log", MaxSizeMB: 10, MaxBackups: 1, MaxAgeDays: 7, Compress: true}.rotator()
			So(r.MaxSize, ShouldEqual, 10)
			So(r.MaxBackups, ShouldEqual, 1)
			So(r.MaxAge, ShouldEqual, 7)
			So(r.Compress, ShouldBeTrue)
		})
	})
}

func TestCron(t *testing.T) {
	Convey("Given a logger over an observed core", t, func() {
		core, logs := observer.New(zapcore.DebugLevel)
		cl := FromCore(core).Cron()

		Convey("Info should be demoted to debug", func() {
			cl.Info("skip", "entry", 3)

			entries := logs.All()
			So(entries, ShouldHaveLength, 1)
			So(entries[0].Level, ShouldEqual, zapcore.DebugLevel)
			So(entries[0].LoggerName, ShouldEqual, "cron")
			So(entries[0].ContextMap()["entry"], ShouldEqual, int64(3))
		})

		Convey("Error should carry the error field", func() {
			cl.Error(errors.New("boom"), "panic, recovering", "entry", 1)

			entries := logs.FilterLevelExact(zapcore.ErrorLevel).All()
			So(entries, ShouldHaveLength, 1)
			So(entries[0].ContextMap()["error"], ShouldEqual, "boom")
			So(strings.HasPrefix(entries[0].Message, "panic"), ShouldBeTrue)
		})
	})
}
