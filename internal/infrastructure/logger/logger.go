package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the console sink and the optional rotating file sink.
// Zero rotation values fall back to 100MB, 3 backups, 28 days.
type Options struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type Logger struct {
	*zap.SugaredLogger
}

func New(opts Options) (*Logger, error) {
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(os.Stdout), level),
	}
	if opts.File != "" {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(opts.rotator()),
			level,
		))
	}

	return FromCore(zapcore.NewTee(cores...)), nil
}

func (o Options) rotator() *lumberjack.Logger {
	r := &lumberjack.Logger{
		Filename:   o.File,
		MaxSize:    o.MaxSizeMB,
		MaxBackups: o.MaxBackups,
		MaxAge:     o.MaxAgeDays,
		Compress:   o.Compress,
	}
	if r.MaxSize <= 0 {
		r.MaxSize = 100
	}
	if r.MaxBackups <= 0 {
		r.MaxBackups = 3
	}
	if r.MaxAge <= 0 {
		r.MaxAge = 28
	}
	return r
}

// FromCore wraps an existing core with caller info and error stacktraces.
func FromCore(core zapcore.Core) *Logger {
	return &Logger{zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)).Sugar()}
}

func Nop() *Logger {
	return &Logger{zap.NewNop().Sugar()}
}

// Named returns a child logger whose entries carry the component name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{l.SugaredLogger.Named(name)}
}

// Cron adapts the logger to robfig/cron. Routine cron chatter goes to
// debug; recovered panics go to error.
func (l *Logger) Cron() cron.Logger {
	return cronLogger{l.SugaredLogger.Named("cron").WithOptions(zap.AddCallerSkip(1))}
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.s.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

func (l *Logger) Close() {
	_ = l.Sync()
}
