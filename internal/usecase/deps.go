package usecase

import (
	"context"
	"time"

	"github.com/semmidev/backupkeeper/internal/domain"
)

type Logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

// Metrics receives scheduler events. A nil Metrics is replaced by a no-op.
type Metrics interface {
	BackupFinished(kind domain.BackupKind, err error, took time.Duration)
	RetentionDeleted(kind domain.BackupKind, err error)
	ActiveTimers(n int)
}

// Notifier announces scheduled backup failures to a human.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

type noopMetrics struct{}

func (noopMetrics) BackupFinished(domain.BackupKind, error, time.Duration) {}
func (noopMetrics) RetentionDeleted(domain.BackupKind, error)              {}
func (noopMetrics) ActiveTimers(int)                                       {}
