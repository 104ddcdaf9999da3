package domain

import (
	"errors"
	"fmt"
)

var (
	ErrBackupNotFound         = errors.New("backup not found")
	ErrInvalidFrequency       = errors.New("frequency hours must be greater than zero")
	ErrSchedulerClosed        = errors.New("scheduler is shut down")
	ErrIncrementalUnsupported = errors.New("source does not support incremental capture")
	ErrReservedRequester      = errors.New("requester id is reserved for system jobs")
)

// BackupCreationError is a transient failure reported by the Backup Store.
type BackupCreationError struct {
	Kind BackupKind
	Err  error
}

func (e *BackupCreationError) Error() string {
	return fmt.Sprintf("create %s backup: %v", e.Kind, e.Err)
}

func (e *BackupCreationError) Unwrap() error { return e.Err }

// BackupDeletionError is a per-record failure during a cleanup pass.
type BackupDeletionError struct {
	ID  string
	Err error
}

func (e *BackupDeletionError) Error() string {
	return fmt.Sprintf("delete backup %s: %v", e.ID, e.Err)
}

func (e *BackupDeletionError) Unwrap() error { return e.Err }

// ConfigurationError reports a persisted key that is missing or unparseable.
type ConfigurationError struct {
	Key   string
	Value string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("config %s: missing", e.Key)
	}
	return fmt.Sprintf("config %s=%q: %v", e.Key, e.Value, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// InitializationError means the scheduler could not reach a collaborator at startup.
type InitializationError struct {
	Err error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("initialize scheduler: %v", e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }
