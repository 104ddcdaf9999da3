package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStorage is the primary copy of every archive.
type LocalStorage struct {
	basePath string
}

func NewLocal(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Upload copies localPath into the backup directory through a temp file so
// a partial copy never carries the final name.
func (l *LocalStorage) Upload(ctx context.Context, localPath string, remoteName string) error {
	destPath := l.GetPath(remoteName)

	source, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer source.Close()

	tmp, err := os.CreateTemp(l.basePath, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create dest: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, source); err != nil {
		return fmt.Errorf("failed to copy: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close dest: %w", err)
	}
	if err := os.Rename(tmp.Name(), destPath); err != nil {
		return fmt.Errorf("failed to move into place: %w", err)
	}

	return nil
}

func (l *LocalStorage) Delete(ctx context.Context, remoteName string) error {
	if err := os.Remove(l.GetPath(remoteName)); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Size returns the size of a stored archive.
func (l *LocalStorage) Size(remoteName string) (int64, error) {
	info, err := os.Stat(l.GetPath(remoteName))
	if err != nil {
		return 0, fmt.Errorf("failed to stat file: %w", err)
	}
	return info.Size(), nil
}

func (l *LocalStorage) GetPath(filename string) string {
	return filepath.Join(l.basePath, filename)
}
