package database

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/semmidev/backupkeeper/internal/config"
)

// DirectorySource copies a directory tree. With a non-zero since it copies
// only regular files modified at or after since.
type DirectorySource struct {
	config *config.SourceConfig
}

func NewDirectory(cfg *config.SourceConfig) *DirectorySource {
	return &DirectorySource{config: cfg}
}

func (d *DirectorySource) Dump(ctx context.Context, outputPath string, since time.Time) error {
	root := d.config.Path
	if err := os.MkdirAll(outputPath, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if !since.IsZero() && info.ModTime().Before(since) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		return copyFile(path, filepath.Join(outputPath, rel), info)
	})
}

func copyFile(src, dst string, info os.FileInfo) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create dir for %s: %w", dst, err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// Extension is empty: the dump is a directory, not a file.
func (d *DirectorySource) Extension() string {
	return ""
}

func (d *DirectorySource) GetName() string {
	return d.config.Name
}

func (d *DirectorySource) GetType() string {
	return TypeDirectory
}

func (d *DirectorySource) Ping(ctx context.Context) error {
	info, err := os.Stat(d.config.Path)
	if err != nil {
		return fmt.Errorf("directory ping failed: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("directory ping failed: %s is not a directory", d.config.Path)
	}
	return nil
}
