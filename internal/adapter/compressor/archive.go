package compressor

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// TarArchiver packs a staging directory into a tar stream, gzipped when
// compress is set.
type TarArchiver struct {
	compress bool
}

func NewTar(compress bool) *TarArchiver {
	return &TarArchiver{compress: compress}
}

func (a *TarArchiver) Extension() string {
	if a.compress {
		return ".tar.gz"
	}
	return ".tar"
}

func (a *TarArchiver) Archive(sourceDir, destPath string) (int64, error) {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return 0, fmt.Errorf("failed to open source dir: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("failed to open source dir: %s is not a directory", sourceDir)
	}

	destFile, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create dest file: %w", err)
	}
	defer destFile.Close()

	var w io.Writer = destFile
	var gzipWriter *gzip.Writer
	if a.compress {
		gzipWriter, err = gzip.NewWriterLevel(destFile, gzip.BestCompression)
		if err != nil {
			return 0, fmt.Errorf("failed to create gzip writer: %w", err)
		}
		w = gzipWriter
	}

	tarWriter := tar.NewWriter(w)
	if err := addDir(tarWriter, sourceDir); err != nil {
		return 0, err
	}
	if err := tarWriter.Close(); err != nil {
		return 0, fmt.Errorf("failed to finish tar stream: %w", err)
	}
	if gzipWriter != nil {
		if err := gzipWriter.Close(); err != nil {
			return 0, fmt.Errorf("failed to finish gzip stream: %w", err)
		}
	}
	if err := destFile.Sync(); err != nil {
		return 0, fmt.Errorf("failed to sync dest file: %w", err)
	}

	stat, err := destFile.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat dest file: %w", err)
	}
	return stat.Size(), nil
}

func addDir(tw *tar.Writer, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("failed to build header for %s: %w", rel, err)
		}
		header.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			header.Name += "/"
		}
		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("failed to write header for %s: %w", rel, err)
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", rel, err)
		}
		defer f.Close()

		if _, err := io.Copy(tw, f); err != nil {
			return fmt.Errorf("failed to archive %s: %w", rel, err)
		}
		return nil
	})
}

// Extract unpacks an archive written by Archive into destDir.
func (a *TarArchiver) Extract(archivePath, destDir string) error {
	sourceFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer sourceFile.Close()

	var r io.Reader = sourceFile
	if a.compress {
		gzipReader, err := gzip.NewReader(sourceFile)
		if err != nil {
			return fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzipReader.Close()
		r = gzipReader
	}

	tarReader := tar.NewReader(r)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar stream: %w", err)
		}

		target := filepath.Join(destDir, filepath.FromSlash(header.Name))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("illegal path in archive: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to create dir: %w", err)
			}
		case tar.TypeReg:
			if err := extractFile(tarReader, target, os.FileMode(header.Mode)); err != nil {
				return err
			}
		}
	}
}

func extractFile(r io.Reader, target string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create dir: %w", err)
	}
	destFile, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return fmt.Errorf("failed to create dest file: %w", err)
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, r); err != nil {
		return fmt.Errorf("failed to extract: %w", err)
	}
	return nil
}
