package domain

// Archiver packs a directory into a single file and reports its size.
type Archiver interface {
	Archive(sourceDir, destPath string) (int64, error)
	Extension() string
}
