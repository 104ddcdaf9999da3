package domain

import "context"

// Storage is a mirror target for finished archives.
type Storage interface {
	Upload(ctx context.Context, localPath string, remoteName string) error
	Delete(ctx context.Context, remoteName string) error
}
