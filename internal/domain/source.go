package domain

import (
	"context"
	"time"
)

// Source dumps one data set into outputPath. A zero since means a full
// capture; sources that cannot capture changes return ErrIncrementalUnsupported.
type Source interface {
	Dump(ctx context.Context, outputPath string, since time.Time) error
	Extension() string
	GetName() string
	GetType() string
	Ping(ctx context.Context) error
}
