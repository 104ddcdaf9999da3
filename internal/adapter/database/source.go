package database

import (
	"fmt"

	"github.com/semmidev/backupkeeper/internal/config"
	"github.com/semmidev/backupkeeper/internal/domain"
)

const (
	TypeMySQL      = "mysql"
	TypePostgreSQL = "postgresql"
	TypeMongoDB    = "mongodb"
	TypeDirectory  = "directory"
)

// New builds the source for cfg.Type.
func New(cfg config.SourceConfig) (domain.Source, error) {
	switch cfg.Type {
	case TypeMySQL:
		return NewMySQL(&cfg), nil
	case TypePostgreSQL:
		return NewPostgreSQL(&cfg), nil
	case TypeMongoDB:
		return NewMongoDB(&cfg), nil
	case TypeDirectory:
		return NewDirectory(&cfg), nil
	default:
		return nil, fmt.Errorf("unsupported source type: %s", cfg.Type)
	}
}
