package database

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/semmidev/backupkeeper/internal/config"
	"github.com/semmidev/backupkeeper/internal/domain"
)

type MongoDBSource struct {
	config *config.SourceConfig
}

func NewMongoDB(cfg *config.SourceConfig) *MongoDBSource {
	return &MongoDBSource{config: cfg}
}

func (m *MongoDBSource) uri() string {
	host := m.config.Host
	if m.config.Port != 0 {
		host += ":" + strconv.Itoa(m.config.Port)
	}

	u := url.URL{Scheme: "mongodb", Host: host, Path: "/" + m.config.Database}
	if m.config.Username != "" {
		u.User = url.UserPassword(m.config.Username, m.config.Password)
	}
	if m.config.AuthDatabase != "" {
		u.RawQuery = url.Values{"authSource": {m.config.AuthDatabase}}.Encode()
	}
	return u.String()
}

func (m *MongoDBSource) dumpCommand(outputPath string) command {
	return command{
		name: "mongodump",
		args: []string{flag("uri", m.uri()), flag("archive", outputPath), "--gzip"},
	}
}

// Dump writes a gzipped mongodump archive of the whole database.
func (m *MongoDBSource) Dump(ctx context.Context, outputPath string, since time.Time) error {
	if !since.IsZero() {
		return domain.ErrIncrementalUnsupported
	}
	return m.dumpCommand(outputPath).run(ctx)
}

func (m *MongoDBSource) Extension() string { return ".archive" }
func (m *MongoDBSource) GetName() string   { return m.config.Name }
func (m *MongoDBSource) GetType() string   { return TypeMongoDB }

func (m *MongoDBSource) Ping(ctx context.Context) error {
	cmd := command{name: "mongosh", args: []string{m.uri(), "--quiet", "--eval", "db.runCommand({ ping: 1 })"}}
	return cmd.run(ctx)
}
