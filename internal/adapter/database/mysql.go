package database

import (
	"context"
	"time"

	"github.com/semmidev/backupkeeper/internal/config"
	"github.com/semmidev/backupkeeper/internal/domain"
)

type MySQLSource struct {
	config *config.SourceConfig
}

func NewMySQL(cfg *config.SourceConfig) *MySQLSource {
	return &MySQLSource{config: cfg}
}

// connArgs is shared by mysqldump and mysql. The password travels in
// MYSQL_PWD so it does not show up in the process list.
func (m *MySQLSource) connArgs() []string {
	return []string{
		flag("host", m.config.Host),
		flag("port", m.config.Port),
		flag("user", m.config.Username),
	}
}

func (m *MySQLSource) env() []string {
	return []string{"MYSQL_PWD=" + m.config.Password}
}

func (m *MySQLSource) dumpCommand(outputPath string) command {
	args := append(m.connArgs(),
		"--single-transaction",
		"--quick",
		"--lock-tables=false",
		"--routines",
		"--triggers",
		"--events",
		flag("result-file", outputPath),
		m.config.Database,
	)
	return command{name: "mysqldump", args: args, env: m.env()}
}

// Dump writes a logical dump. mysqldump has no change capture, so only
// full dumps are supported.
func (m *MySQLSource) Dump(ctx context.Context, outputPath string, since time.Time) error {
	if !since.IsZero() {
		return domain.ErrIncrementalUnsupported
	}
	return m.dumpCommand(outputPath).run(ctx)
}

func (m *MySQLSource) Extension() string { return ".sql" }
func (m *MySQLSource) GetName() string   { return m.config.Name }
func (m *MySQLSource) GetType() string   { return TypeMySQL }

func (m *MySQLSource) Ping(ctx context.Context) error {
	cmd := command{name: "mysql", args: append(m.connArgs(), "-e", "SELECT 1"), env: m.env()}
	return cmd.run(ctx)
}
