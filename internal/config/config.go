package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	WindowModeFixed     = "fixed"
	WindowModeWatermark = "watermark"
)

type Config struct {
	App        AppConfig       `mapstructure:"app"`
	Admin      AdminConfig     `mapstructure:"admin"`
	Catalog    CatalogConfig   `mapstructure:"catalog"`
	Schedule   ScheduleConfig  `mapstructure:"schedule"`
	Retention  RetentionConfig `mapstructure:"retention"`
	Requesters RequesterConfig `mapstructure:"requesters"`
	Backup     BackupConfig    `mapstructure:"backup"`
	Sources    []SourceConfig  `mapstructure:"sources"`
}

type AppConfig struct {
	Name          string `mapstructure:"name"`
	LogLevel      string `mapstructure:"log_level"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
	LogMaxAgeDays int    `mapstructure:"log_max_age_days"`
	LogCompress   bool   `mapstructure:"log_compress"`
}

type AdminConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	Metrics         bool          `mapstructure:"metrics"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// ScheduleConfig holds the timing constants of the scheduler. The persisted
// enabled/frequency pair lives in the catalog database, not here; the
// Default* values are used only when those keys are absent.
type ScheduleConfig struct {
	WarmupDelay           time.Duration `mapstructure:"warmup_delay"`
	IncrementalInterval   time.Duration `mapstructure:"incremental_interval"`
	IncrementalLookback   time.Duration `mapstructure:"incremental_lookback"`
	WindowMode            string        `mapstructure:"window_mode"`
	DefaultFrequencyHours int           `mapstructure:"default_frequency_hours"`
	DefaultEnabled        bool          `mapstructure:"default_enabled"`
}

type RetentionConfig struct {
	MaxFullBackups    int           `mapstructure:"max_full_backups"`
	IncrementalMaxAge time.Duration `mapstructure:"incremental_max_age"`
}

type RequesterConfig struct {
	Scheduler string `mapstructure:"scheduler"`
	Cleanup   string `mapstructure:"cleanup"`
	// Manual tags backups started through the admin API when the caller
	// does not name itself.
	Manual string `mapstructure:"manual"`
}

type BackupConfig struct {
	LocalPath     string         `mapstructure:"local_path"`
	Compress      bool           `mapstructure:"compress"`
	UploadTargets []UploadTarget `mapstructure:"upload_targets"`
}

type SourceConfig struct {
	Name     string `mapstructure:"name"`
	Type     string `mapstructure:"type"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Enabled  bool   `mapstructure:"enabled"`

	// PostgreSQL specific
	SSLMode string `mapstructure:"ssl_mode"`

	// MongoDB specific
	AuthDatabase string `mapstructure:"auth_database"`

	// Directory specific
	Path string `mapstructure:"path"`
}

type UploadTarget struct {
	Type    string `mapstructure:"type"`
	Enabled bool   `mapstructure:"enabled"`

	// Google Drive: a service account file, or an OAuth client secret with
	// the refresh token printed by gdrive-auth.
	CredentialsFile  string `mapstructure:"credentials_file"`
	ClientSecretFile string `mapstructure:"client_secret_file"`
	RefreshToken     string `mapstructure:"refresh_token"`
	FolderID         string `mapstructure:"folder_id"`

	// AWS S3
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
	Endpoint  string `mapstructure:"endpoint"`

	// Telegram
	BotToken   string `mapstructure:"bot_token"`
	ChatID     string `mapstructure:"chat_id"`
	SendFile   bool   `mapstructure:"send_file"`
	NotifyOnly bool   `mapstructure:"notify_only"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "backupkeeper")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_max_size_mb", 100)
	v.SetDefault("app.log_max_backups", 3)
	v.SetDefault("app.log_max_age_days", 28)
	v.SetDefault("app.log_compress", true)
	v.SetDefault("admin.listen_addr", ":8085")
	v.SetDefault("admin.metrics", true)
	v.SetDefault("admin.shutdown_timeout", "30s")
	v.SetDefault("catalog.path", "data/backupkeeper.db")
	v.SetDefault("schedule.warmup_delay", "5s")
	v.SetDefault("schedule.incremental_interval", "6h")
	v.SetDefault("schedule.incremental_lookback", "6h")
	v.SetDefault("schedule.window_mode", WindowModeFixed)
	v.SetDefault("schedule.default_frequency_hours", 24)
	v.SetDefault("schedule.default_enabled", true)
	v.SetDefault("retention.max_full_backups", 10)
	v.SetDefault("retention.incremental_max_age", "168h")
	v.SetDefault("requesters.scheduler", "system-scheduler")
	v.SetDefault("requesters.cleanup", "system-cleanup")
	v.SetDefault("requesters.manual", "system-admin")
	v.SetDefault("backup.local_path", "data/backups")
	v.SetDefault("backup.compress", true)
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("BACKUPKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration produced by the defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func (c *Config) Validate() error {
	for i, src := range c.Sources {
		if src.Name == "" {
			return fmt.Errorf("sources[%d]: name is required", i)
		}
		switch src.Type {
		case "mysql", "postgresql", "mongodb":
			if src.Host == "" {
				return fmt.Errorf("sources[%d]: host is required", i)
			}
		case "directory":
			if src.Path == "" {
				return fmt.Errorf("sources[%d]: path is required", i)
			}
		case "":
			return fmt.Errorf("sources[%d]: type is required", i)
		default:
			return fmt.Errorf("sources[%d]: unsupported type %q", i, src.Type)
		}
	}

	if c.Backup.LocalPath == "" {
		return fmt.Errorf("backup.local_path is required")
	}
	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog.path is required")
	}
	if c.Schedule.DefaultFrequencyHours <= 0 {
		return fmt.Errorf("schedule.default_frequency_hours must be positive")
	}
	if c.Schedule.IncrementalInterval <= 0 {
		return fmt.Errorf("schedule.incremental_interval must be positive")
	}
	if c.Schedule.IncrementalLookback <= 0 {
		return fmt.Errorf("schedule.incremental_lookback must be positive")
	}
	if c.Schedule.WarmupDelay < 0 {
		return fmt.Errorf("schedule.warmup_delay must not be negative")
	}
	if c.Schedule.WindowMode != WindowModeFixed && c.Schedule.WindowMode != WindowModeWatermark {
		return fmt.Errorf("schedule.window_mode must be %q or %q", WindowModeFixed, WindowModeWatermark)
	}
	if c.Retention.MaxFullBackups <= 0 {
		return fmt.Errorf("retention.max_full_backups must be positive")
	}
	if c.Retention.IncrementalMaxAge <= 0 {
		return fmt.Errorf("retention.incremental_max_age must be positive")
	}
	if c.Requesters.Scheduler == "" || c.Requesters.Cleanup == "" || c.Requesters.Manual == "" {
		return fmt.Errorf("requesters.scheduler, requesters.cleanup and requesters.manual are required")
	}
	if c.Requesters.Manual == c.Requesters.Scheduler {
		return fmt.Errorf("requesters.manual must differ from requesters.scheduler")
	}

	return nil
}

func (c *Config) GetEnabledSources() []SourceConfig {
	var enabled []SourceConfig
	for _, src := range c.Sources {
		if src.Enabled {
			enabled = append(enabled, src)
		}
	}
	return enabled
}

func (c *Config) GetEnabledUploadTargets() []UploadTarget {
	var enabled []UploadTarget
	for _, target := range c.Backup.UploadTargets {
		if target.Enabled {
			enabled = append(enabled, target)
		}
	}
	return enabled
}
