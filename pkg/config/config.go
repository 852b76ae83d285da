// Package config provides configuration file support for auditvault.
//
// Configuration lives in <root>/.auditvault/config.yaml. Values are layered:
// built-in defaults, then the YAML file, then AUDITVAULT_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"

	"github.com/auditvault/auditvault/pkg/errclass"
	"github.com/auditvault/auditvault/pkg/model"
	"github.com/auditvault/auditvault/pkg/webhook"
)

// DirName is the per-project control directory holding the config file.
const DirName = ".auditvault"

// FileName is the config file name inside DirName.
const FileName = "config.yaml"

// Config represents the auditvault configuration.
type Config struct {
	AuditDir string         `yaml:"audit_dir" env:"AUDITVAULT_AUDIT_DIR"`
	Backup   BackupConfig   `yaml:"backup"`
	Writer   WriterConfig   `yaml:"writer"`
	Logging  LoggingConfig  `yaml:"logging"`
	Webhooks webhook.Config `yaml:"webhooks"`
}

// BackupConfig configures the backup manager.
type BackupConfig struct {
	Root            string   `yaml:"root"             env:"AUDITVAULT_BACKUP_ROOT"`
	CompressEnabled bool     `yaml:"compress_enabled" env:"AUDITVAULT_COMPRESS"`
	RetentionDays   uint32   `yaml:"retention_days"   env:"AUDITVAULT_RETENTION_DAYS"`
	LogExtensions   []string `yaml:"log_extensions"   env:"AUDITVAULT_LOG_EXTENSIONS" env-separator:","`
}

// WriterConfig configures the buffered audit writer.
type WriterConfig struct {
	BufferSize      int           `yaml:"buffer_size"      env:"AUDITVAULT_BUFFER_SIZE"`
	FlushInterval   time.Duration `yaml:"flush_interval"   env:"AUDITVAULT_FLUSH_INTERVAL"`
	IndexingEnabled bool          `yaml:"indexing_enabled" env:"AUDITVAULT_INDEXING"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"  env:"AUDITVAULT_LOG_LEVEL"`
	Format string `yaml:"format" env:"AUDITVAULT_LOG_FORMAT"` // console, json
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		AuditDir: "audit",
		Backup: BackupConfig{
			Root:            filepath.Join("backups", "audit"),
			CompressEnabled: true,
			RetentionDays:   model.DefaultRetentionDays,
			LogExtensions:   []string{".log", ".jsonl"},
		},
		Writer: WriterConfig{
			BufferSize:      100,
			FlushInterval:   5 * time.Second,
			IndexingEnabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Webhooks: webhook.DefaultConfig(),
	}
}

// Path returns the config file path for a project root.
func Path(root string) string {
	return filepath.Join(root, DirName, FileName)
}

// Load loads configuration for the project at root.
// A missing file yields the defaults, still subject to environment overrides.
func Load(root string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(Path(root))
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errclass.ErrConfigInvalid.WithMessagef("parse %s", Path(root)).Wrap(err)
		}
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, errclass.ErrConfigInvalid.WithMessage("read environment").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes configuration to <root>/.auditvault/config.yaml.
func Save(root string, cfg *Config) error {
	path := Path(root)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks that the configuration can drive the engine.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.AuditDir) == "" {
		return errclass.ErrConfigInvalid.WithMessage("audit_dir must not be empty")
	}
	if strings.TrimSpace(c.Backup.Root) == "" {
		return errclass.ErrConfigInvalid.WithMessage("backup.root must not be empty")
	}
	if c.Backup.RetentionDays == 0 {
		return errclass.ErrConfigInvalid.WithMessage("backup.retention_days must be positive")
	}
	if c.Writer.BufferSize <= 0 {
		return errclass.ErrConfigInvalid.WithMessagef("writer.buffer_size must be positive, got %d", c.Writer.BufferSize)
	}
	if c.Writer.FlushInterval <= 0 {
		return errclass.ErrConfigInvalid.WithMessagef("writer.flush_interval must be positive, got %s", c.Writer.FlushInterval)
	}
	for _, ext := range c.Backup.LogExtensions {
		if !strings.HasPrefix(ext, ".") {
			return errclass.ErrConfigInvalid.WithMessagef("backup.log_extensions entry %q must start with '.'", ext)
		}
	}
	if err := c.Webhooks.Validate(); err != nil {
		return errclass.ErrConfigInvalid.WithMessage("webhooks").Wrap(err)
	}
	return nil
}

// BelowRegulatoryRetention reports whether the configured retention is
// shorter than the 7-year default.
func (c *Config) BelowRegulatoryRetention() bool {
	return c.Backup.RetentionDays < model.DefaultRetentionDays
}

// Resolve returns p joined onto root unless it is already absolute.
func Resolve(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// Keys lists the keys accepted by Get and Set.
var Keys = []string{
	"audit_dir",
	"backup.root",
	"backup.compress_enabled",
	"backup.retention_days",
	"backup.log_extensions",
	"writer.buffer_size",
	"writer.flush_interval",
	"writer.indexing_enabled",
	"logging.level",
	"logging.format",
	"webhooks.max_retries",
	"webhooks.retry_delay",
}

// Get returns the string form of a configuration value.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "audit_dir":
		return c.AuditDir, nil
	case "backup.root":
		return c.Backup.Root, nil
	case "backup.compress_enabled":
		return strconv.FormatBool(c.Backup.CompressEnabled), nil
	case "backup.retention_days":
		return strconv.FormatUint(uint64(c.Backup.RetentionDays), 10), nil
	case "backup.log_extensions":
		return strings.Join(c.Backup.LogExtensions, ","), nil
	case "writer.buffer_size":
		return strconv.Itoa(c.Writer.BufferSize), nil
	case "writer.flush_interval":
		return c.Writer.FlushInterval.String(), nil
	case "writer.indexing_enabled":
		return strconv.FormatBool(c.Writer.IndexingEnabled), nil
	case "logging.level":
		return c.Logging.Level, nil
	case "logging.format":
		return c.Logging.Format, nil
	case "webhooks.max_retries":
		return strconv.Itoa(c.Webhooks.MaxRetries), nil
	case "webhooks.retry_delay":
		return c.Webhooks.RetryDelay.String(), nil
	default:
		return "", errclass.ErrConfigInvalid.WithMessagef("unknown key %q", key)
	}
}

// Set parses value and assigns it to key, then revalidates.
func (c *Config) Set(key, value string) error {
	next := *c
	next.Backup.LogExtensions = append([]string(nil), c.Backup.LogExtensions...)

	var err error
	switch key {
	case "audit_dir":
		next.AuditDir = value
	case "backup.root":
		next.Backup.Root = value
	case "backup.compress_enabled":
		next.Backup.CompressEnabled, err = strconv.ParseBool(value)
	case "backup.retention_days":
		var days uint64
		days, err = strconv.ParseUint(value, 10, 32)
		next.Backup.RetentionDays = uint32(days)
	case "backup.log_extensions":
		next.Backup.LogExtensions = nil
		for _, ext := range strings.Split(value, ",") {
			if ext = strings.TrimSpace(ext); ext != "" {
				next.Backup.LogExtensions = append(next.Backup.LogExtensions, ext)
			}
		}
	case "writer.buffer_size":
		next.Writer.BufferSize, err = strconv.Atoi(value)
	case "writer.flush_interval":
		next.Writer.FlushInterval, err = time.ParseDuration(value)
	case "writer.indexing_enabled":
		next.Writer.IndexingEnabled, err = strconv.ParseBool(value)
	case "logging.level":
		next.Logging.Level = value
	case "logging.format":
		next.Logging.Format = value
	case "webhooks.max_retries":
		next.Webhooks.MaxRetries, err = strconv.Atoi(value)
	case "webhooks.retry_delay":
		next.Webhooks.RetryDelay, err = time.ParseDuration(value)
	default:
		return errclass.ErrConfigInvalid.WithMessagef("unknown key %q", key)
	}
	if err != nil {
		return errclass.ErrConfigInvalid.WithMessagef("invalid value for %s", key).Wrap(err)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}
