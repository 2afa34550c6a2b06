// Package config loads server configuration from defaults, an optional YAML
// file, FIELDSYNC_* environment variables and command line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FIELDSYNC_SERVER_ADDR.
const EnvPrefix = "FIELDSYNC"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"` // websocket origin patterns
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	SubmitWindow      time.Duration `mapstructure:"submit_window"`
	SubmitRate        int           `mapstructure:"submit_rate"`
	AdminWindow       time.Duration `mapstructure:"admin_window"` // dispatch and cleanup
	AdminRate         int           `mapstructure:"admin_rate"`
	EventBuffer       int           `mapstructure:"event_buffer"`
}

// DatabaseConfig points at the sqlite file.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// AuthConfig configures bearer tokens.
type AuthConfig struct {
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // text or json
	File       string `mapstructure:"file"`   // empty logs to stderr
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// EngineConfig tunes the reconciliation engine.
type EngineConfig struct {
	RetentionKey string        `mapstructure:"retention_key"`
	BackoffBase  time.Duration `mapstructure:"backoff_base"`
	BackoffMax   time.Duration `mapstructure:"backoff_max"`
	TxTimeout    time.Duration `mapstructure:"tx_timeout"`
	StaleAfter   time.Duration `mapstructure:"stale_after"`
	Workers      int           `mapstructure:"workers"`
	BatchLimit   int           `mapstructure:"batch_limit"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

// SchedulerConfig controls the background loops started by serve.
type SchedulerConfig struct {
	DispatchInterval time.Duration `mapstructure:"dispatch_interval"` // zero disables scheduled dispatch
	CleanupInterval  time.Duration `mapstructure:"cleanup_interval"`  // how often auto cleanup is checked
}

var defaults = map[string]any{
	"server.addr":                ":8080",
	"server.allowed_origins":     []string{},
	"server.read_header_timeout": 5 * time.Second,
	"server.read_timeout":        30 * time.Second,
	"server.shutdown_timeout":    10 * time.Second,
	"server.submit_window":       time.Minute,
	"server.submit_rate":         60,
	"server.admin_window":        time.Minute,
	"server.admin_rate":          6,
	"server.event_buffer":        64,

	"database.path": "fieldsync.db",

	"auth.secret":    "",
	"auth.token_ttl": 24 * time.Hour,

	"log.level":        "info",
	"log.format":       "text",
	"log.file":         "",
	"log.max_size_mb":  100,
	"log.max_backups":  3,
	"log.max_age_days": 28,

	"engine.retention_key": "default",
	"engine.backoff_base":  30 * time.Second,
	"engine.backoff_max":   30 * time.Minute,
	"engine.tx_timeout":    5 * time.Second,
	"engine.stale_after":   10 * time.Minute,
	"engine.workers":       4,
	"engine.batch_limit":   100,
	"engine.max_attempts":  5,

	"scheduler.dispatch_interval": time.Minute,
	"scheduler.cleanup_interval":  time.Hour,
}

// NewViper returns a viper instance with defaults and environment
// overrides registered. Flags can be bound to it before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path when it is not empty and decodes the merged configuration.
// Callers run Validate once they know which parts they need.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks values the components cannot default on their own.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if len(c.Auth.Secret) < 16 {
		errs = append(errs, errors.New("auth.secret must be at least 16 characters"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.Server.SubmitRate < 0 || c.Server.SubmitWindow < 0 {
		errs = append(errs, errors.New("server.submit_rate and server.submit_window must not be negative"))
	}
	if c.Server.AdminRate < 0 || c.Server.AdminWindow < 0 {
		errs = append(errs, errors.New("server.admin_rate and server.admin_window must not be negative"))
	}
	if c.Scheduler.DispatchInterval < 0 {
		errs = append(errs, errors.New("scheduler.dispatch_interval must not be negative"))
	}
	if c.Scheduler.CleanupInterval <= 0 {
		errs = append(errs, errors.New("scheduler.cleanup_interval must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ParseLevel maps a level name onto slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("log.level %q: want debug, info, warn or error", s)
	}
	return l, nil
}

// Watch reloads the config file on change and hands every valid result to
// onChange. Invalid edits are logged and ignored.
func Watch(v *viper.Viper, logger *slog.Logger, onChange func(*Config)) {
	v.OnConfigChange(reloader(v, logger, onChange))
	v.WatchConfig()
}

func reloader(v *viper.Viper, logger *slog.Logger, onChange func(*Config)) func(fsnotify.Event) {
	return func(e fsnotify.Event) {
		cfg, err := decode(v)
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			logger.Warn("Ignoring config change", "file", e.Name, "error", err)
			return
		}
		logger.Info("Config reloaded", "file", e.Name, "op", e.Op.String())
		onChange(cfg)
	}
}
