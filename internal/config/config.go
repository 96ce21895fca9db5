// Package config loads PrimeGrid server configuration from defaults, an
// optional YAML file and PRIMEGRID_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrMissingAddr      = errors.New("server address must be set")
	ErrMissingDir       = errors.New("storage directory must be set")
	ErrInvalidBatchSize = errors.New("default batch size is not an allowed size")
	ErrInvalidTimeout   = errors.New("client timeout must be positive")
	ErrInvalidInterval  = errors.New("background interval must be positive")
	ErrInvalidLogFormat = errors.New("log format must be text or json")
)

// EnvPrefix prefixes every environment override, e.g. PRIMEGRID_SERVER_ADDR.
const EnvPrefix = "PRIMEGRID"

// Default configuration values.
const (
	DefaultAddr              = ":5000"
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultShutdownTimeout   = 5 * time.Second
	DefaultStorageDir        = "data"
	DefaultBatchSize         = 100000
	DefaultClientTimeout     = 20 * time.Second
	DefaultEvictionInterval  = 60 * time.Second
	DefaultHistoryInterval   = 60 * time.Second
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultUsersDir          = "data/users"
	DefaultCookieName        = "primegrid_session"
)

// Config holds all configuration for the PrimeGrid server.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
	Users       UsersConfig       `mapstructure:"users"`
	Session     SessionConfig     `mapstructure:"session"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	StaticDir         string        `mapstructure:"static_dir"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig locates the state, history and ledger files.
type StorageConfig struct {
	Dir string `mapstructure:"dir"`
}

// CoordinatorConfig tunes batch allocation and the background loops.
type CoordinatorConfig struct {
	DefaultBatchSize uint64        `mapstructure:"default_batch_size"`
	ClientTimeout    time.Duration `mapstructure:"client_timeout"`
	EvictionInterval time.Duration `mapstructure:"eviction_interval"`
	HistoryInterval  time.Duration `mapstructure:"history_interval"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TracingConfig enables span export.
type TracingConfig struct {
	Stdout bool `mapstructure:"stdout"`
}

// UsersConfig locates the account store. Any afs URL works, a plain path
// means the local filesystem.
type UsersConfig struct {
	Dir string `mapstructure:"dir"`
}

// SessionConfig holds cookie session settings.
type SessionConfig struct {
	CookieName string `mapstructure:"cookie_name"`
}

// allowedBatchSizes mirrors coordinator.AllowedBatchSizes. The config
// package stays free of internal imports so every command can load it.
var allowedBatchSizes = map[uint64]bool{
	100: true, 500: true, 1000: true, 5000: true, 10000: true, 50000: true,
	100000: true, 500000: true, 1000000: true, 1500000: true, 2000000: true,
	2500000: true, 3000000: true, 3500000: true, 4000000: true, 4500000: true,
	5000000: true,
}

// Load reads configuration. An empty configPath searches for primegrid.yaml
// in the working directory and /etc/primegrid; a missing file is not an error
// in that case.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("primegrid")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/primegrid")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", DefaultAddr)
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.read_header_timeout", DefaultReadHeaderTimeout)
	v.SetDefault("server.shutdown_timeout", DefaultShutdownTimeout)

	v.SetDefault("storage.dir", DefaultStorageDir)

	v.SetDefault("coordinator.default_batch_size", DefaultBatchSize)
	v.SetDefault("coordinator.client_timeout", DefaultClientTimeout)
	v.SetDefault("coordinator.eviction_interval", DefaultEvictionInterval)
	v.SetDefault("coordinator.history_interval", DefaultHistoryInterval)

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.format", DefaultLogFormat)

	v.SetDefault("tracing.stdout", false)

	v.SetDefault("users.dir", DefaultUsersDir)

	v.SetDefault("session.cookie_name", DefaultCookieName)
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return ErrMissingAddr
	}
	if c.Storage.Dir == "" {
		return ErrMissingDir
	}
	if !allowedBatchSizes[c.Coordinator.DefaultBatchSize] {
		return fmt.Errorf("%w: %d", ErrInvalidBatchSize, c.Coordinator.DefaultBatchSize)
	}
	if c.Coordinator.ClientTimeout <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTimeout, c.Coordinator.ClientTimeout)
	}
	if c.Coordinator.EvictionInterval <= 0 || c.Coordinator.HistoryInterval <= 0 {
		return ErrInvalidInterval
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Logging.Format)
	}
	return nil
}
