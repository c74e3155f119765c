// Package config loads fieldmesh configuration from file and
// environment using viper.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig holds postgres connection settings
type DatabaseConfig struct {
	DSN          string        `mapstructure:"dsn"`
	ReadDSN      string        `mapstructure:"read_dsn"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// CacheConfig holds cache settings. Type selects the backend:
// "redis", "memory" or "noop".
type CacheConfig struct {
	Type         string        `mapstructure:"type"`
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	Database     int           `mapstructure:"database"`
	Size         int           `mapstructure:"size"`
	TTL          time.Duration `mapstructure:"ttl"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// SyncSettings tunes the batch sync orchestrator
type SyncSettings struct {
	MaxConcurrency       int           `mapstructure:"max_concurrency"`
	MaxWriteRetries      uint64        `mapstructure:"max_write_retries"`
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Prefix string `mapstructure:"prefix"`
}

// Config is the root configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Sync     SyncSettings   `mapstructure:"sync"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// Load reads configuration from the named file (optional) and the
// environment. Environment variables use the FIELDMESH_ prefix with
// underscores, e.g. FIELDMESH_DATABASE_DSN.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.read_dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.query_timeout", 30*time.Second)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.address", "")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.database", 0)
	v.SetDefault("cache.dial_timeout", 5*time.Second)
	v.SetDefault("cache.read_timeout", 3*time.Second)
	v.SetDefault("cache.write_timeout", 3*time.Second)
	v.SetDefault("cache.size", 10000)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("sync.max_concurrency", 4)
	v.SetDefault("sync.max_write_retries", 3)
	v.SetDefault("sync.retry_initial_interval", 50*time.Millisecond)
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.prefix", "fieldmesh")

	v.SetEnvPrefix("FIELDMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
