// Package config loads application configuration from an optional YAML file
// and ADSYNC_-prefixed environment variables.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Selector SelectorConfig `yaml:"selector" mapstructure:"selector"`
	Ingest   IngestConfig   `yaml:"ingest" mapstructure:"ingest"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`

	// ChunkSize bounds rows per store round-trip. WriteRatePerSec throttles
	// fact-write chunks; zero disables throttling. WriteRetries is the total
	// attempts per chunk on transient failures; 1 disables retries.
	ChunkSize       int     `yaml:"chunk_size" mapstructure:"chunk_size"`
	WriteRatePerSec float64 `yaml:"write_rate_per_sec" mapstructure:"write_rate_per_sec"`
	WriteRetries    int     `yaml:"write_retries" mapstructure:"write_retries"`
}

// SelectorConfig configures snapshot selection.
type SelectorConfig struct {
	LookAheadDays int `yaml:"look_ahead_days" mapstructure:"look_ahead_days"`
}

// IngestConfig configures report ingestion.
type IngestConfig struct {
	AccountID            string `yaml:"account_id" mapstructure:"account_id"`
	MaxConcurrentUploads int    `yaml:"max_concurrent_uploads" mapstructure:"max_concurrent_uploads"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ADSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "adsync.db")
	v.SetDefault("store.chunk_size", 500)
	v.SetDefault("store.write_rate_per_sec", 0)
	v.SetDefault("store.write_retries", 3)
	v.SetDefault("selector.look_ahead_days", 7)
	v.SetDefault("ingest.max_concurrent_uploads", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
