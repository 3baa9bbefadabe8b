// Package config loads settings with priority defaults < TOML file <
// environment. Command-line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config is the full application configuration
type Config struct {
	DataDir string `toml:"data_dir" validate:"required"`

	// Database and Index default to files under DataDir
	Database string `toml:"database"`
	Index    string `toml:"index"`

	Images  ImagesConfig  `toml:"images"`
	Server  ServerConfig  `toml:"server"`
	Logging LoggingConfig `toml:"logging"`
}

// ImagesConfig selects and tunes the scan backend
type ImagesConfig struct {
	Backend   string `toml:"backend" validate:"oneof=local gcs"`
	ScanDir   string `toml:"scan_dir" validate:"required_if=Backend local"`
	Bucket    string `toml:"bucket" validate:"required_if=Backend gcs"`
	Prefix    string `toml:"prefix"`
	CacheSize int    `toml:"cache_size" validate:"gte=1"`
	Workers   int    `toml:"workers" validate:"gte=1,lte=64"`

	RequestsPerSecond float64 `toml:"requests_per_second" validate:"gt=0"`
	MaxRetries        int     `toml:"max_retries" validate:"gte=0,lte=10"`
}

// ServerConfig configures the browsing server
type ServerConfig struct {
	Addr            string `toml:"addr" validate:"required"`
	Password        string `toml:"password"`
	SessionSecret   string `toml:"session_secret"`
	SessionTTL      string `toml:"session_ttl" validate:"required"`
	ShutdownTimeout string `toml:"shutdown_timeout" validate:"required"`
}

// LoggingConfig configures the global logger
type LoggingConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn warning error"`
	Format string `toml:"format" validate:"oneof=console json"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		DataDir: "data",
		Images: ImagesConfig{
			Backend:           "local",
			ScanDir:           "scans",
			CacheSize:         256,
			Workers:           4,
			RequestsPerSecond: 20,
			MaxRetries:        3,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			SessionTTL:      "24h",
			ShutdownTimeout: "10s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path (optional) over the defaults, applies environment
// overrides and validates the result
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("LETTERS_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("LETTERS_DB"); v != "" {
		cfg.Database = v
	}
	if v := os.Getenv("LETTERS_INDEX"); v != "" {
		cfg.Index = v
	}
	if v := os.Getenv("LETTERS_IMAGE_BACKEND"); v != "" {
		cfg.Images.Backend = v
	}
	if v := os.Getenv("LETTERS_SCAN_DIR"); v != "" {
		cfg.Images.ScanDir = v
	}
	if v := os.Getenv("GCS_BUCKET_NAME"); v != "" {
		cfg.Images.Bucket = v
	}
	if v := os.Getenv("LETTERS_CACHE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LETTERS_CACHE_SIZE: %w", err)
		}
		cfg.Images.CacheSize = n
	}
	if v := os.Getenv("LETTERS_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("LETTERS_PASSWORD"); v != "" {
		cfg.Server.Password = v
	}
	if v := os.Getenv("LETTERS_SESSION_SECRET"); v != "" {
		cfg.Server.SessionSecret = v
	}
	if v := os.Getenv("LETTERS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LETTERS_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	return nil
}

// Validate checks struct constraints and duration strings
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := time.ParseDuration(c.Server.SessionTTL); err != nil {
		return fmt.Errorf("invalid config: server.session_ttl: %w", err)
	}
	if _, err := time.ParseDuration(c.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid config: server.shutdown_timeout: %w", err)
	}
	return nil
}

// DatabasePath returns the SQLite file location
func (c *Config) DatabasePath() string {
	if c.Database != "" {
		return c.Database
	}
	return filepath.Join(c.DataDir, "letters.db")
}

// IndexPath returns the bleve index location
func (c *Config) IndexPath() string {
	if c.Index != "" {
		return c.Index
	}
	return filepath.Join(c.DataDir, "letters.bleve")
}

// SessionTTL returns the parsed session lifetime
func (c *Config) SessionTTL() time.Duration {
	d, _ := time.ParseDuration(c.Server.SessionTTL)
	return d
}

// ShutdownTimeout returns the parsed graceful shutdown limit
func (c *Config) ShutdownTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Server.ShutdownTimeout)
	return d
}
