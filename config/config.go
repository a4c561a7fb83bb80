// Package config loads the pve configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/etnz/valuation"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
)

// Storage backends.
const (
	BackendJSONL  = "jsonl"
	BackendSQLite = "sqlite"
)

// Config holds the pve configuration.
type Config struct {
	ReportingCurrency string        `toml:"reporting_currency"`
	User              string        `toml:"user"`
	Storage           StorageConfig `toml:"storage"`
	EODHD             EODHDConfig   `toml:"eodhd"`
	Logging           LoggingConfig `toml:"logging"`
}

// StorageConfig selects where operations, assets and goals are kept.
type StorageConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"` // directory of the ledger or database file
}

// File returns the path of the ledger file, or of the database.
func (s StorageConfig) File() string {
	if s.Backend == BackendSQLite {
		return filepath.Join(s.Path, "valuation.db")
	}
	return filepath.Join(s.Path, "valuation.jsonl")
}

// EODHDConfig holds EODHD API configuration. Quotes and rates are fetched
// only when APIKey is set.
type EODHDConfig struct {
	APIKey    string `toml:"api_key"`
	BaseURL   string `toml:"base_url"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
	Cache     bool   `toml:"cache"`
}

// GetTimeout returns the parsed timeout, Validate has checked it.
func (c EODHDConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// LoggingConfig holds the logging level: debug, info, warn or error.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		ReportingCurrency: valuation.DefaultReportingCurrency,
		User:              "default",
		Storage: StorageConfig{
			Backend: BackendJSONL,
			Path:    ".",
		},
		EODHD: EODHDConfig{
			BaseURL:   "https://eodhd.com/api",
			RateLimit: 5,
			Timeout:   "10s",
			Cache:     true,
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
	}
}

// Load reads the configuration at path over the defaults, then applies the
// PVE_* environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	config := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			if err := toml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}
	applyEnvOverrides(config)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("PVE_REPORTING_CURRENCY"); v != "" {
		config.ReportingCurrency = strings.ToUpper(v)
	}
	if v := os.Getenv("PVE_USER"); v != "" {
		config.User = v
	}
	if v := os.Getenv("PVE_STORAGE_BACKEND"); v != "" {
		config.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("PVE_STORAGE_PATH"); v != "" {
		config.Storage.Path = v
	}
	if v := os.Getenv("PVE_EODHD_API_KEY"); v != "" {
		config.EODHD.APIKey = v
	}
	if v := os.Getenv("PVE_EODHD_BASE_URL"); v != "" {
		config.EODHD.BaseURL = v
	}
	if v := os.Getenv("PVE_EODHD_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.EODHD.RateLimit = n
		}
	}
	if v := os.Getenv("PVE_EODHD_TIMEOUT"); v != "" {
		config.EODHD.Timeout = v
	}
	if v := os.Getenv("PVE_EODHD_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.EODHD.Cache = b
		}
	}
	if v := os.Getenv("PVE_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	var errs []error
	if err := valuation.ValidateCurrency(c.ReportingCurrency); err != nil {
		errs = append(errs, fmt.Errorf("reporting_currency: %w", err))
	}
	if c.User == "" {
		errs = append(errs, errors.New("user: must not be empty"))
	}
	switch c.Storage.Backend {
	case BackendJSONL, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("storage.backend: unknown backend %q", c.Storage.Backend))
	}
	if c.EODHD.RateLimit <= 0 {
		errs = append(errs, fmt.Errorf("eodhd.rate_limit: must be positive, got %d", c.EODHD.RateLimit))
	}
	if _, err := time.ParseDuration(c.EODHD.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("eodhd.timeout: %w", err))
	}
	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	return errors.Join(errs...)
}

// Logger creates a console logger at the configured level.
func (c *Config) Logger(w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(c.Logging.Level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}
