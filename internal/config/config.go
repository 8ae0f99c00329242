package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/spf13/viper"
)

type Config struct {
	// Storage
	DataBackend   string
	SQLiteDBPath  string
	PostgresURL   string
	MemorySeedDir string

	// AMQP; an empty URL disables events and queued imports
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets import source
	GoogleSpreadsheetID      string
	GoogleServiceAccountFile string

	// Presentation
	Currency string
	LogLevel string

	// Import account provisioning
	ProvisionCacheSize int
	ProvisionCacheTTL  time.Duration
}

var (
	validBackends  = []string{"memory", "sqlite", "postgres"}
	validLogLevels = []string{"debug", "info", "warn", "error"}
)

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("data_backend", "sqlite")
	v.SetDefault("sqlite_db_path", "./data/ledger.db")
	v.SetDefault("postgres_url", "")
	v.SetDefault("memory_seed_dir", "")

	v.SetDefault("amqp_url", "")
	v.SetDefault("amqp_exchange", "ledger")
	v.SetDefault("amqp_queue", "ledger_imports")

	v.SetDefault("google_spreadsheet_id", "")
	v.SetDefault("google_service_account_file", "")

	v.SetDefault("currency", "EUR")
	v.SetDefault("log_level", "info")

	v.SetDefault("provision_cache_size", 256)
	v.SetDefault("provision_cache_ttl", 10*time.Minute)

	v.AutomaticEnv()
	return v
}

// Load reads the configuration from the environment. When LEDGER_CONFIG
// names a file (any format viper reads), its values sit between the
// defaults and the environment.
func Load() (*Config, error) {
	v := newViper()
	if path := os.Getenv("LEDGER_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	return &Config{
		DataBackend:   strings.ToLower(strings.TrimSpace(v.GetString("data_backend"))),
		SQLiteDBPath:  v.GetString("sqlite_db_path"),
		PostgresURL:   v.GetString("postgres_url"),
		MemorySeedDir: v.GetString("memory_seed_dir"),

		AMQPURL:      v.GetString("amqp_url"),
		AMQPExchange: v.GetString("amqp_exchange"),
		AMQPQueue:    v.GetString("amqp_queue"),

		GoogleSpreadsheetID:      v.GetString("google_spreadsheet_id"),
		GoogleServiceAccountFile: v.GetString("google_service_account_file"),

		Currency: strings.ToUpper(strings.TrimSpace(v.GetString("currency"))),
		LogLevel: strings.ToLower(strings.TrimSpace(v.GetString("log_level"))),

		ProvisionCacheSize: v.GetInt("provision_cache_size"),
		ProvisionCacheTTL:  v.GetDuration("provision_cache_ttl"),
	}, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.DataBackend == "postgres" {
		if c.PostgresURL == "" {
			errors = append(errors, "POSTGRES_URL is required when using postgres backend")
		} else if u, err := url.Parse(c.PostgresURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid Postgres URL: %v", err))
		} else if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			errors = append(errors, fmt.Sprintf("invalid Postgres URL scheme '%s': must be 'postgres' or 'postgresql'", u.Scheme))
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}

	if money.GetCurrency(c.Currency) == nil {
		errors = append(errors, fmt.Sprintf("unknown currency '%s'", c.Currency))
	}

	if !slices.Contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLogLevels))
	}

	if c.ProvisionCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid provision cache size %d: must be at least 1", c.ProvisionCacheSize))
	} else if c.ProvisionCacheSize > 100000 {
		errors = append(errors, fmt.Sprintf("invalid provision cache size %d: must be at most 100000", c.ProvisionCacheSize))
	}

	if c.ProvisionCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid provision cache TTL %v: must be at least 1 second", c.ProvisionCacheTTL))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}
