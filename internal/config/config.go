package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"biztrack/internal/session"
)

const (
	DefaultBaseURL     = "http://138.197.140.143:3000"
	DefaultMetricsAddr = ":9090"
)

type Config struct {
	// Backend
	BaseURL     string        `toml:"base_url"`
	HTTPTimeout time.Duration `toml:"http_timeout"`

	// Session
	SessionBackend string `toml:"session_backend"`
	SessionDBPath  string `toml:"session_db"`

	// Lookup cache; a zero TTL disables it
	LookupCacheTTL  time.Duration `toml:"lookup_cache_ttl"`
	LookupCacheSize int           `toml:"lookup_cache_size"`

	// AMQP; empty URL disables event publishing
	AMQPURL      string `toml:"amqp_url"`
	AMQPExchange string `toml:"amqp_exchange"`
	AMQPQueue    string `toml:"amqp_queue"`

	// Google Sheets export
	GoogleSpreadsheetID string `toml:"google_spreadsheet_id"`

	// Watch
	MetricsAddr          string        `toml:"metrics_addr"`
	SubscriptionInterval time.Duration `toml:"subscription_interval"`

	LogLevel string `toml:"log_level"`
}

// Load reads the configuration from the environment.
func Load() *Config {
	c := defaults()
	c.applyEnv()
	return c
}

// LoadFile reads path as TOML on top of the defaults, then applies the
// environment. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	c := defaults()
	if path != "" {
		if _, err := toml.DecodeFile(expandHome(path), c); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	c.applyEnv()
	return c, nil
}

// Path is the config file location: BIZTRACK_CONFIG or ~/.biztrack/config.toml.
func Path() string {
	return expandHome(getEnv("BIZTRACK_CONFIG", "~/.biztrack/config.toml"))
}

func defaults() *Config {
	return &Config{
		BaseURL:              DefaultBaseURL,
		HTTPTimeout:          30 * time.Second,
		SessionBackend:       string(session.SQLiteBackend),
		SessionDBPath:        "~/.biztrack/session.db",
		LookupCacheSize:      64,
		AMQPExchange:         "biztrack",
		AMQPQueue:            "record_changes",
		MetricsAddr:          DefaultMetricsAddr,
		SubscriptionInterval: 5 * time.Minute,
		LogLevel:             "warn",
	}
}

func (c *Config) applyEnv() {
	c.BaseURL = getEnv("BIZTRACK_BASE_URL", c.BaseURL)
	c.HTTPTimeout = getEnvDuration("BIZTRACK_HTTP_TIMEOUT", c.HTTPTimeout)

	c.SessionBackend = getEnv("BIZTRACK_SESSION_BACKEND", c.SessionBackend)
	c.SessionDBPath = expandHome(getEnv("BIZTRACK_SESSION_DB", c.SessionDBPath))

	c.LookupCacheTTL = getEnvDuration("BIZTRACK_LOOKUP_CACHE_TTL", c.LookupCacheTTL)
	c.LookupCacheSize = getEnvInt("BIZTRACK_LOOKUP_CACHE_SIZE", c.LookupCacheSize)

	c.AMQPURL = getEnv("AMQP_URL", c.AMQPURL)
	c.AMQPExchange = getEnv("AMQP_EXCHANGE", c.AMQPExchange)
	c.AMQPQueue = getEnv("AMQP_QUEUE", c.AMQPQueue)

	c.GoogleSpreadsheetID = getEnv("GOOGLE_SPREADSHEET_ID", c.GoogleSpreadsheetID)

	c.MetricsAddr = getEnv("BIZTRACK_METRICS_ADDR", c.MetricsAddr)
	c.SubscriptionInterval = getEnvDuration("BIZTRACK_SUBSCRIPTION_INTERVAL", c.SubscriptionInterval)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Session returns the session store settings.
func (c *Config) Session() session.Config {
	return session.Config{Backend: session.BackendType(c.SessionBackend), DBPath: c.SessionDBPath}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if u, err := url.Parse(c.BaseURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid base URL '%s': %v", c.BaseURL, err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid base URL scheme '%s': must be 'http' or 'https'", u.Scheme))
	} else if u.Host == "" {
		errors = append(errors, fmt.Sprintf("invalid base URL '%s': missing host", c.BaseURL))
	}

	if c.HTTPTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid HTTP timeout %v: must be at least 1 second", c.HTTPTimeout))
	} else if c.HTTPTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid HTTP timeout %v: must be at most 5 minutes", c.HTTPTimeout))
	}

	backend := session.BackendType(c.SessionBackend)
	if !backend.IsValid() {
		errors = append(errors, fmt.Sprintf("invalid session backend '%s': must be one of [sqlite memory]", c.SessionBackend))
	}
	if backend == session.SQLiteBackend && c.SessionDBPath == "" {
		errors = append(errors, "session database path cannot be empty when using sqlite backend")
	}

	if c.LookupCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid lookup cache TTL %v: must not be negative", c.LookupCacheTTL))
	}
	if c.LookupCacheTTL > 0 && c.LookupCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid lookup cache size %d: must be at least 1", c.LookupCacheSize))
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

	if _, port, err := net.SplitHostPort(c.MetricsAddr); err != nil {
		errors = append(errors, fmt.Sprintf("invalid metrics address '%s': %v", c.MetricsAddr, err))
	} else if p, err := strconv.Atoi(port); err != nil || p < 1 || p > 65535 {
		errors = append(errors, fmt.Sprintf("invalid metrics port '%s': must be between 1 and 65535", port))
	}

	if c.SubscriptionInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid subscription interval %v: must be at least 1 second", c.SubscriptionInterval))
	} else if c.SubscriptionInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid subscription interval %v: must be at most 24 hours", c.SubscriptionInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
