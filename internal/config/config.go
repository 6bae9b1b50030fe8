package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the top-level application configuration
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Station   StationConfig   `toml:"station"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Logging   LoggingConfig   `toml:"logging"`
}

// ServerConfig holds the HTTP server settings
type ServerConfig struct {
	Host               string   `toml:"host"`
	Port               int      `toml:"port"`
	ReadTimeoutSecs    int      `toml:"read_timeout_secs"`
	WriteTimeoutSecs   int      `toml:"write_timeout_secs"`
	IdleTimeoutSecs    int      `toml:"idle_timeout_secs"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
}

// DatabaseConfig holds the SQLite settings
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// StationConfig describes the patrol site: the fixed area vocabulary
// rounds must be drawn from and the zone used for calendar bucketing.
type StationConfig struct {
	Name     string   `toml:"name"`
	Areas    []string `toml:"areas"`
	Timezone string   `toml:"timezone"`
}

// RateLimitConfig bounds the API event intake
type RateLimitConfig struct {
	RequestsPerSecond int `toml:"requests_per_second"`
	Burst             int `toml:"burst"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // json, console
}

// Load reads the configuration from a TOML file, applies defaults for
// missing values, applies environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeoutSecs:  15,
			WriteTimeoutSecs: 30,
			IdleTimeoutSecs:  60,
		},
		Database: DatabaseConfig{
			Path: "fieldlog.db",
		},
		Station: StationConfig{
			Name: "default",
			Areas: []string{
				"Perimeter",
				"Parking",
				"Slope 03",
				"Slope 05",
			},
			Timezone: "Local",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func (c *Config) loadFromEnv() {
	if port := os.Getenv("FIELDLOG_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if path := os.Getenv("FIELDLOG_DB"); path != "" {
		c.Database.Path = path
	}
	if level := os.Getenv("FIELDLOG_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if tz := os.Getenv("FIELDLOG_TZ"); tz != "" {
		c.Station.Timezone = tz
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if len(c.Station.Areas) == 0 {
		return fmt.Errorf("station must declare at least one patrol area")
	}
	if c.RateLimit.RequestsPerSecond < 1 {
		return fmt.Errorf("rate limit must be at least 1 request per second")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Station.Timezone, err)
	}
	return nil
}

// Location resolves the configured station timezone
func (c *Config) Location() (*time.Location, error) {
	if c.Station.Timezone == "" || c.Station.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Station.Timezone)
}

// ReadTimeout returns the server read timeout as a duration
func (c *ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSecs) * time.Second
}

// WriteTimeout returns the server write timeout as a duration
func (c *ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSecs) * time.Second
}

// IdleTimeout returns the server idle timeout as a duration
func (c *ServerConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSecs) * time.Second
}

// Addr returns the host:port the server listens on
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
