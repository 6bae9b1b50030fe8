package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "fieldlog.db", cfg.Database.Path)
	assert.Equal(t, []string{"Perimeter", "Parking", "Slope 03", "Slope 05"}, cfg.Station.Areas)
	assert.Equal(t, 50, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout())
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout())
	assert.Equal(t, 60*time.Second, cfg.Server.IdleTimeout())
}

func TestLoadFromFile(t *testing.T) {
	content := `
[server]
port = 9090

[station]
name = "north-ridge"
areas = ["Ridge", "Valley"]
timezone = "UTC"

[logging]
level = "debug"
`
	path := filepath.Join(t.TempDir(), "fieldlog.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "north-ridge", cfg.Station.Name)
	assert.Equal(t, []string{"Ridge", "Valley"}, cfg.Station.Areas)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Unset sections keep their defaults.
	assert.Equal(t, "fieldlog.db", cfg.Database.Path)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FIELDLOG_PORT", "7070")
	t.Setenv("FIELDLOG_DB", "/tmp/override.db")
	t.Setenv("FIELDLOG_LOG_LEVEL", "warn")
	t.Setenv("FIELDLOG_TZ", "UTC")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "UTC", cfg.Station.Timezone)
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 0 }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"no areas", func(c *Config) { c.Station.Areas = nil }},
		{"zero rate limit", func(c *Config) { c.RateLimit.RequestsPerSecond = 0 }},
		{"bogus timezone", func(c *Config) { c.Station.Timezone = "Mars/Olympus" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaults()
			tc.mutate(cfg)
			assert.Error(t, cfg.validate())
		})
	}
}

func TestLocationDefaultsToLocal(t *testing.T) {
	cfg := defaults()
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)
}
