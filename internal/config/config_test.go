package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_DefaultsOnly(t *testing.T) {
	cfg, err := newConfigBuilder().withDefaults().build()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "chatsync.db", cfg.Storage.DSN)
	assert.Equal(t, 30*time.Second, cfg.Remote.RequestTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 100, cfg.Sync.PageSize)
	assert.Equal(t, 2*time.Second, cfg.Sync.MinUploadSpacing)
	assert.Equal(t, 10, cfg.Sync.RetryBatchSize)
}

func TestBuild_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("APP_LOG_LEVEL", "debug")
	t.Setenv("REMOTE_BASE_URL", "https://sync.example.com")
	t.Setenv("SYNC_INTERVAL", "90s")
	t.Setenv("SYNC_PAGE_SIZE", "42")

	cfg, err := newConfigBuilder().withDefaults().withEnv().build()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "https://sync.example.com", cfg.Remote.BaseURL)
	assert.Equal(t, 90*time.Second, cfg.Sync.Interval)
	assert.Equal(t, 42, cfg.Sync.PageSize)

	// Untouched knobs keep their defaults.
	assert.Equal(t, "chatsync.db", cfg.Storage.DSN)
	assert.Equal(t, 10, cfg.Sync.RetryBatchSize)
}

func TestBuild_JSONOverridesEnv(t *testing.T) {
	jsonPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{
		"app": {"log_level": "warn"},
		"remote": {"base_url": "https://json.example.com", "request_timeout": "10s"},
		"sync": {"interval": "15m"}
	}`), 0o600))

	t.Setenv("APP_LOG_LEVEL", "debug")
	t.Setenv("REMOTE_BASE_URL", "https://env.example.com")
	t.Setenv("CONFIG", jsonPath)

	cfg, err := newConfigBuilder().withDefaults().withEnv().withJSON().build()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.App.LogLevel)
	assert.Equal(t, "https://json.example.com", cfg.Remote.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Remote.RequestTimeout)
	assert.Equal(t, 15*time.Minute, cfg.Sync.Interval)
}

func TestBuild_MissingJSONFileFails(t *testing.T) {
	t.Setenv("CONFIG", filepath.Join(t.TempDir(), "absent.json"))

	_, err := newConfigBuilder().withDefaults().withEnv().withJSON().build()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := defaults()
	require.NoError(t, cfg.validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty dsn", mutate: func(c *Config) { c.Storage.DSN = "" }},
		{name: "zero request timeout", mutate: func(c *Config) { c.Remote.RequestTimeout = 0 }},
		{name: "zero sync interval", mutate: func(c *Config) { c.Sync.Interval = 0 }},
		{name: "zero page size", mutate: func(c *Config) { c.Sync.PageSize = 0 }},
		{name: "zero retry batch", mutate: func(c *Config) { c.Sync.RetryBatchSize = 0 }},
		{name: "negative upload spacing", mutate: func(c *Config) { c.Sync.MinUploadSpacing = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			broken := defaults()
			tt.mutate(broken)
			assert.ErrorIs(t, broken.validate(), ErrInvalidConfig)
		})
	}
}

func TestDurationUnmarshal(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"1h30m"`)))
	assert.Equal(t, 90*time.Minute, time.Duration(d))

	require.NoError(t, d.UnmarshalJSON([]byte(`5000000000`)))
	assert.Equal(t, 5*time.Second, time.Duration(d))

	assert.Error(t, d.UnmarshalJSON([]byte(`"not a duration"`)))
}
