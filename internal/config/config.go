// SPDX-License-Identifier: Apache-2.0

package config

import (
	"time"
)

// Config is the top-level configuration container for the sync engine. It is
// populated by merging values from command-line flags, environment
// variables, and an optional JSON file (later sources win).
//
// Struct tags:
//   - envPrefix: prefix applied to all nested env tag lookups (caarlos0/env).
//   - env: direct environment variable name for scalar fields.
type Config struct {
	// App holds application-level settings.
	App App `envPrefix:"APP_"`

	// Remote holds the remote object-store endpoint settings.
	Remote Remote `envPrefix:"REMOTE_"`

	// Storage holds the on-device persistence settings.
	Storage Storage `envPrefix:"STORAGE_"`

	// Sync holds reconciliation tuning knobs.
	Sync Sync `envPrefix:"SYNC_"`

	// Metrics holds the Prometheus listener settings.
	Metrics Metrics `envPrefix:"METRICS_"`

	// JSONFilePath is the optional path to a JSON configuration file.
	// When non-empty, the file is parsed and merged on top of the values
	// already loaded from flags and environment variables.
	// Populated via the CONFIG environment variable or the -c / -config flag.
	JSONFilePath string `env:"CONFIG"`
}

// App holds application-level settings.
type App struct {
	// LogLevel is the zerolog level name ("debug", "info", ...).
	// Env: APP_LOG_LEVEL
	LogLevel string `env:"LOG_LEVEL"`

	// AuthToken is the bearer credential handed over by the external auth
	// collaborator. Empty means anonymous/local-only usage: sync silently
	// no-ops instead of erroring.
	// Env: APP_AUTH_TOKEN
	AuthToken string `env:"AUTH_TOKEN"`
}

// Remote holds the remote object-store endpoint settings.
type Remote struct {
	// BaseURL is the remote store endpoint (e.g. "https://sync.example.com").
	// Env: REMOTE_BASE_URL
	BaseURL string `env:"BASE_URL"`

	// RequestTimeout bounds a single outbound request (e.g. "30s").
	// Env: REMOTE_REQUEST_TIMEOUT
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`
}

// Storage holds on-device persistence settings.
type Storage struct {
	// DSN is the sqlite database path; ":memory:" for an ephemeral store.
	// Env: STORAGE_DATABASE_URI
	DSN string `env:"DATABASE_URI"`
}

// Sync holds reconciliation tuning knobs.
type Sync struct {
	// Interval is how often the background job runs a full sync.
	// Env: SYNC_INTERVAL
	Interval time.Duration `env:"INTERVAL"`

	// PageSize is the remote listing page size, which also bounds the
	// scope of remote-absence deletions.
	// Env: SYNC_PAGE_SIZE
	PageSize int `env:"PAGE_SIZE"`

	// MinUploadSpacing is the minimum gap between consecutive
	// single-record uploads, smoothing bursts of local edits.
	// Env: SYNC_MIN_UPLOAD_SPACING
	MinUploadSpacing time.Duration `env:"MIN_UPLOAD_SPACING"`

	// RetryBatchSize bounds each decrypt-retry batch after a key change.
	// Env: SYNC_RETRY_BATCH_SIZE
	RetryBatchSize int `env:"RETRY_BATCH_SIZE"`
}

// Metrics holds the Prometheus listener settings.
type Metrics struct {
	// Address is the listen address for /metrics; empty disables the
	// listener.
	// Env: METRICS_ADDRESS
	Address string `env:"ADDRESS"`
}

// defaults returns the baseline configuration merged under all other sources.
func defaults() *Config {
	return &Config{
		App: App{LogLevel: "info"},
		Remote: Remote{
			RequestTimeout: 30 * time.Second,
		},
		Storage: Storage{DSN: "chatsync.db"},
		Sync: Sync{
			Interval:         5 * time.Minute,
			PageSize:         100,
			MinUploadSpacing: 2 * time.Second,
			RetryBatchSize:   10,
		},
	}
}

// GetConfig builds the effective configuration: defaults, then flags, then
// environment variables, then the optional JSON file, each layer overriding
// the previous one. The result is validated before being returned.
func GetConfig() (*Config, error) {
	return newConfigBuilder().
		withDefaults().
		withFlags().
		withEnv().
		withJSON().
		build()
}
