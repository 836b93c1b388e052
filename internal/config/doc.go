// Package config loads, merges, and validates the sync engine configuration
// from defaults, command-line flags, environment variables, and an optional
// JSON file. Later sources override earlier ones.
package config
