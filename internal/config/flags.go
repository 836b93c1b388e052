package config

import (
	"flag"
	"os"
	"time"
)

// ParseFlags reads the command-line flag layer of the configuration. Flags
// are parsed at most once per process; repeated calls return a fresh Config
// built from the already-parsed values.
func ParseFlags() *Config {
	cfg := &Config{}

	if flag.Lookup("a") == nil {
		flag.StringVar(&flagRemoteAddress, "a", "", "remote store base URL")
		flag.StringVar(&flagDatabaseDSN, "d", "", "sqlite database path")
		flag.StringVar(&flagConfigPath, "c", "", "path to JSON config file")
		flag.StringVar(&flagConfigPath, "config", "", "path to JSON config file")
		flag.DurationVar(&flagSyncInterval, "i", 0, "background sync interval")
	}
	if !flag.Parsed() {
		flag.CommandLine.Parse(os.Args[1:])
	}

	cfg.Remote.BaseURL = flagRemoteAddress
	cfg.Storage.DSN = flagDatabaseDSN
	cfg.JSONFilePath = flagConfigPath
	cfg.Sync.Interval = flagSyncInterval

	return cfg
}

var (
	flagRemoteAddress string
	flagDatabaseDSN   string
	flagConfigPath    string
	flagSyncInterval  time.Duration
)
