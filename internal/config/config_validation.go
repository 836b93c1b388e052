package config

import (
	"errors"
	"fmt"
)

// validate checks invariants that would otherwise surface as confusing
// runtime failures deep inside the sync engine.
func (c *Config) validate() error {
	var errs []error

	if c.Storage.DSN == "" {
		errs = append(errs, fmt.Errorf("%w: storage dsn is empty", ErrInvalidConfig))
	}
	if c.Remote.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: remote request timeout must be positive", ErrInvalidConfig))
	}
	if c.Sync.Interval <= 0 {
		errs = append(errs, fmt.Errorf("%w: sync interval must be positive", ErrInvalidConfig))
	}
	if c.Sync.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: sync page size must be positive", ErrInvalidConfig))
	}
	if c.Sync.RetryBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: retry batch size must be positive", ErrInvalidConfig))
	}
	if c.Sync.MinUploadSpacing < 0 {
		errs = append(errs, fmt.Errorf("%w: min upload spacing must not be negative", ErrInvalidConfig))
	}

	return errors.Join(errs...)
}
