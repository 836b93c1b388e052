package service

import "errors"

var (
	// ErrSyncInProgress rejects a full sync requested while another one is
	// running. Callers should not retry immediately; the running pass
	// covers their records.
	ErrSyncInProgress = errors.New("full sync already in progress")
)
