package adapter

import "errors"

// Sentinel errors for the remote store surface. Callers branch with
// errors.Is; the wrapped message keeps the server's own wording for logs.
var (
	// ErrBadRequest: the server rejected the request shape.
	ErrBadRequest = errors.New("remote store rejected request")

	// ErrAuthRequired covers both a missing/expired credential and one the
	// server refuses to honor. Sync reacts to either by pausing silently,
	// the same path as having no token at all.
	ErrAuthRequired = errors.New("remote store authentication required")

	// ErrNotFound: the record does not exist remotely. DeleteRecord treats
	// this as success.
	ErrNotFound = errors.New("remote record not found")

	// ErrConflict: the server holds a newer version of the record.
	ErrConflict = errors.New("remote record conflict")

	// ErrRemoteUnavailable covers the whole 5xx family. The engine does not
	// distinguish server failures; every one of them means "retry on the
	// next pass".
	ErrRemoteUnavailable = errors.New("remote store unavailable")
)
