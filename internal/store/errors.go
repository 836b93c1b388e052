package store

import "errors"

var (
	ErrRecordNotFound = errors.New("record not found")

	// ErrBlankRecord rejects persisting an in-progress shell with no
	// user-visible content.
	ErrBlankRecord = errors.New("refusing to persist blank record")
)
