package models

// ProcessedStatus tags the outcome of ingesting one remote record.
type ProcessedStatus string

const (
	// StatusDecrypted means the ciphertext decrypted cleanly and the record
	// carries real content.
	StatusDecrypted ProcessedStatus = "decrypted"
	// StatusDecryptionFailed means no key (active or fallback) opened the
	// ciphertext; the record is a placeholder retaining the ciphertext.
	StatusDecryptionFailed ProcessedStatus = "decryption_failed"
	// StatusCorrupted means a key authenticated but the plaintext could not
	// be decompressed; retrying with another key is pointless.
	StatusCorrupted ProcessedStatus = "corrupted"
	// StatusNoContent means the remote entry exists but has no retrievable
	// body; the record is a clean placeholder.
	StatusNoContent ProcessedStatus = "no_content"
)

// ProcessedResult pairs an ingested record with how it was obtained.
type ProcessedResult struct {
	Record Record
	Status ProcessedStatus
	// UsedFallbackKey is true when decryption succeeded only with a retired
	// key; the caller should schedule a re-upload under the current key.
	UsedFallbackKey bool
	// Unchanged is true when Record simply carries the existing local copy
	// forward because its readable content beat the remote entry. There is
	// nothing to persist and nothing was downloaded.
	Unchanged bool
}

// SyncResult accumulates the outcome of a full sync pass. Per-record errors
// are collected rather than aborting sibling work.
type SyncResult struct {
	Uploaded   int
	Downloaded int
	Deleted    int
	Errors     []error
}
