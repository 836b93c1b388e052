package crypto

import "errors"

var (
	// ErrDecryptionFailed means no key, active or fallback, authenticated
	// the ciphertext. The record should degrade to a placeholder and be
	// retried after the next key change.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrDataCorrupted means a key authenticated but the plaintext could
	// not be decompressed or parsed. Stronger signal than
	// ErrDecryptionFailed: retrying with a different key will not help.
	ErrDataCorrupted = errors.New("data corrupted")

	// ErrInvalidKeyEncoding means the textual key did not match the
	// expected prefix + hex encoding.
	ErrInvalidKeyEncoding = errors.New("invalid key encoding")

	// ErrNoKey means an operation requiring an active key ran before one
	// was set.
	ErrNoKey = errors.New("no encryption key set")
)
