package crypto

import (
	"context"

	"github.com/tinfoilsh/tinfoil-chat-sub004/models"
)

// KeyStore persists the key bundle. Implemented by the store package's
// keyed-value area; defined here so the key manager owns its own contract.
type KeyStore interface {
	// LoadKeyBundle returns the persisted bundle. An empty bundle (no
	// active key) is not an error: it is the state of a fresh device.
	LoadKeyBundle(ctx context.Context) (models.KeyBundle, error)
	// SaveKeyBundle atomically replaces the persisted bundle.
	SaveKeyBundle(ctx context.Context, bundle models.KeyBundle) error
	// ClearKeyBundle removes all persisted key state.
	ClearKeyBundle(ctx context.Context) error
}

// KeyManager owns the symmetric encryption key, a bounded history of retired
// keys, and the encrypt/decrypt primitives with automatic fallback-key retry.
type KeyManager interface {
	// GenerateKey returns a fresh random 256-bit key in the textual
	// encoding accepted by SetKey. It does not install the key.
	GenerateKey() (string, error)

	// SetKey validates key, atomically replaces the active key, pushes the
	// previous active key onto the fallback history (if distinct), and
	// persists the bundle. On persistence failure the in-memory state is
	// left untouched so the manager never reports a key it cannot persist.
	SetKey(ctx context.Context, key string) error

	// ActiveKey returns the current key, or "" when none is set.
	ActiveKey() string

	// FallbackKeys returns the retired keys, most recently retired first.
	FallbackKeys() []string

	// HasKey reports whether an active key is installed.
	HasKey() bool

	// ClearKeys removes all in-memory and persisted key state. Ciphertext
	// encrypted under cleared keys becomes unrecoverable.
	ClearKeys(ctx context.Context) error

	// Encrypt serializes v, compresses large payloads, and encrypts with
	// the active key under a fresh random nonce. Two calls with identical
	// input yield different envelopes.
	Encrypt(ctx context.Context, v any) (models.EncryptedEnvelope, error)

	// Decrypt opens env, trying the active key first and then each
	// fallback key most-recently-retired first, and unmarshals the
	// plaintext into target. usedFallback is true when a non-active key
	// succeeded. Returns ErrDecryptionFailed when no key authenticates and
	// ErrDataCorrupted when decompression of an authenticated payload
	// fails.
	Decrypt(ctx context.Context, env models.EncryptedEnvelope, target any) (usedFallback bool, err error)
}
