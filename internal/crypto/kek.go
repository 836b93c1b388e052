// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"

	"github.com/tinfoilsh/tinfoil-chat-sub004/models"
	"golang.org/x/crypto/argon2"
)

// Key-bundle wrapping for the platform-credential path. The caller supplies
// an opaque platform-derived secret (e.g. from a passkey assertion); how the
// secret is acquired is outside this package. The wrapped blob layout is
// salt (16 bytes) ‖ nonce (12 bytes) ‖ ciphertext, so unwrap needs nothing
// but the blob and the secret.

const kekSaltLen = 16

// Argon2id parameters per the OWASP (2024) recommendation.
const (
	kekArgonTime    = 1
	kekArgonMemory  = 64 * 1024 // 64 MiB
	kekArgonThreads = 4
	kekArgonKeyLen  = 32 // 256 bits
)

// WrapKeyBundle encrypts bundle with a KEK derived from secret and a fresh
// random salt. The result is safe to hand to the remote store: without the
// platform secret it reveals nothing about the keys inside.
func WrapKeyBundle(bundle models.KeyBundle, secret []byte) ([]byte, error) {
	plaintext, err := json.Marshal(bundle)
	if err != nil {
		return nil, fmt.Errorf("marshal key bundle: %w", err)
	}

	salt := make([]byte, kekSaltLen)
	if _, err = io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	kek := argon2.IDKey(secret, salt, kekArgonTime, kekArgonMemory, kekArgonThreads, kekArgonKeyLen)
	gcm, err := newGCM(kek)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	blob := append(salt, nonce...)
	return gcm.Seal(blob, nonce, plaintext, nil), nil
}

// UnwrapKeyBundle reverses [WrapKeyBundle]. A wrong secret surfaces as
// ErrDecryptionFailed.
func UnwrapKeyBundle(blob, secret []byte) (models.KeyBundle, error) {
	if len(blob) < kekSaltLen {
		return models.KeyBundle{}, fmt.Errorf("%w: blob too short", ErrDecryptionFailed)
	}
	salt, rest := blob[:kekSaltLen], blob[kekSaltLen:]

	kek := argon2.IDKey(secret, salt, kekArgonTime, kekArgonMemory, kekArgonThreads, kekArgonKeyLen)
	gcm, err := newGCM(kek)
	if err != nil {
		return models.KeyBundle{}, err
	}

	if len(rest) < gcm.NonceSize() {
		return models.KeyBundle{}, fmt.Errorf("%w: blob too short", ErrDecryptionFailed)
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return models.KeyBundle{}, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	var bundle models.KeyBundle
	if err = json.Unmarshal(plaintext, &bundle); err != nil {
		return models.KeyBundle{}, fmt.Errorf("%w: unmarshal bundle: %v", ErrDataCorrupted, err)
	}

	return bundle, nil
}
