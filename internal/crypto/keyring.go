// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

const (
	// keyPrefix marks the textual key encoding. The remainder is lowercase
	// hex: each key byte maps to exactly two symbols, so a well-formed key
	// body always has even length.
	keyPrefix = "ek_"

	keyBytes = 32 // AES-256

	// maxFallbackKeys bounds the retired-key history. Oldest keys are
	// evicted first so many rotations cannot grow the bundle without bound.
	maxFallbackKeys = 5
)

// generateKey returns a fresh random key in the textual encoding.
func generateKey() (string, error) {
	raw := make([]byte, keyBytes)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("read random key material: %w", err)
	}
	return keyPrefix + hex.EncodeToString(raw), nil
}

// ValidateKey checks that key is well formed without installing it. Useful
// for validating a user-entered key before a SetKey round trip.
func ValidateKey(key string) error {
	_, err := decodeKey(key)
	return err
}

// decodeKey validates the textual encoding and returns the raw key bytes.
func decodeKey(key string) ([]byte, error) {
	body, ok := strings.CutPrefix(key, keyPrefix)
	if !ok {
		return nil, fmt.Errorf("%w: missing %q prefix", ErrInvalidKeyEncoding, keyPrefix)
	}
	if len(body)%2 != 0 {
		return nil, fmt.Errorf("%w: odd-length key body", ErrInvalidKeyEncoding)
	}

	raw, err := hex.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyEncoding, err)
	}
	if len(raw) != keyBytes {
		return nil, fmt.Errorf("%w: key is %d bytes, want %d", ErrInvalidKeyEncoding, len(raw), keyBytes)
	}

	return raw, nil
}

// pushHistory prepends retired onto history, removing any existing
// occurrence of retired or of the new active key, and truncates to
// maxFallbackKeys (oldest evicted first).
func pushHistory(history []string, retired, active string) []string {
	out := make([]string, 0, len(history)+1)
	if retired != "" && retired != active {
		out = append(out, retired)
	}
	for _, k := range history {
		if k == retired || k == active || k == "" {
			continue
		}
		out = append(out, k)
	}
	if len(out) > maxFallbackKeys {
		out = out[:maxFallbackKeys]
	}
	return out
}
