// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/logger"
	"github.com/tinfoilsh/tinfoil-chat-sub004/models"
)

// compressThreshold is the plaintext size above which payloads are
// gzip-compressed before encryption. Conversation bodies routinely run to
// hundreds of kilobytes; short titles and single-message records are not
// worth the gzip header overhead.
const compressThreshold = 1024

// gzipMagic is the fixed prefix of a gzip stream, sniffed on the decrypted
// plaintext to decide whether decompression is needed.
var gzipMagic = []byte{0x1f, 0x8b}

type keyManager struct {
	keys   KeyStore
	logger *logger.Logger

	mu      sync.RWMutex
	active  string
	history []string
}

// NewKeyManager constructs a [KeyManager] backed by keys for persistence and
// loads any previously persisted bundle into memory. A fresh device with no
// persisted bundle is not an error; the manager starts without an active key.
func NewKeyManager(ctx context.Context, keys KeyStore, log *logger.Logger) (KeyManager, error) {
	m := &keyManager{keys: keys, logger: log}

	bundle, err := keys.LoadKeyBundle(ctx)
	if err != nil {
		return nil, fmt.Errorf("load key bundle: %w", err)
	}
	m.active = bundle.Active
	m.history = bundle.History

	return m, nil
}

// GenerateKey implements [KeyManager].
func (m *keyManager) GenerateKey() (string, error) {
	return generateKey()
}

// SetKey implements [KeyManager]. The new state is persisted before it is
// committed to memory, so a persistence failure leaves the previous key
// fully in effect.
func (m *keyManager) SetKey(ctx context.Context, key string) error {
	if _, err := decodeKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if key == m.active {
		return nil
	}

	newHistory := pushHistory(m.history, m.active, key)
	bundle := models.KeyBundle{Active: key, History: newHistory}
	if err := m.keys.SaveKeyBundle(ctx, bundle); err != nil {
		m.logger.Err(err).Msg("failed to persist key bundle, keeping previous key")
		return fmt.Errorf("persist key bundle: %w", err)
	}

	m.active = key
	m.history = newHistory
	m.logger.Info().Int("fallback_keys", len(newHistory)).Msg("encryption key rotated")

	return nil
}

// ActiveKey implements [KeyManager].
func (m *keyManager) ActiveKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// FallbackKeys implements [KeyManager].
func (m *keyManager) FallbackKeys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.history))
	copy(out, m.history)
	return out
}

// HasKey implements [KeyManager].
func (m *keyManager) HasKey() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active != ""
}

// ClearKeys implements [KeyManager]. Persisted state is cleared first; on
// failure the in-memory keys are kept so the device does not silently lose
// the ability to decrypt its own data.
func (m *keyManager) ClearKeys(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.keys.ClearKeyBundle(ctx); err != nil {
		return fmt.Errorf("clear key bundle: %w", err)
	}

	m.active = ""
	m.history = nil
	return nil
}

// Encrypt implements [KeyManager].
func (m *keyManager) Encrypt(_ context.Context, v any) (models.EncryptedEnvelope, error) {
	m.mu.RLock()
	active := m.active
	m.mu.RUnlock()

	if active == "" {
		return models.EncryptedEnvelope{}, ErrNoKey
	}

	plaintext, err := json.Marshal(v)
	if err != nil {
		return models.EncryptedEnvelope{}, fmt.Errorf("marshal payload: %w", err)
	}

	if len(plaintext) >= compressThreshold {
		plaintext, err = gzipCompress(plaintext)
		if err != nil {
			return models.EncryptedEnvelope{}, fmt.Errorf("compress payload: %w", err)
		}
	}

	raw, err := decodeKey(active)
	if err != nil {
		return models.EncryptedEnvelope{}, err
	}

	gcm, err := newGCM(raw)
	if err != nil {
		return models.EncryptedEnvelope{}, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return models.EncryptedEnvelope{}, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	return models.EncryptedEnvelope{
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

// Decrypt implements [KeyManager].
func (m *keyManager) Decrypt(_ context.Context, env models.EncryptedEnvelope, target any) (bool, error) {
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return false, fmt.Errorf("decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return false, fmt.Errorf("decode ciphertext: %w", err)
	}

	m.mu.RLock()
	candidates := make([]string, 0, 1+len(m.history))
	if m.active != "" {
		candidates = append(candidates, m.active)
	}
	candidates = append(candidates, m.history...)
	m.mu.RUnlock()

	if len(candidates) == 0 {
		return false, ErrNoKey
	}

	for i, key := range candidates {
		raw, err := decodeKey(key)
		if err != nil {
			// A malformed key in the bundle cannot decrypt anything;
			// skip it rather than failing the whole attempt.
			continue
		}

		gcm, err := newGCM(raw)
		if err != nil {
			continue
		}

		plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
		if err != nil {
			continue // authentication failure, try the next key
		}

		if bytes.HasPrefix(plaintext, gzipMagic) {
			plaintext, err = gzipDecompress(plaintext)
			if err != nil {
				// The key authenticated, so the data itself is bad.
				// No other key is worth attempting.
				return i > 0, fmt.Errorf("%w: %v", ErrDataCorrupted, err)
			}
		}

		if err = json.Unmarshal(plaintext, target); err != nil {
			return i > 0, fmt.Errorf("%w: unmarshal plaintext: %v", ErrDataCorrupted, err)
		}

		return i > 0, nil
	}

	return false, ErrDecryptionFailed
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	return out, nil
}
