package crypto

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/logger"
	"github.com/tinfoilsh/tinfoil-chat-sub004/models"
)

// memKeyStore is an in-memory KeyStore for tests.
type memKeyStore struct {
	bundle  models.KeyBundle
	saveErr error
}

func (m *memKeyStore) LoadKeyBundle(context.Context) (models.KeyBundle, error) {
	return m.bundle, nil
}

func (m *memKeyStore) SaveKeyBundle(_ context.Context, bundle models.KeyBundle) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.bundle = bundle
	return nil
}

func (m *memKeyStore) ClearKeyBundle(context.Context) error {
	m.bundle = models.KeyBundle{}
	return nil
}

func newTestManager(t *testing.T) (KeyManager, *memKeyStore) {
	t.Helper()
	ks := &memKeyStore{}
	m, err := NewKeyManager(context.Background(), ks, logger.Nop())
	if err != nil {
		t.Fatalf("NewKeyManager error: %v", err)
	}
	return m, ks
}

func TestGenerateKey_FormatAndRandomness(t *testing.T) {
	m, _ := newTestManager(t)

	k1, err := m.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey error: %v", err)
	}
	k2, err := m.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey error: %v", err)
	}

	if !strings.HasPrefix(k1, "ek_") {
		t.Fatalf("key %q does not carry the ek_ prefix", k1)
	}
	if len(k1) != len("ek_")+64 {
		t.Fatalf("key length = %d, want %d", len(k1), len("ek_")+64)
	}
	if k1 == k2 {
		t.Fatalf("expected generated keys to differ")
	}
	if err = m.SetKey(context.Background(), k1); err != nil {
		t.Fatalf("generated key rejected by SetKey: %v", err)
	}
}

func TestValidateKey(t *testing.T) {
	if err := ValidateKey("ek_" + strings.Repeat("ab", 32)); err != nil {
		t.Fatalf("ValidateKey rejected a well-formed key: %v", err)
	}
	if err := ValidateKey("ek_abc"); !errors.Is(err, ErrInvalidKeyEncoding) {
		t.Fatalf("ValidateKey = %v, want ErrInvalidKeyEncoding", err)
	}
}

func TestSetKey_RejectsMalformedKeys(t *testing.T) {
	m, _ := newTestManager(t)

	cases := []string{
		"",
		"no-prefix",
		"ek_abc",                           // odd length
		"ek_zz" + strings.Repeat("aa", 31), // non-hex
		"ek_" + strings.Repeat("ab", 16),   // too short
		"ek_" + strings.Repeat("ab", 40),   // too long
	}
	for _, key := range cases {
		if err := m.SetKey(context.Background(), key); !errors.Is(err, ErrInvalidKeyEncoding) {
			t.Fatalf("SetKey(%q) = %v, want ErrInvalidKeyEncoding", key, err)
		}
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	key, _ := m.GenerateKey()
	if err := m.SetKey(ctx, key); err != nil {
		t.Fatalf("SetKey error: %v", err)
	}

	payload := models.Payload{
		Title: "quarterly numbers",
		Messages: []models.Message{
			{Role: models.RoleUser, Content: "hello"},
			{Role: models.RoleAssistant, Content: "hi", Thinking: "greeting"},
		},
	}

	env, err := m.Encrypt(ctx, payload)
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}

	var got models.Payload
	usedFallback, err := m.Decrypt(ctx, env, &got)
	if err != nil {
		t.Fatalf("Decrypt error: %v", err)
	}
	if usedFallback {
		t.Fatalf("active-key decrypt reported fallback usage")
	}
	if got.Title != payload.Title || len(got.Messages) != 2 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestEncrypt_FreshNoncePerCall(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	key, _ := m.GenerateKey()
	if err := m.SetKey(ctx, key); err != nil {
		t.Fatalf("SetKey error: %v", err)
	}

	e1, err := m.Encrypt(ctx, "same input")
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}
	e2, err := m.Encrypt(ctx, "same input")
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}

	if e1.Nonce == e2.Nonce {
		t.Fatalf("expected fresh nonce per call")
	}
	if e1.Ciphertext == e2.Ciphertext {
		t.Fatalf("expected differing ciphertexts for identical input")
	}
}

func TestEncrypt_CompressesLargePayloads(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	key, _ := m.GenerateKey()
	if err := m.SetKey(ctx, key); err != nil {
		t.Fatalf("SetKey error: %v", err)
	}

	large := strings.Repeat("the same sentence over and over ", 500)
	env, err := m.Encrypt(ctx, large)
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}

	// Highly repetitive input far above the threshold must come out smaller
	// than its JSON form if compression happened.
	if len(env.Ciphertext) >= len(large) {
		t.Fatalf("ciphertext %d bytes, plaintext %d bytes: payload was not compressed", len(env.Ciphertext), len(large))
	}

	var got string
	if _, err = m.Decrypt(ctx, env, &got); err != nil {
		t.Fatalf("Decrypt error: %v", err)
	}
	if got != large {
		t.Fatalf("compressed round trip mismatch")
	}
}

func TestDecrypt_FallbackKeyAfterRotation(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	oldKey, _ := m.GenerateKey()
	if err := m.SetKey(ctx, oldKey); err != nil {
		t.Fatalf("SetKey error: %v", err)
	}
	env, err := m.Encrypt(ctx, "sealed under the old key")
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}

	newKey, _ := m.GenerateKey()
	if err = m.SetKey(ctx, newKey); err != nil {
		t.Fatalf("SetKey error: %v", err)
	}

	var got string
	usedFallback, err := m.Decrypt(ctx, env, &got)
	if err != nil {
		t.Fatalf("Decrypt error: %v", err)
	}
	if !usedFallback {
		t.Fatalf("expected fallback key usage after rotation")
	}
	if got != "sealed under the old key" {
		t.Fatalf("fallback round trip mismatch: %q", got)
	}
}

func TestDecrypt_NoKeyOpens(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	k1, _ := m.GenerateKey()
	if err := m.SetKey(ctx, k1); err != nil {
		t.Fatalf("SetKey error: %v", err)
	}
	env, err := m.Encrypt(ctx, "secret")
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}

	// A manager that never saw k1 cannot open the envelope.
	other, _ := newTestManager(t)
	k2, _ := other.GenerateKey()
	if err = other.SetKey(ctx, k2); err != nil {
		t.Fatalf("SetKey error: %v", err)
	}

	var got string
	if _, err = other.Decrypt(ctx, env, &got); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("Decrypt = %v, want ErrDecryptionFailed", err)
	}
}

func TestDecrypt_WithoutAnyKey(t *testing.T) {
	m, _ := newTestManager(t)

	var got string
	_, err := m.Decrypt(context.Background(), models.EncryptedEnvelope{Nonce: "AAAA", Ciphertext: "AAAA"}, &got)
	if !errors.Is(err, ErrNoKey) {
		t.Fatalf("Decrypt = %v, want ErrNoKey", err)
	}
}

func TestDecrypt_AuthenticatedButUndecodable(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	key, _ := m.GenerateKey()
	if err := m.SetKey(ctx, key); err != nil {
		t.Fatalf("SetKey error: %v", err)
	}

	// The key authenticates, but the plaintext is a JSON string and cannot
	// unmarshal into a struct. That is data damage, not a wrong key.
	env, err := m.Encrypt(ctx, "just a string")
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}

	var target models.Payload
	if _, err = m.Decrypt(ctx, env, &target); !errors.Is(err, ErrDataCorrupted) {
		t.Fatalf("Decrypt = %v, want ErrDataCorrupted", err)
	}
}

func TestSetKey_BoundedHistory(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	var keys []string
	for i := 0; i < 8; i++ {
		k, _ := m.GenerateKey()
		keys = append(keys, k)
		if err := m.SetKey(ctx, k); err != nil {
			t.Fatalf("SetKey error: %v", err)
		}
	}

	fallbacks := m.FallbackKeys()
	if len(fallbacks) != maxFallbackKeys {
		t.Fatalf("fallback count = %d, want %d", len(fallbacks), maxFallbackKeys)
	}
	// Most recently retired first.
	if fallbacks[0] != keys[6] {
		t.Fatalf("fallbacks[0] = %q, want the most recently retired key", fallbacks[0])
	}
	for _, k := range fallbacks {
		if k == keys[0] || k == keys[1] {
			t.Fatalf("oldest keys should have been evicted, found %q", k)
		}
	}
}

func TestSetKey_SameKeyIsNoop(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	key, _ := m.GenerateKey()
	if err := m.SetKey(ctx, key); err != nil {
		t.Fatalf("SetKey error: %v", err)
	}
	if err := m.SetKey(ctx, key); err != nil {
		t.Fatalf("SetKey error: %v", err)
	}

	if len(m.FallbackKeys()) != 0 {
		t.Fatalf("re-setting the active key must not grow the history")
	}
}

func TestSetKey_PersistFailureKeepsPreviousKey(t *testing.T) {
	m, ks := newTestManager(t)
	ctx := context.Background()

	first, _ := m.GenerateKey()
	if err := m.SetKey(ctx, first); err != nil {
		t.Fatalf("SetKey error: %v", err)
	}

	ks.saveErr = fmt.Errorf("disk full")
	second, _ := m.GenerateKey()
	if err := m.SetKey(ctx, second); err == nil {
		t.Fatalf("expected SetKey to fail when persistence fails")
	}

	if m.ActiveKey() != first {
		t.Fatalf("active key changed despite persistence failure")
	}
	if len(m.FallbackKeys()) != 0 {
		t.Fatalf("history changed despite persistence failure")
	}
}

func TestClearKeys(t *testing.T) {
	m, ks := newTestManager(t)
	ctx := context.Background()

	key, _ := m.GenerateKey()
	if err := m.SetKey(ctx, key); err != nil {
		t.Fatalf("SetKey error: %v", err)
	}
	if err := m.ClearKeys(ctx); err != nil {
		t.Fatalf("ClearKeys error: %v", err)
	}

	if m.HasKey() {
		t.Fatalf("HasKey = true after ClearKeys")
	}
	if ks.bundle.Active != "" || len(ks.bundle.History) != 0 {
		t.Fatalf("persisted bundle not cleared: %+v", ks.bundle)
	}
}

func TestNewKeyManager_LoadsPersistedBundle(t *testing.T) {
	ctx := context.Background()
	ks := &memKeyStore{}

	first, err := NewKeyManager(ctx, ks, logger.Nop())
	if err != nil {
		t.Fatalf("NewKeyManager error: %v", err)
	}
	key, _ := first.GenerateKey()
	if err = first.SetKey(ctx, key); err != nil {
		t.Fatalf("SetKey error: %v", err)
	}

	second, err := NewKeyManager(ctx, ks, logger.Nop())
	if err != nil {
		t.Fatalf("NewKeyManager error: %v", err)
	}
	if second.ActiveKey() != key {
		t.Fatalf("restarted manager lost the active key")
	}
}
