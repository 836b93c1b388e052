package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestParseBearerToken(t *testing.T) {
	token, err := ParseBearerToken("Bearer abc.def.ghi")
	if err != nil {
		t.Fatalf("ParseBearerToken error: %v", err)
	}
	if token != "abc.def.ghi" {
		t.Fatalf("token = %q", token)
	}

	for _, header := range []string{"", "Bearer", "Bearer ", "Basic abc", "raw-token"} {
		if _, err = ParseBearerToken(header); err == nil {
			t.Fatalf("ParseBearerToken(%q) succeeded, want error", header)
		}
	}
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signedToken(t, jwt.MapClaims{"exp": exp.Unix()})

	got, err := TokenExpiry(token)
	if err != nil {
		t.Fatalf("TokenExpiry error: %v", err)
	}
	if !got.Equal(exp) {
		t.Fatalf("expiry = %v, want %v", got, exp)
	}
}

func TestTokenExpiry_NoExpClaim(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"sub": "someone"})
	if _, err := TokenExpiry(token); err == nil {
		t.Fatalf("expected error for token without exp claim")
	}
}

func TestTokenExpiry_OpaqueToken(t *testing.T) {
	if _, err := TokenExpiry("not-a-jwt"); err == nil {
		t.Fatalf("expected error for opaque token")
	}
}
