// SPDX-License-Identifier: Apache-2.0

package adapter

import (
	"strings"
	"sync"
	"time"

	"github.com/tinfoilsh/tinfoil-chat-sub004/internal/utils"
)

// staticTokenSource holds a bearer token handed over by the external auth
// collaborator. It treats a missing or expired token as "not authenticated"
// so sync paths can silently no-op for anonymous/local-only usage.
type staticTokenSource struct {
	mu    sync.RWMutex
	token string
	now   func() time.Time
}

// NewTokenSource constructs a [TokenSource] seeded with token (may be empty).
// The credential may arrive bare or as a full "Bearer <token>" header value;
// both shapes come out of auth collaborators in the wild.
func NewTokenSource(token string) TokenSource {
	return &staticTokenSource{token: normalizeToken(token), now: time.Now}
}

// SetToken replaces the stored bearer token. The empty string de-authenticates.
func (s *staticTokenSource) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = normalizeToken(token)
}

// normalizeToken strips an Authorization-header wrapping when present.
func normalizeToken(token string) string {
	if bare, err := utils.ParseBearerToken(token); err == nil {
		return bare
	}
	return strings.TrimSpace(token)
}

// GetAuthHeaders implements [TokenSource].
func (s *staticTokenSource) GetAuthHeaders() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == "" {
		return map[string]string{}
	}
	return map[string]string{"Authorization": "Bearer " + s.token}
}

// IsAuthenticated implements [TokenSource]. A token that parses as a JWT with
// an exp claim counts only while unexpired; opaque tokens count as long as
// they are present (the server is the judge of those).
func (s *staticTokenSource) IsAuthenticated() bool {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	if token == "" {
		return false
	}

	expiry, err := utils.TokenExpiry(token)
	if err != nil {
		return true // opaque token, let the server decide
	}

	return s.now().Before(expiry)
}
