// Package token holds the bearer token shared by the manager, worker and
// storage clients, with client-side expiry inspection.
package token

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lyceum-cloud/uplink/internal/common"
)

// Source is a concurrency-safe holder for the current access token. The
// caller re-supplies the token on rotation; every storage request reads the
// latest value.
type Source struct {
	mu    sync.RWMutex
	token string
}

func NewSource() *Source {
	return &Source{}
}

// Set installs a new access token for all subsequent requests.
func (s *Source) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Token returns the current access token ("" if none was set).
func (s *Source) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Validate reports whether a transfer may be attempted with the current
// token. A missing token fails with ErrNoAccessToken. JWTs with an exp claim
// in the past fail with ErrTokenExpired; signatures are not verified (the
// client has no key) and opaque tokens pass — the platform remains the
// authority either way.
func (s *Source) Validate(now time.Time) error {
	tok := s.Token()
	if tok == "" {
		return common.ErrNoAccessToken
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			// Not a JWT; treat as an opaque bearer token.
			return nil
		}
		return common.ErrInvalidToken
	}

	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(now) {
		return common.ErrTokenExpired
	}
	return nil
}
