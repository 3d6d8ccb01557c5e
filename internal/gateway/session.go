package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RefreshHook persists a token pair issued by a refresh
type RefreshHook func(ctx context.Context, access, refresh string, expiresAt time.Time) error

// Session carries the backend credentials of one signed-in user.
// It is created by Init and ended by Teardown; the gateway never reads credentials from anywhere else.
type Session struct {
	mu        sync.RWMutex
	access    string
	refresh   string
	expiresAt time.Time
	closed    bool

	onRefresh  RefreshHook
	onTeardown func()
}

// NewSession returns an initialized session
func NewSession(access, refresh string) *Session {
	s := &Session{}
	s.Init(access, refresh)
	return s
}

// Init loads a token pair, e.g. from persisted storage at startup
func (s *Session) Init(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = access
	s.refresh = refresh
	s.expiresAt = TokenExpiry(access)
	s.closed = access == ""
}

// OnRefresh registers the hook called after a successful token refresh
func (s *Session) OnRefresh(fn RefreshHook) {
	s.mu.Lock()
	s.onRefresh = fn
	s.mu.Unlock()
}

// OnTeardown registers the hook called once when the session ends
func (s *Session) OnTeardown(fn func()) {
	s.mu.Lock()
	s.onTeardown = fn
	s.mu.Unlock()
}

// Teardown drops the credentials. It is safe to call more than once.
func (s *Session) Teardown() {
	s.mu.Lock()
	if s.closed && s.access == "" {
		s.mu.Unlock()
		return
	}
	s.access, s.refresh = "", ""
	s.expiresAt = time.Time{}
	s.closed = true
	hook := s.onTeardown
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
}

func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access
}

func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh
}

func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// Active reports whether the session still holds credentials
func (s *Session) Active() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed && s.access != ""
}

// Expired reports whether the access token is past its exp claim.
// Tokens without a readable exp never expire client-side.
func (s *Session) Expired(now time.Time) bool {
	exp := s.ExpiresAt()
	return !exp.IsZero() && !now.Before(exp)
}

func (s *Session) rotate(ctx context.Context, access, refresh string) error {
	s.mu.Lock()
	s.access = access
	if refresh != "" {
		s.refresh = refresh
	}
	s.expiresAt = TokenExpiry(access)
	s.closed = false
	hook := s.onRefresh
	access, refresh, exp := s.access, s.refresh, s.expiresAt
	s.mu.Unlock()

	if hook != nil {
		return hook(ctx, access, refresh, exp)
	}
	return nil
}

// TokenExpiry reads the exp claim of a JWT without verifying its signature.
// The backend is the only verifier; the value only drives client-side bookkeeping.
func TokenExpiry(token string) time.Time {
	if token == "" {
		return time.Time{}
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
