// Package service contains the service layer for the Comdex API
package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/comdex/comdexapi/internal/gateway"
	"github.com/comdex/comdexapi/internal/models"
	"github.com/comdex/comdexapi/internal/repository"
	"github.com/comdex/comdexapi/pkg/utils/zaplogger"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// SessionStore persists API sessions
type SessionStore interface {
	UpsertSession(ctx context.Context, session *models.SessionModel) error
	UpdateTokens(ctx context.Context, sessionToken, access, refresh string, expiresAt time.Time) error
	GetSessionByToken(ctx context.Context, sessionToken string) (*models.SessionModel, error)
	GetLatestSessionByUsername(ctx context.Context, username string) (*models.SessionModel, error)
	DeleteSession(ctx context.Context, sessionToken string) error
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// UserSession is a signed-in user as seen by one API request
type UserSession struct {
	Token    string           `json:"session_token"`
	UserID   int64            `json:"user_id"`
	Username string           `json:"username"`
	Backend  *gateway.Session `json:"-"`
}

// ExpiresAt is the expiry of the current backend access token
func (u *UserSession) ExpiresAt() time.Time {
	return u.Backend.ExpiresAt()
}

type SessionService struct {
	gw    gateway.Gateway
	store SessionStore
	ttl   time.Duration
	now   func() time.Time
}

// NewSessionService creates a new service for API sessions
func NewSessionService(gw gateway.Gateway, store SessionStore, ttl time.Duration) *SessionService {
	return &SessionService{gw: gw, store: store, ttl: ttl, now: time.Now}
}

// Login signs the user in at the backend and opens an API session.
// A stored session is reused while its access token is valid and the password matches.
func (s *SessionService) Login(ctx context.Context, username, password string) (*UserSession, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, &ValidationError{Field: "username", Message: "Username is required"}
	}
	if password == "" {
		return nil, &ValidationError{Field: "password", Message: "Password is required"}
	}

	existing, err := s.store.GetLatestSessionByUsername(ctx, username)
	if err == nil {
		if err := bcrypt.CompareHashAndPassword([]byte(existing.HashedPassword), []byte(password)); err == nil {
			if existing.AccessExpiresAt.IsZero() || s.now().Before(existing.AccessExpiresAt) {
				return s.open(existing), nil
			}
		}
	} else if !errors.Is(err, repository.ErrSessionNotFound) {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	tokens, err := s.gw.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return s.persist(ctx, username, password, tokens)
}

// Signup creates the backend account and signs the user in
func (s *SessionService) Signup(ctx context.Context, req models.SignupRequest) (*UserSession, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	switch {
	case req.Username == "":
		return nil, &ValidationError{Field: "username", Message: "Username is required"}
	case len(req.Username) < 3:
		return nil, &ValidationError{Field: "username", Message: "Username must be at least 3 characters"}
	case req.Email == "":
		return nil, &ValidationError{Field: "email", Message: "Email is required"}
	case !validEmail(req.Email):
		return nil, &ValidationError{Field: "email", Message: "Email is invalid"}
	case len(req.Password) < 8:
		return nil, &ValidationError{Field: "password", Message: "Password must be at least 8 characters"}
	case req.Password2 != "" && req.Password2 != req.Password:
		return nil, &ValidationError{Field: "password2", Message: "Passwords do not match"}
	}
	if req.Password2 == "" {
		req.Password2 = req.Password
	}

	tokens, err := s.gw.Signup(ctx, req)
	if err != nil {
		return nil, err
	}
	if tokens.Access == "" {
		if tokens, err = s.gw.Login(ctx, req.Username, req.Password); err != nil {
			return nil, err
		}
	}
	return s.persist(ctx, req.Username, req.Password, tokens)
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func (s *SessionService) persist(ctx context.Context, username, password string, tokens models.AuthTokens) (*UserSession, error) {
	var userID int64
	if tokens.User != nil {
		userID = tokens.User.ID
	} else {
		profile, err := s.gw.FetchProfile(ctx, gateway.NewSession(tokens.Access, tokens.Refresh))
		if err != nil {
			return nil, err
		}
		userID = profile.ID
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %v", err)
	}

	row := &models.SessionModel{
		SessionToken:    uuid.NewString(),
		UserID:          userID,
		Username:        username,
		AccessToken:     tokens.Access,
		RefreshToken:    tokens.Refresh,
		AccessExpiresAt: gateway.TokenExpiry(tokens.Access),
		HashedPassword:  string(hashed),
	}
	if err := s.store.UpsertSession(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to upsert session: %v", err)
	}

	zaplogger.Info("session opened", zaplogger.Fields{"user_id": userID, "username": username})
	return s.open(row), nil
}

// Open restores the API session of a token, as the auth middleware does on every request
func (s *SessionService) Open(ctx context.Context, sessionToken string) (*UserSession, error) {
	row, err := s.store.GetSessionByToken(ctx, sessionToken)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, err
	}
	return s.open(row), nil
}

func (s *SessionService) open(row *models.SessionModel) *UserSession {
	backend := gateway.NewSession(row.AccessToken, row.RefreshToken)
	token := row.SessionToken

	backend.OnRefresh(func(ctx context.Context, access, refresh string, exp time.Time) error {
		return s.store.UpdateTokens(ctx, token, access, refresh, exp)
	})
	backend.OnTeardown(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.DeleteSession(ctx, token); err != nil {
			zaplogger.Error("failed to delete session", zaplogger.Fields{"user_id": row.UserID, "error": err.Error()})
		}
	})

	return &UserSession{
		Token:    token,
		UserID:   row.UserID,
		Username: row.Username,
		Backend:  backend,
	}
}

// Logout tears the session down; the stored row goes with it
func (s *SessionService) Logout(us *UserSession) {
	us.Backend.Teardown()
	zaplogger.Info("session closed", zaplogger.Fields{"user_id": us.UserID})
}

// PurgeExpired removes sessions that have not been refreshed within the session TTL
func (s *SessionService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteSessionsBefore(ctx, s.now().Add(-s.ttl))
}
