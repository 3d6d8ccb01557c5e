// Package repository contains the repository layer for the Comdex API
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/comdex/comdexapi/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository struct {
	DB *gorm.DB
}

// NewSessionRepository creates a new repository for API sessions
func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{DB: db}
}

// UpsertSession inserts a session or replaces the tokens of an existing one
func (r *SessionRepository) UpsertSession(ctx context.Context, session *models.SessionModel) error {
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_token"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "username", "access_token", "refresh_token", "access_expires_at", "hashed_password", "updated_at"}),
	}).Create(session).Error
}

// UpdateTokens stores a refreshed token pair
func (r *SessionRepository) UpdateTokens(ctx context.Context, sessionToken, access, refresh string, expiresAt time.Time) error {
	res := r.DB.WithContext(ctx).Model(&models.SessionModel{}).
		Where("session_token = ?", sessionToken).
		Updates(map[string]interface{}{
			"access_token":      access,
			"refresh_token":     refresh,
			"access_expires_at": expiresAt,
			"updated_at":        time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// GetSessionByToken gets a session by its opaque API token
func (r *SessionRepository) GetSessionByToken(ctx context.Context, sessionToken string) (*models.SessionModel, error) {
	var session models.SessionModel
	err := r.DB.WithContext(ctx).Where("session_token = ?", sessionToken).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

// GetLatestSessionByUsername gets the most recently refreshed session of a user
func (r *SessionRepository) GetLatestSessionByUsername(ctx context.Context, username string) (*models.SessionModel, error) {
	var session models.SessionModel
	err := r.DB.WithContext(ctx).Where("username = ?", username).Order("updated_at DESC").First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

// DeleteSession removes one session
func (r *SessionRepository) DeleteSession(ctx context.Context, sessionToken string) error {
	return r.DB.WithContext(ctx).Where("session_token = ?", sessionToken).Delete(&models.SessionModel{}).Error
}

// DeleteSessionsBefore removes sessions not refreshed since cutoff
func (r *SessionRepository) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).Where("updated_at < ?", cutoff).Delete(&models.SessionModel{})
	return res.RowsAffected, res.Error
}
