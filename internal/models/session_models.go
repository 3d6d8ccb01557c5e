// Package models contains the models for the Comdex API
package models

import (
	"time"
)

const SessionsTableName = "sessions"

// SessionModel maps an opaque API session token to the backend token pair
type SessionModel struct {
	SessionToken    string    `gorm:"primaryKey" json:"session_token"`
	UserID          int64     `gorm:"index" json:"user_id"`
	Username        string    `gorm:"index" json:"username"`
	AccessToken     string    `json:"-"`
	RefreshToken    string    `json:"-"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
	HashedPassword  string    `json:"-"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"-"`
}

func (SessionModel) TableName() string {
	return SessionsTableName
}
