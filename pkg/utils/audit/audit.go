// Package audit records user intents dispatched to the backend and their outcomes
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/comdex/comdexapi/pkg/utils/zaplogger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var TableName = "_audit_log"

// Outcome of one recorded action
type Outcome string

const (
	OutcomeOK       Outcome = "OK"
	OutcomeRejected Outcome = "REJECTED"
	OutcomeFailed   Outcome = "FAILED"
)

// Entry is one audit row
type Entry struct {
	ID        uint64         `gorm:"primaryKey"`
	Timestamp time.Time      `gorm:"index"`
	UserID    int64          `gorm:"index"`
	Action    string         `gorm:"index"`
	EntityID  int64          `gorm:"index"`
	Outcome   Outcome        `gorm:"index"`
	Detail    string         // reason code or error message
	Fields    datatypes.JSON `gorm:"type:jsonb"`
}

func (Entry) TableName() string {
	return TableName
}

// Recorder stores audit entries
type Recorder interface {
	Record(ctx context.Context, e Entry, fields map[string]interface{})
}

// Trail is the Postgres-backed Recorder
type Trail struct {
	db *gorm.DB
}

func New(db *gorm.DB) (*Trail, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate %s: %v", TableName, err)
	}
	return &Trail{db: db}, nil
}

// Record inserts e; failures are logged and never reach the caller's request
func (t *Trail) Record(ctx context.Context, e Entry, fields map[string]interface{}) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if len(fields) > 0 {
		b, err := json.Marshal(fields)
		if err != nil {
			zaplogger.Error("failed to marshal audit fields", zaplogger.Fields{"action": e.Action, "error": err.Error()})
		} else {
			e.Fields = datatypes.JSON(b)
		}
	}
	if err := t.db.WithContext(ctx).Create(&e).Error; err != nil {
		zaplogger.Error("failed to insert audit entry", zaplogger.Fields{
			"action": e.Action,
			"user":   e.UserID,
			"error":  err.Error(),
		})
	}
}

// Discard is a Recorder that drops every entry
type Discard struct{}

func (Discard) Record(context.Context, Entry, map[string]interface{}) {}
