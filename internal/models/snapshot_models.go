// Package models contains the models for the Comdex API
package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

var (
	IndexSnapshotsTableName    = "index_snapshots"
	IndexStatusEventsTableName = "index_status_events"
)

// IndexSnapshotModel is the last observed read copy of an index, kept by the status sync job
type IndexSnapshotModel struct {
	IndexID         int64           `gorm:"primaryKey;autoIncrement:false" json:"index_id"`
	Name            string          `json:"name"`
	Status          string          `gorm:"index" json:"status"`
	TotalInvestment decimal.Decimal `gorm:"type:numeric(20,2)" json:"total_investment"`
	CompanyIDs      datatypes.JSON  `json:"company_ids"`
	ObservedAt      time.Time       `json:"observed_at"`
}

// TableName specifies the table name for the IndexSnapshot model
func (IndexSnapshotModel) TableName() string {
	return IndexSnapshotsTableName
}

// IndexStatusEventModel records one observed status change
type IndexStatusEventModel struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	IndexID    int64     `gorm:"index" json:"index_id"`
	IndexName  string    `json:"index_name"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Allowed    bool      `json:"allowed"`
	Policy     string    `json:"policy"`
	ObservedAt time.Time `gorm:"index" json:"observed_at"`
}

// TableName specifies the table name for the IndexStatusEvent model
func (IndexStatusEventModel) TableName() string {
	return IndexStatusEventsTableName
}
