// Package repository contains the repository layer for the Comdex API
package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/comdex/comdexapi/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IndexStatusChannel is the Postgres NOTIFY channel of status events
const IndexStatusChannel = "index_status_events"

// SnapshotRepository keeps the last observed copy of each index and the status change history
type SnapshotRepository struct {
	DB *gorm.DB
}

func NewSnapshotRepository(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{DB: db}
}

// GetSnapshots returns the stored snapshots keyed by index id
func (r *SnapshotRepository) GetSnapshots(ctx context.Context) (map[int64]models.IndexSnapshotModel, error) {
	var rows []models.IndexSnapshotModel
	if err := r.DB.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get %s: %v", models.IndexSnapshotsTableName, err)
	}
	out := make(map[int64]models.IndexSnapshotModel, len(rows))
	for _, row := range rows {
		out[row.IndexID] = row
	}
	return out, nil
}

// UpsertSnapshots writes the latest observation of every index
func (r *SnapshotRepository) UpsertSnapshots(ctx context.Context, rows []models.IndexSnapshotModel) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	res := r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "index_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "status", "total_investment", "company_ids", "observed_at"}),
	}).CreateInBatches(rows, 200)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to upsert %s: %v", models.IndexSnapshotsTableName, res.Error)
	}
	return res.RowsAffected, nil
}

// RecordStatusEvent stores the event and notifies listeners in the same transaction
func (r *SnapshotRepository) RecordStatusEvent(ctx context.Context, ev *models.IndexStatusEventModel) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(ev).Error; err != nil {
			return fmt.Errorf("failed to insert status event: %v", err)
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		return tx.Exec("SELECT pg_notify(?, ?)", IndexStatusChannel, string(payload)).Error
	})
}

// RecentStatusEvents returns the newest events first
func (r *SnapshotRepository) RecentStatusEvents(ctx context.Context, indexID int64, limit int) ([]models.IndexStatusEventModel, error) {
	q := r.DB.WithContext(ctx).Order("observed_at DESC").Limit(limit)
	if indexID > 0 {
		q = q.Where("index_id = ?", indexID)
	}
	var rows []models.IndexStatusEventModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get status events: %v", err)
	}
	return rows, nil
}
