// Package repository contains the repository layer for the Comdex API
package repository

import (
	"fmt"

	"github.com/comdex/comdexapi/internal/config"
	"github.com/comdex/comdexapi/internal/models"
	"github.com/comdex/comdexapi/pkg/utils/zaplogger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectPostgres connects to Postgres, creates the schema and migrates the tables
func ConnectPostgres(cfg *config.Config) (*gorm.DB, error) {
	zaplogger.Info(config.SingleLine)
	zaplogger.Info("Initializing Postgres")
	zaplogger.Info(config.SingleLine)

	var logLevel logger.LogLevel
	switch cfg.PostgresLogLevel {
	case "silent":
		logLevel = logger.Silent
	case "error":
		logLevel = logger.Error
	case "info":
		logLevel = logger.Info
	default:
		logLevel = logger.Warn
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	}

	schema := cfg.PostgresSchema
	dsn := fmt.Sprintf("%s search_path=%s,public", cfg.PostgresDsn, schema)
	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %v", err)
	}
	zaplogger.Info("  * connected")

	if err := db.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %q", schema)).Error; err != nil {
		return nil, fmt.Errorf("failed to create schema %s: %v", schema, err)
	}
	zaplogger.Info("  * migrating schema: \"" + schema + "\"")

	if err := autoMigrate(db, schema); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %v", err)
	}
	return db, nil
}

func autoMigrate(db *gorm.DB, schema string) error {
	tables := []struct {
		name  string
		model interface{}
	}{
		{models.SessionsTableName, &models.SessionModel{}},
		{models.IndexSnapshotsTableName, &models.IndexSnapshotModel{}},
		{models.IndexStatusEventsTableName, &models.IndexStatusEventModel{}},
	}

	zaplogger.Info("  * migrating tables")
	for _, table := range tables {
		if err := db.AutoMigrate(table.model); err != nil {
			return fmt.Errorf("failed to auto migrate table: %s, err:%v", table.name, err)
		}
		zaplogger.Info("    - \"" + schema + "." + table.name + "\"")
	}
	return nil
}
