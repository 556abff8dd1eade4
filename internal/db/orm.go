package db

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	gormModels "runclub/pacemaker/internal/models/gorm"
)

var PgDB *gorm.DB

// InitPostgresORM opens the GORM handle and migrates the sync schema
func InitPostgresORM(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})

	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := db.AutoMigrate(
		&gormModels.Athlete{},
		&gormModels.SyncSession{},
		&gormModels.SyncBatch{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate sync schema: %w", err)
	}

	PgDB = db
	log.Println("Connected to Postgres via GORM")
	return db, nil
}
