package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	gormModels "runclub/pacemaker/internal/models/gorm"
)

// newTestDB opens a fresh in-memory database with the full schema
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}

	// One connection: each pooled connection to :memory: would otherwise get
	// its own empty database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrapping db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&gormModels.Athlete{}, &gormModels.SyncSession{}, &gormModels.SyncBatch{}); err != nil {
		t.Fatalf("migrating schema: %v", err)
	}
	return db
}

func seedAthlete(t *testing.T, db *gorm.DB) *gormModels.Athlete {
	t.Helper()

	athlete := &gormModels.Athlete{
		ID:           uuid.NewString(),
		UpstreamID:   time.Now().UnixNano(),
		FirstName:    "Test",
		LastName:     "Runner",
		RefreshToken: "refresh-token",
		SyncStatus:   gormModels.SyncStatusIdle,
	}
	if err := NewAthleteRepo(db).Create(context.Background(), athlete); err != nil {
		t.Fatalf("seeding athlete: %v", err)
	}
	return athlete
}

func seedSession(t *testing.T, db *gorm.DB, athleteID string, status gormModels.SessionStatus) *gormModels.SyncSession {
	t.Helper()

	session := &gormModels.SyncSession{
		ID:                 uuid.NewString(),
		AthleteID:          athleteID,
		Phase:              gormModels.PhaseDiscovery,
		Status:             status,
		CurrentBatchNumber: 1,
	}
	if err := NewSessionRepo(db).Create(context.Background(), session); err != nil {
		t.Fatalf("seeding session: %v", err)
	}
	return session
}

func seedBatch(t *testing.T, db *gorm.DB, session *gormModels.SyncSession, number int, status gormModels.BatchStatus) *gormModels.SyncBatch {
	t.Helper()

	batch := &gormModels.SyncBatch{
		ID:          uuid.NewString(),
		SessionID:   session.ID,
		AthleteID:   session.AthleteID,
		BatchNumber: number,
		BatchType:   gormModels.BatchDiscovery,
		Status:      status,
	}
	if err := NewBatchRepo(db).Create(context.Background(), batch); err != nil {
		t.Fatalf("seeding batch: %v", err)
	}
	return batch
}
