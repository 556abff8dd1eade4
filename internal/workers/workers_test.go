package workers

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"runclub/pacemaker/internal/db/repositories"
	"runclub/pacemaker/internal/providers"

	gormModels "runclub/pacemaker/internal/models/gorm"
)

// fakeUpstream serves canned pages and details, tracking calls
type fakeUpstream struct {
	listFunc func(ctx context.Context, accessToken string, before, after *time.Time, perPage int) ([]providers.ActivitySummary, error)
	getFunc  func(ctx context.Context, accessToken string, activityID int64) (*providers.ActivityDetail, error)
}

func (f *fakeUpstream) ListActivities(ctx context.Context, accessToken string, before, after *time.Time, perPage int) ([]providers.ActivitySummary, error) {
	return f.listFunc(ctx, accessToken, before, after, perPage)
}

func (f *fakeUpstream) GetActivity(ctx context.Context, accessToken string, activityID int64) (*providers.ActivityDetail, error) {
	return f.getFunc(ctx, accessToken, activityID)
}

// fakeTokens hands back the athlete's stored token unchanged
type fakeTokens struct{}

func (fakeTokens) EnsureValidToken(ctx context.Context, athlete *gormModels.Athlete) (string, error) {
	return athlete.AccessToken, nil
}

func newActivityRepo(t *testing.T) *repositories.ActivityRecordRepo {
	t.Helper()

	db, err := sqlx.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)

	repo := repositories.NewActivityRecordRepo(db)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensuring schema: %v", err)
	}
	return repo
}

func newStateDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
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
