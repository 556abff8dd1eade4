package repositories

import (
	"context"
	"fmt"
	"time"

	gormModels "runclub/pacemaker/internal/models/gorm"

	"gorm.io/gorm"
)

// AthleteRepo handles athletes table operations using GORM
type AthleteRepo struct {
	db *gorm.DB
}

// NewAthleteRepo creates a new GORM-based athlete repository
func NewAthleteRepo(db *gorm.DB) *AthleteRepo {
	return &AthleteRepo{db: db}
}

// Create persists a new athlete row (onboarding seam for the admin layer)
func (r *AthleteRepo) Create(ctx context.Context, athlete *gormModels.Athlete) error {
	return r.db.WithContext(ctx).Create(athlete).Error
}

// GetByID retrieves an athlete by ID
func (r *AthleteRepo) GetByID(ctx context.Context, athleteID string) (*gormModels.Athlete, error) {
	var athlete gormModels.Athlete

	err := r.db.WithContext(ctx).
		Where("id = ?", athleteID).
		First(&athlete).Error

	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch athlete: %w", err)
	}

	return &athlete, nil
}

// List returns all tracked athletes
func (r *AthleteRepo) List(ctx context.Context) ([]gormModels.Athlete, error) {
	var athletes []gormModels.Athlete
	if err := r.db.WithContext(ctx).Order("created_at").Find(&athletes).Error; err != nil {
		return nil, fmt.Errorf("failed to list athletes: %w", err)
	}
	return athletes, nil
}

// UpdateCredentials persists a refreshed token pair atomically with the row
func (r *AthleteRepo) UpdateCredentials(ctx context.Context, athleteID, accessToken, refreshToken string, expiry time.Time) error {
	return r.db.WithContext(ctx).
		Model(&gormModels.Athlete{}).
		Where("id = ?", athleteID).
		Updates(map[string]interface{}{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"token_expiry":  expiry,
		}).Error
}

// SetSyncInProgress points the athlete at its live session
func (r *AthleteRepo) SetSyncInProgress(ctx context.Context, athleteID, sessionID string) error {
	return r.db.WithContext(ctx).
		Model(&gormModels.Athlete{}).
		Where("id = ?", athleteID).
		Updates(map[string]interface{}{
			"sync_status":     gormModels.SyncStatusInProgress,
			"sync_session_id": sessionID,
			"sync_error":      nil,
		}).Error
}

// SetSyncCompleted clears the live session and stamps last_synced_at
func (r *AthleteRepo) SetSyncCompleted(ctx context.Context, athleteID string, syncedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&gormModels.Athlete{}).
		Where("id = ?", athleteID).
		Updates(map[string]interface{}{
			"sync_status":     gormModels.SyncStatusCompleted,
			"sync_session_id": nil,
			"sync_error":      nil,
			"last_synced_at":  syncedAt,
		}).Error
}

// SetSyncError surfaces a session-level failure on the athlete row
func (r *AthleteRepo) SetSyncError(ctx context.Context, athleteID, message string) error {
	return r.db.WithContext(ctx).
		Model(&gormModels.Athlete{}).
		Where("id = ?", athleteID).
		Updates(map[string]interface{}{
			"sync_status":     gormModels.SyncStatusError,
			"sync_session_id": nil,
			"sync_error":      message,
		}).Error
}

// SetSyncIdle resets the athlete after a cancellation
func (r *AthleteRepo) SetSyncIdle(ctx context.Context, athleteID string) error {
	return r.db.WithContext(ctx).
		Model(&gormModels.Athlete{}).
		Where("id = ?", athleteID).
		Updates(map[string]interface{}{
			"sync_status":     gormModels.SyncStatusIdle,
			"sync_session_id": nil,
		}).Error
}
