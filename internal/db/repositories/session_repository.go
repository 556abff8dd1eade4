package repositories

import (
	"context"
	"fmt"
	"time"

	gormModels "runclub/pacemaker/internal/models/gorm"

	"gorm.io/gorm"
)

// SessionRepo handles sync_sessions table operations using GORM
type SessionRepo struct {
	db *gorm.DB
}

// NewSessionRepo creates a new GORM-based session repository
func NewSessionRepo(db *gorm.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Create persists a new sync session
func (r *SessionRepo) Create(ctx context.Context, session *gormModels.SyncSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// GetByID retrieves a session by ID
func (r *SessionRepo) GetByID(ctx context.Context, sessionID string) (*gormModels.SyncSession, error) {
	var session gormModels.SyncSession

	err := r.db.WithContext(ctx).
		Where("id = ?", sessionID).
		First(&session).Error

	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch session: %w", err)
	}

	return &session, nil
}

// GetActiveForAthlete returns the athlete's non-terminal session, if any.
// The single-live-session invariant means there is at most one.
func (r *SessionRepo) GetActiveForAthlete(ctx context.Context, athleteID string) (*gormModels.SyncSession, error) {
	var session gormModels.SyncSession

	err := r.db.WithContext(ctx).
		Where("athlete_id = ? AND status IN ?", athleteID, []gormModels.SessionStatus{
			gormModels.SessionPending,
			gormModels.SessionInProgress,
		}).
		Order("started_at DESC").
		First(&session).Error

	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch active session: %w", err)
	}

	return &session, nil
}

// MarkInProgress moves a pending session to in_progress once work starts
func (r *SessionRepo) MarkInProgress(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).
		Model(&gormModels.SyncSession{}).
		Where("id = ? AND status = ?", sessionID, gormModels.SessionPending).
		Update("status", gormModels.SessionInProgress).Error
}

// SetPhase advances the session phase (discovery -> enrichment -> completed)
func (r *SessionRepo) SetPhase(ctx context.Context, sessionID string, phase gormModels.SessionPhase) error {
	return r.db.WithContext(ctx).
		Model(&gormModels.SyncSession{}).
		Where("id = ?", sessionID).
		Update("phase", phase).Error
}

// SetTotalBatchesExpected records the enrichment batch count once known
func (r *SessionRepo) SetTotalBatchesExpected(ctx context.Context, sessionID string, total int) error {
	return r.db.WithContext(ctx).
		Model(&gormModels.SyncSession{}).
		Where("id = ?", sessionID).
		Update("total_batches_expected", total).Error
}

// IncrementBatchNumber bumps the per-session batch counter and returns the new value
func (r *SessionRepo) IncrementBatchNumber(ctx context.Context, sessionID string) (int, error) {
	err := r.db.WithContext(ctx).
		Model(&gormModels.SyncSession{}).
		Where("id = ?", sessionID).
		Update("current_batch_number", gorm.Expr("current_batch_number + 1")).Error
	if err != nil {
		return 0, err
	}

	var session gormModels.SyncSession
	if err := r.db.WithContext(ctx).Select("current_batch_number").Where("id = ?", sessionID).First(&session).Error; err != nil {
		return 0, err
	}
	return session.CurrentBatchNumber, nil
}

// Complete terminates the session successfully
func (r *SessionRepo) Complete(ctx context.Context, sessionID string, completedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&gormModels.SyncSession{}).
		Where("id = ? AND status NOT IN ?", sessionID, terminalSessionStatuses()).
		Updates(map[string]interface{}{
			"status":       gormModels.SessionCompleted,
			"phase":        gormModels.PhaseCompleted,
			"completed_at": completedAt,
		}).Error
}

// Fail parks the session in error with a human-readable message
func (r *SessionRepo) Fail(ctx context.Context, sessionID, message string) error {
	return r.db.WithContext(ctx).
		Model(&gormModels.SyncSession{}).
		Where("id = ? AND status NOT IN ?", sessionID, terminalSessionStatuses()).
		Updates(map[string]interface{}{
			"status":        gormModels.SessionError,
			"error_message": message,
		}).Error
}

// Cancel sets a non-terminal session to cancelled. Idempotent: already-terminal
// sessions are left untouched.
func (r *SessionRepo) Cancel(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).
		Model(&gormModels.SyncSession{}).
		Where("id = ? AND status NOT IN ?", sessionID, terminalSessionStatuses()).
		Update("status", gormModels.SessionCancelled).Error
}

// ListStalled returns non-terminal sessions with no batch progress since the cutoff
func (r *SessionRepo) ListStalled(ctx context.Context, cutoff time.Time) ([]gormModels.SyncSession, error) {
	var sessions []gormModels.SyncSession

	err := r.db.WithContext(ctx).
		Where("status IN ?", []gormModels.SessionStatus{gormModels.SessionPending, gormModels.SessionInProgress}).
		Where("started_at < ?", cutoff).
		Where("NOT EXISTS (SELECT 1 FROM sync_batches b WHERE b.session_id = sync_sessions.id AND (b.completed_at > ? OR b.claimed_at > ?))", cutoff, cutoff).
		Find(&sessions).Error

	if err != nil {
		return nil, fmt.Errorf("failed to list stalled sessions: %w", err)
	}
	return sessions, nil
}

func terminalSessionStatuses() []gormModels.SessionStatus {
	return []gormModels.SessionStatus{
		gormModels.SessionCompleted,
		gormModels.SessionError,
		gormModels.SessionCancelled,
	}
}
