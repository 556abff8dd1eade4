package repositories

import (
	"context"
	"fmt"
	"time"

	"runclub/pacemaker/internal/models/dtos"
	gormModels "runclub/pacemaker/internal/models/gorm"

	"gorm.io/gorm"
)

// BatchRepo handles sync_batches table operations using GORM
type BatchRepo struct {
	db *gorm.DB
}

// NewBatchRepo creates a new GORM-based batch repository
func NewBatchRepo(db *gorm.DB) *BatchRepo {
	return &BatchRepo{db: db}
}

// Create persists a new batch row
func (r *BatchRepo) Create(ctx context.Context, batch *gormModels.SyncBatch) error {
	return r.db.WithContext(ctx).Create(batch).Error
}

// GetByID retrieves a batch by ID
func (r *BatchRepo) GetByID(ctx context.Context, batchID string) (*gormModels.SyncBatch, error) {
	var batch gormModels.SyncBatch

	err := r.db.WithContext(ctx).
		Where("id = ?", batchID).
		First(&batch).Error

	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch batch: %w", err)
	}

	return &batch, nil
}

// ListClaimable returns pending batches across all live sessions, oldest
// first, that are past their retry backoff. The limit bounds one tick's work.
func (r *BatchRepo) ListClaimable(ctx context.Context, now time.Time, limit int) ([]gormModels.SyncBatch, error) {
	var batches []gormModels.SyncBatch

	err := r.db.WithContext(ctx).
		Joins("JOIN sync_sessions s ON s.id = sync_batches.session_id").
		Where("sync_batches.status = ?", gormModels.BatchPending).
		Where("sync_batches.not_before IS NULL OR sync_batches.not_before <= ?", now).
		Where("s.status IN ?", []gormModels.SessionStatus{gormModels.SessionPending, gormModels.SessionInProgress}).
		Order("sync_batches.created_at").
		Limit(limit).
		Find(&batches).Error

	if err != nil {
		return nil, fmt.Errorf("failed to list claimable batches: %w", err)
	}
	return batches, nil
}

// Claim atomically transitions a batch pending -> processing, stamping the
// claim time. Returns false if another invocation got there first. This single
// conditional update is what keeps overlapping scheduler ticks from
// double-processing a batch.
func (r *BatchRepo) Claim(ctx context.Context, batchID string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&gormModels.SyncBatch{}).
		Where("id = ? AND status = ?", batchID, gormModels.BatchPending).
		Updates(map[string]interface{}{
			"status":        gormModels.BatchProcessing,
			"claimed_at":    now,
			"attempt_count": gorm.Expr("attempt_count + 1"),
		})

	if res.Error != nil {
		return false, fmt.Errorf("failed to claim batch: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Complete marks a processed batch done with its counters
func (r *BatchRepo) Complete(ctx context.Context, batchID string, fetched, added int, completedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&gormModels.SyncBatch{}).
		Where("id = ? AND status = ?", batchID, gormModels.BatchProcessing).
		Updates(map[string]interface{}{
			"status":             gormModels.BatchCompleted,
			"activities_fetched": fetched,
			"records_added":      added,
			"completed_at":       completedAt,
		}).Error
}

// Requeue puts a transiently failed batch back in pending, eligible after the
// backoff delay. The attempt counter was already bumped at claim time.
func (r *BatchRepo) Requeue(ctx context.Context, batchID string, notBefore time.Time) error {
	return r.db.WithContext(ctx).
		Model(&gormModels.SyncBatch{}).
		Where("id = ? AND status = ?", batchID, gormModels.BatchProcessing).
		Updates(map[string]interface{}{
			"status":     gormModels.BatchPending,
			"not_before": notBefore,
			"claimed_at": nil,
		}).Error
}

// MarkFailed parks a batch terminally failed
func (r *BatchRepo) MarkFailed(ctx context.Context, batchID string) error {
	return r.db.WithContext(ctx).
		Model(&gormModels.SyncBatch{}).
		Where("id = ?", batchID).
		Update("status", gormModels.BatchFailed).Error
}

// CancelForSession sets every non-terminal batch of a session to cancelled
func (r *BatchRepo) CancelForSession(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).
		Model(&gormModels.SyncBatch{}).
		Where("session_id = ? AND status IN ?", sessionID, []gormModels.BatchStatus{
			gormModels.BatchPending,
			gormModels.BatchProcessing,
			gormModels.BatchFailed,
		}).
		Update("status", gormModels.BatchCancelled).Error
}

// ResetStale reclaims batches claimed before the cutoff that never completed,
// returning them for the scheduler to retry. Batches past the attempt ceiling
// are left alone; the caller escalates those.
func (r *BatchRepo) ResetStale(ctx context.Context, cutoff time.Time, maxAttempts int) ([]gormModels.SyncBatch, error) {
	var stale []gormModels.SyncBatch

	err := r.db.WithContext(ctx).
		Where("status = ? AND claimed_at < ?", gormModels.BatchProcessing, cutoff).
		Find(&stale).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale batches: %w", err)
	}

	var reclaimed []gormModels.SyncBatch
	for i := range stale {
		b := stale[i]
		if b.AttemptCount >= maxAttempts {
			continue
		}
		// Conditional on claimed_at so a worker that is merely slow and
		// completes in between does not get clobbered.
		res := r.db.WithContext(ctx).
			Model(&gormModels.SyncBatch{}).
			Where("id = ? AND status = ? AND claimed_at = ?", b.ID, gormModels.BatchProcessing, b.ClaimedAt).
			Updates(map[string]interface{}{
				"status":     gormModels.BatchPending,
				"claimed_at": nil,
			})
		if res.Error != nil {
			return reclaimed, res.Error
		}
		if res.RowsAffected == 1 {
			reclaimed = append(reclaimed, b)
		}
	}
	return reclaimed, nil
}

// ListStaleExhausted returns stuck processing batches already at the attempt ceiling
func (r *BatchRepo) ListStaleExhausted(ctx context.Context, cutoff time.Time, maxAttempts int) ([]gormModels.SyncBatch, error) {
	var batches []gormModels.SyncBatch

	err := r.db.WithContext(ctx).
		Where("status = ? AND claimed_at < ? AND attempt_count >= ?", gormModels.BatchProcessing, cutoff, maxAttempts).
		Find(&batches).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list exhausted stale batches: %w", err)
	}
	return batches, nil
}

// ListEnrichmentAtCeiling returns a session's enrichment batches whose attempt
// count reached the ceiling. Their activity IDs are the ones the session is
// allowed to give up on.
func (r *BatchRepo) ListEnrichmentAtCeiling(ctx context.Context, sessionID string, ceiling int) ([]gormModels.SyncBatch, error) {
	var batches []gormModels.SyncBatch

	err := r.db.WithContext(ctx).
		Where("session_id = ? AND batch_type = ? AND attempt_count >= ?", sessionID, gormModels.BatchEnrichment, ceiling).
		Find(&batches).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list exhausted enrichment batches: %w", err)
	}
	return batches, nil
}

// CountOutstanding counts batches of a session that are not yet terminal and
// not failed terminally; zero means the session's current phase is drained.
func (r *BatchRepo) CountOutstanding(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&gormModels.SyncBatch{}).
		Where("session_id = ? AND status IN ?", sessionID, []gormModels.BatchStatus{
			gormModels.BatchPending,
			gormModels.BatchProcessing,
		}).
		Count(&count).Error
	return count, err
}

// batchStatusRow backs the summary aggregation query
type batchStatusRow struct {
	BatchType         gormModels.BatchType   `gorm:"column:batch_type"`
	Status            gormModels.BatchStatus `gorm:"column:status"`
	N                 int                    `gorm:"column:n"`
	ActivitiesFetched int                    `gorm:"column:activities_fetched"`
	RecordsAdded      int                    `gorm:"column:records_added"`
}

// Summarize aggregates a session's batches by type and status for progress reporting
func (r *BatchRepo) Summarize(ctx context.Context, sessionID string) (*dtos.SessionSummary, error) {
	var rows []batchStatusRow

	err := r.db.WithContext(ctx).
		Model(&gormModels.SyncBatch{}).
		Select("batch_type, status, COUNT(*) AS n, SUM(activities_fetched) AS activities_fetched, SUM(records_added) AS records_added").
		Where("session_id = ?", sessionID).
		Group("batch_type, status").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to summarize batches: %w", err)
	}

	summary := &dtos.SessionSummary{SessionID: sessionID}
	for _, row := range rows {
		counts := &summary.Discovery
		if row.BatchType == gormModels.BatchEnrichment {
			counts = &summary.Enrichment
		}
		switch row.Status {
		case gormModels.BatchPending:
			counts.Pending += row.N
		case gormModels.BatchProcessing:
			counts.Processing += row.N
		case gormModels.BatchCompleted:
			counts.Completed += row.N
			summary.BatchesCompleted += row.N
		case gormModels.BatchFailed:
			counts.Failed += row.N
		case gormModels.BatchCancelled:
			counts.Cancelled += row.N
		}
		summary.BatchesTotal += row.N
		summary.ActivitiesFetched += row.ActivitiesFetched
		summary.RecordsAdded += row.RecordsAdded
	}
	return summary, nil
}
