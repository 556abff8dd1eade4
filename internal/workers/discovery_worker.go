package workers

import (
	"context"
	"fmt"
	"log"
	"time"

	"runclub/pacemaker/internal/db/repositories"
	"runclub/pacemaker/internal/models/dtos"
	"runclub/pacemaker/internal/models/entities"
	"runclub/pacemaker/internal/providers"

	gormModels "runclub/pacemaker/internal/models/gorm"
)

// UpstreamAPI is the slice of the upstream client the workers need
type UpstreamAPI interface {
	ListActivities(ctx context.Context, accessToken string, before, after *time.Time, perPage int) ([]providers.ActivitySummary, error)
	GetActivity(ctx context.Context, accessToken string, activityID int64) (*providers.ActivityDetail, error)
}

// TokenGuard hands out valid upstream credentials
type TokenGuard interface {
	EnsureValidToken(ctx context.Context, athlete *gormModels.Athlete) (string, error)
}

// DiscoveryWorker processes one discovery batch: a single upstream page,
// upserted as stub records. It never loops across pages; the scheduler spawns
// the successor batch from the returned cursor.
type DiscoveryWorker struct {
	api          UpstreamAPI
	tokens       TokenGuard
	activityRepo *repositories.ActivityRecordRepo
	pageSize     int
	sportTypes   map[string]bool
}

// NewDiscoveryWorker creates a discovery worker. sportTypes filters the kept
// activities; empty keeps everything.
func NewDiscoveryWorker(api UpstreamAPI, tokens TokenGuard, activityRepo *repositories.ActivityRecordRepo, pageSize int, sportTypes []string) *DiscoveryWorker {
	filter := make(map[string]bool, len(sportTypes))
	for _, t := range sportTypes {
		filter[t] = true
	}
	return &DiscoveryWorker{
		api:          api,
		tokens:       tokens,
		activityRepo: activityRepo,
		pageSize:     pageSize,
		sportTypes:   filter,
	}
}

// Process fetches the batch's page and upserts stub records. Upserts are
// idempotent, so partial progress before an error is safe to re-issue.
func (w *DiscoveryWorker) Process(ctx context.Context, athlete *gormModels.Athlete, batch *gormModels.SyncBatch) (*dtos.DiscoveryResult, error) {
	token, err := w.tokens.EnsureValidToken(ctx, athlete)
	if err != nil {
		return nil, err
	}

	page, err := w.api.ListActivities(ctx, token, batch.Before, batch.After, w.pageSize)
	if err != nil {
		return nil, err
	}

	result := &dtos.DiscoveryResult{
		ActivitiesFetched: len(page),
		HasMore:           len(page) == w.pageSize,
	}

	now := time.Now().UTC()
	var oldest *time.Time
	for i := range page {
		a := page[i]
		if oldest == nil || a.StartDate.Before(*oldest) {
			start := a.StartDate
			oldest = &start
		}

		if len(w.sportTypes) > 0 && !w.sportTypes[a.SportType] {
			continue
		}

		rec := &entities.ActivityRecord{
			AthleteID:   athlete.ID,
			ExternalID:  a.ID,
			Name:        a.Name,
			SportType:   a.SportType,
			StartDate:   a.StartDate,
			DistanceM:   a.Distance,
			MovingTime:  a.MovingTime,
			ElapsedTime: a.ElapsedTime,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		added, err := w.activityRepo.UpsertStub(ctx, rec)
		if err != nil {
			return nil, fmt.Errorf("upserting activity %d: %w", a.ID, err)
		}
		if added {
			result.RecordsAdded++
		}
	}

	// The next page resumes strictly before the oldest activity seen so the
	// cursor makes progress even when the upstream shifts under us.
	result.NextBefore = oldest

	log.Printf("[DiscoveryWorker] Batch %d for athlete %s: fetched=%d added=%d hasMore=%t",
		batch.BatchNumber, athlete.ID, result.ActivitiesFetched, result.RecordsAdded, result.HasMore)

	return result, nil
}
