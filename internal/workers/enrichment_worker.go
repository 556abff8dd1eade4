package workers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"

	"runclub/pacemaker/internal/db/repositories"
	"runclub/pacemaker/internal/models/dtos"
	"runclub/pacemaker/internal/models/entities"
	"runclub/pacemaker/internal/providers"

	gormModels "runclub/pacemaker/internal/models/gorm"
)

// EnrichmentWorker fills in detail fields for a fixed set of already
// discovered activities. Calls are paced with a limiter so one batch cannot
// burst through the shared rate budget.
type EnrichmentWorker struct {
	api          UpstreamAPI
	tokens       TokenGuard
	activityRepo *repositories.ActivityRecordRepo
	limiter      *rate.Limiter
}

// NewEnrichmentWorker creates an enrichment worker pacing at callsPerSec
func NewEnrichmentWorker(api UpstreamAPI, tokens TokenGuard, activityRepo *repositories.ActivityRecordRepo, callsPerSec float64) *EnrichmentWorker {
	return &EnrichmentWorker{
		api:          api,
		tokens:       tokens,
		activityRepo: activityRepo,
		limiter:      rate.NewLimiter(rate.Limit(callsPerSec), 1),
	}
}

// Process enriches every activity in the batch's ID set. Per-activity
// failures are recorded and skipped; they never block siblings in the same
// chunk. Auth, transient and storage errors abort the batch, which is safe to
// retry in full because detail updates are idempotent.
func (w *EnrichmentWorker) Process(ctx context.Context, athlete *gormModels.Athlete, batch *gormModels.SyncBatch) (*dtos.EnrichmentResult, error) {
	ids, err := batch.DecodeActivityIDs()
	if err != nil {
		return nil, fmt.Errorf("decoding batch activity set: %w", err)
	}

	token, err := w.tokens.EnsureValidToken(ctx, athlete)
	if err != nil {
		return nil, err
	}

	result := &dtos.EnrichmentResult{}

	for _, id := range ids {
		if err := w.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		detail, err := w.api.GetActivity(ctx, token, id)
		if err != nil {
			var partial *providers.PartialDataError
			if errors.As(err, &partial) {
				log.Printf("[EnrichmentWorker] Activity %d skipped: %v", id, err)
				result.Failed++
				result.FailedIDs = append(result.FailedIDs, id)
				continue
			}
			return nil, err
		}

		now := time.Now().UTC()
		polyline := detail.Map.Polyline
		if polyline == "" {
			polyline = detail.Map.SummaryPolyline
		}
		raw := string(detail.Raw)

		rec := &entities.ActivityRecord{
			AthleteID:      athlete.ID,
			ExternalID:     id,
			Polyline:       &polyline,
			AvgHeartRate:   &detail.AvgHeartRate,
			Calories:       &detail.Calories,
			RawDetail:      &raw,
			DetailSyncedAt: &now,
			UpdatedAt:      now,
		}

		if err := w.activityRepo.UpdateDetail(ctx, rec); err != nil {
			return nil, fmt.Errorf("updating detail for activity %d: %w", id, err)
		}
		result.Updated++
	}

	log.Printf("[EnrichmentWorker] Batch %d for athlete %s: updated=%d failed=%d",
		batch.BatchNumber, athlete.ID, result.Updated, result.Failed)

	return result, nil
}
