package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"runclub/pacemaker/internal/db/repositories"
	"runclub/pacemaker/internal/models/dtos"
	"runclub/pacemaker/internal/providers"

	"github.com/google/uuid"

	gormModels "runclub/pacemaker/internal/models/gorm"
)

// DiscoveryProcessor handles one discovery batch
type DiscoveryProcessor interface {
	Process(ctx context.Context, athlete *gormModels.Athlete, batch *gormModels.SyncBatch) (*dtos.DiscoveryResult, error)
}

// EnrichmentProcessor handles one enrichment batch
type EnrichmentProcessor interface {
	Process(ctx context.Context, athlete *gormModels.Athlete, batch *gormModels.SyncBatch) (*dtos.EnrichmentResult, error)
}

// RateBudget bounds how many upstream calls one tick may issue
type RateBudget interface {
	Reserve(ctx context.Context, n int) (bool, error)
	Release(ctx context.Context, n int)
}

// SchedulerConfig carries the tunables the scheduler needs
type SchedulerConfig struct {
	MaxBatchesPerTick   int
	EnrichmentChunkSize int
	MaxAttempts         int
	RetryBackoffBase    time.Duration
}

// SchedulerJob drives the batch state machine. Every tick it claims a bounded
// set of pending batches across all live sessions, dispatches them to the
// matching worker and writes back outcomes, spawning successor batches until
// each session completes, errors or is cancelled. All state lives in the
// database; overlapping ticks are safe because claims are atomic.
type SchedulerJob struct {
	cfg          SchedulerConfig
	athleteRepo  *repositories.AthleteRepo
	sessionRepo  *repositories.SessionRepo
	batchRepo    *repositories.BatchRepo
	activityRepo *repositories.ActivityRecordRepo
	budget       RateBudget
	discovery    DiscoveryProcessor
	enrichment   EnrichmentProcessor
}

// NewSchedulerJob creates the batch scheduler
func NewSchedulerJob(
	cfg SchedulerConfig,
	athleteRepo *repositories.AthleteRepo,
	sessionRepo *repositories.SessionRepo,
	batchRepo *repositories.BatchRepo,
	activityRepo *repositories.ActivityRecordRepo,
	budget RateBudget,
	discovery DiscoveryProcessor,
	enrichment EnrichmentProcessor,
) *SchedulerJob {
	return &SchedulerJob{
		cfg:          cfg,
		athleteRepo:  athleteRepo,
		sessionRepo:  sessionRepo,
		batchRepo:    batchRepo,
		activityRepo: activityRepo,
		budget:       budget,
		discovery:    discovery,
		enrichment:   enrichment,
	}
}

// RunOnce executes one scheduler tick. A tick with no budget or no pending
// work claims nothing and exits cleanly; work resumes on the next tick.
func (j *SchedulerJob) RunOnce(ctx context.Context) error {
	now := time.Now().UTC()

	candidates, err := j.batchRepo.ListClaimable(ctx, now, j.cfg.MaxBatchesPerTick)
	if err != nil {
		return fmt.Errorf("listing claimable batches: %w", err)
	}
	if len(candidates) == 0 {
		return nil
	}

	var claimed []gormModels.SyncBatch
	for i := range candidates {
		batch := candidates[i]

		cost := j.batchCost(&batch)
		granted, err := j.budget.Reserve(ctx, cost)
		if err != nil {
			return fmt.Errorf("reserving rate budget: %w", err)
		}
		if !granted {
			log.Printf("[Scheduler] Rate budget exhausted after %d claims, ending tick", len(claimed))
			break
		}

		ok, err := j.batchRepo.Claim(ctx, batch.ID, now)
		if err != nil {
			j.budget.Release(ctx, cost)
			return fmt.Errorf("claiming batch %s: %w", batch.ID, err)
		}
		if !ok {
			// Another tick got there first.
			j.budget.Release(ctx, cost)
			continue
		}

		batch.AttemptCount++ // mirrors the claim's increment
		claimed = append(claimed, batch)
	}

	if len(claimed) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range claimed {
		batch := claimed[i]
		g.Go(func() error {
			j.processBatch(gctx, &batch)
			return nil
		})
	}
	return g.Wait()
}

// batchCost estimates the upstream calls a batch will issue
func (j *SchedulerJob) batchCost(batch *gormModels.SyncBatch) int {
	if batch.BatchType == gormModels.BatchDiscovery {
		return 1
	}
	ids, err := batch.DecodeActivityIDs()
	if err != nil || len(ids) == 0 {
		return 1
	}
	return len(ids)
}

// processBatch dispatches one claimed batch and records its outcome. Failures
// never propagate out: they are written to the batch and session rows.
func (j *SchedulerJob) processBatch(ctx context.Context, batch *gormModels.SyncBatch) {
	session, err := j.sessionRepo.GetByID(ctx, batch.SessionID)
	if err != nil || session == nil {
		log.Printf("[Scheduler] Batch %s: session lookup failed: %v", batch.ID, err)
		j.requeueWithBackoff(ctx, batch)
		return
	}

	if session.Status.Terminal() {
		// Cooperative cancellation: never resurrect a finished session.
		_ = j.batchRepo.CancelForSession(ctx, session.ID)
		return
	}

	if err := j.sessionRepo.MarkInProgress(ctx, session.ID); err != nil {
		log.Printf("[Scheduler] Batch %s: marking session in progress: %v", batch.ID, err)
	}

	athlete, err := j.athleteRepo.GetByID(ctx, batch.AthleteID)
	if err != nil || athlete == nil {
		j.failSession(ctx, batch, session, fmt.Sprintf("athlete %s not found", batch.AthleteID))
		return
	}

	switch batch.BatchType {
	case gormModels.BatchDiscovery:
		result, err := j.discovery.Process(ctx, athlete, batch)
		if err != nil {
			j.handleBatchError(ctx, batch, session, athlete, err)
			return
		}
		j.completeDiscovery(ctx, batch, session, athlete, result)

	case gormModels.BatchEnrichment:
		result, err := j.enrichment.Process(ctx, athlete, batch)
		if err != nil {
			j.handleBatchError(ctx, batch, session, athlete, err)
			return
		}
		j.completeEnrichment(ctx, batch, session, athlete, result)
	}
}

// completeDiscovery records a finished discovery page and spawns the
// successor: either the next page, or the session's enrichment batches.
func (j *SchedulerJob) completeDiscovery(ctx context.Context, batch *gormModels.SyncBatch, session *gormModels.SyncSession, athlete *gormModels.Athlete, result *dtos.DiscoveryResult) {
	now := time.Now().UTC()

	if err := j.batchRepo.Complete(ctx, batch.ID, result.ActivitiesFetched, result.RecordsAdded, now); err != nil {
		log.Printf("[Scheduler] Batch %s: completing: %v", batch.ID, err)
		return
	}

	// Re-read: the session may have been cancelled while we were working.
	current, err := j.sessionRepo.GetByID(ctx, session.ID)
	if err != nil || current == nil || current.Status.Terminal() {
		return
	}

	if result.HasMore {
		if err := j.createDiscoveryBatch(ctx, current, result.NextBefore, batch.After); err != nil {
			log.Printf("[Scheduler] Session %s: creating next discovery batch: %v", session.ID, err)
		}
		return
	}

	// Short page: discovery is done, move to enrichment.
	if err := j.startEnrichmentPhase(ctx, current, athlete); err != nil {
		log.Printf("[Scheduler] Session %s: starting enrichment: %v", session.ID, err)
	}
}

// startEnrichmentPhase chunks every un-enriched record into independent
// batches, or completes the session outright when nothing needs detail.
func (j *SchedulerJob) startEnrichmentPhase(ctx context.Context, session *gormModels.SyncSession, athlete *gormModels.Athlete) error {
	missing, err := j.activityRepo.ListMissingDetail(ctx, athlete.ID)
	if err != nil {
		return fmt.Errorf("listing un-enriched records: %w", err)
	}

	if len(missing) == 0 {
		j.completeSession(ctx, session, athlete)
		return nil
	}

	if err := j.sessionRepo.SetPhase(ctx, session.ID, gormModels.PhaseEnrichment); err != nil {
		return err
	}

	chunks := chunkIDs(missing, j.cfg.EnrichmentChunkSize)
	if err := j.sessionRepo.SetTotalBatchesExpected(ctx, session.ID, len(chunks)); err != nil {
		return err
	}

	for _, chunk := range chunks {
		if err := j.createEnrichmentBatch(ctx, session, chunk, 0); err != nil {
			return err
		}
	}

	log.Printf("[Scheduler] Session %s: discovery complete, %d enrichment batches over %d records",
		session.ID, len(chunks), len(missing))
	return nil
}

// completeEnrichment records a finished chunk, spawns a follow-up for failed
// activities when allowed, and completes the session when it was the last
// outstanding batch.
func (j *SchedulerJob) completeEnrichment(ctx context.Context, batch *gormModels.SyncBatch, session *gormModels.SyncSession, athlete *gormModels.Athlete, result *dtos.EnrichmentResult) {
	now := time.Now().UTC()

	if err := j.batchRepo.Complete(ctx, batch.ID, result.Updated+result.Failed, result.Updated, now); err != nil {
		log.Printf("[Scheduler] Batch %s: completing: %v", batch.ID, err)
		return
	}

	current, err := j.sessionRepo.GetByID(ctx, session.ID)
	if err != nil || current == nil || current.Status.Terminal() {
		return
	}

	// Partial failures get one follow-up chunk, bounded by the same attempt
	// ceiling as ordinary retries.
	if len(result.FailedIDs) > 0 && batch.AttemptCount < j.cfg.MaxAttempts {
		if err := j.createEnrichmentBatch(ctx, current, result.FailedIDs, batch.AttemptCount); err != nil {
			log.Printf("[Scheduler] Session %s: creating follow-up batch: %v", session.ID, err)
		}
		return
	}

	outstanding, err := j.batchRepo.CountOutstanding(ctx, session.ID)
	if err != nil {
		log.Printf("[Scheduler] Session %s: counting outstanding batches: %v", session.ID, err)
		return
	}
	if outstanding == 0 {
		j.finishEnrichment(ctx, current, athlete)
	}
}

// finishEnrichment closes out a drained enrichment phase. The drained batch
// set is checked against the records themselves: a storage failure while
// planning chunks can lose part of the plan, and completing on batch counts
// alone would end the session with records silently un-enriched. Stragglers
// are re-chunked; records whose chunk already hit the attempt ceiling are the
// permitted give-ups and do not block completion.
func (j *SchedulerJob) finishEnrichment(ctx context.Context, session *gormModels.SyncSession, athlete *gormModels.Athlete) {
	missing, err := j.activityRepo.ListMissingDetail(ctx, athlete.ID)
	if err != nil {
		log.Printf("[Scheduler] Session %s: listing un-enriched records: %v", session.ID, err)
		return
	}
	if len(missing) == 0 {
		j.completeSession(ctx, session, athlete)
		return
	}

	givenUp, err := j.exhaustedEnrichmentIDs(ctx, session.ID)
	if err != nil {
		log.Printf("[Scheduler] Session %s: listing exhausted chunks: %v", session.ID, err)
		return
	}

	var stragglers []int64
	for _, id := range missing {
		if !givenUp[id] {
			stragglers = append(stragglers, id)
		}
	}
	if len(stragglers) == 0 {
		j.completeSession(ctx, session, athlete)
		return
	}

	log.Printf("[Scheduler] Session %s: %d records missed the enrichment plan, re-chunking", session.ID, len(stragglers))
	for _, chunk := range chunkIDs(stragglers, j.cfg.EnrichmentChunkSize) {
		if err := j.createEnrichmentBatch(ctx, session, chunk, 0); err != nil {
			log.Printf("[Scheduler] Session %s: re-chunking: %v", session.ID, err)
			return
		}
	}
}

// exhaustedEnrichmentIDs collects the activity IDs of every enrichment chunk
// that reached the attempt ceiling
func (j *SchedulerJob) exhaustedEnrichmentIDs(ctx context.Context, sessionID string) (map[int64]bool, error) {
	batches, err := j.batchRepo.ListEnrichmentAtCeiling(ctx, sessionID, j.cfg.MaxAttempts)
	if err != nil {
		return nil, err
	}

	givenUp := make(map[int64]bool)
	for i := range batches {
		ids, err := batches[i].DecodeActivityIDs()
		if err != nil {
			continue
		}
		for _, id := range ids {
			givenUp[id] = true
		}
	}
	return givenUp, nil
}

// completeSession terminates a session successfully and releases the athlete
func (j *SchedulerJob) completeSession(ctx context.Context, session *gormModels.SyncSession, athlete *gormModels.Athlete) {
	now := time.Now().UTC()

	if err := j.sessionRepo.Complete(ctx, session.ID, now); err != nil {
		log.Printf("[Scheduler] Session %s: completing: %v", session.ID, err)
		return
	}
	if err := j.athleteRepo.SetSyncCompleted(ctx, athlete.ID, now); err != nil {
		log.Printf("[Scheduler] Session %s: updating athlete: %v", session.ID, err)
	}

	log.Printf("[Scheduler] Session %s completed for athlete %s", session.ID, athlete.ID)
}

// handleBatchError classifies a worker failure: auth errors park the session
// immediately, everything else retries with backoff up to the attempt ceiling.
func (j *SchedulerJob) handleBatchError(ctx context.Context, batch *gormModels.SyncBatch, session *gormModels.SyncSession, athlete *gormModels.Athlete, err error) {
	log.Printf("[Scheduler] Batch %s (attempt %d) failed: %v", batch.ID, batch.AttemptCount, err)

	if providers.IsAuth(err) {
		_ = j.batchRepo.MarkFailed(ctx, batch.ID)
		j.failSession(ctx, batch, session, fmt.Sprintf("authorization failed, reauthorize athlete: %v", err))
		return
	}

	if batch.AttemptCount >= j.cfg.MaxAttempts {
		_ = j.batchRepo.MarkFailed(ctx, batch.ID)
		j.failSession(ctx, batch, session, fmt.Sprintf("batch %d failed after %d attempts: %v", batch.BatchNumber, batch.AttemptCount, err))
		return
	}

	j.requeueWithBackoff(ctx, batch)
}

func (j *SchedulerJob) requeueWithBackoff(ctx context.Context, batch *gormModels.SyncBatch) {
	delay := j.cfg.RetryBackoffBase * time.Duration(batch.AttemptCount)
	if delay <= 0 {
		delay = j.cfg.RetryBackoffBase
	}
	if err := j.batchRepo.Requeue(ctx, batch.ID, time.Now().UTC().Add(delay)); err != nil {
		log.Printf("[Scheduler] Batch %s: requeue failed: %v", batch.ID, err)
	}
}

// failSession parks the session in error and surfaces the message on the athlete
func (j *SchedulerJob) failSession(ctx context.Context, batch *gormModels.SyncBatch, session *gormModels.SyncSession, message string) {
	if err := j.sessionRepo.Fail(ctx, session.ID, message); err != nil {
		log.Printf("[Scheduler] Session %s: failing: %v", session.ID, err)
	}
	_ = j.batchRepo.CancelForSession(ctx, session.ID)
	if err := j.athleteRepo.SetSyncError(ctx, batch.AthleteID, message); err != nil {
		log.Printf("[Scheduler] Session %s: flagging athlete: %v", session.ID, err)
	}
}

// createDiscoveryBatch writes the successor discovery page row
func (j *SchedulerJob) createDiscoveryBatch(ctx context.Context, session *gormModels.SyncSession, before, after *time.Time) error {
	number, err := j.sessionRepo.IncrementBatchNumber(ctx, session.ID)
	if err != nil {
		return err
	}

	return j.batchRepo.Create(ctx, &gormModels.SyncBatch{
		ID:          uuid.NewString(),
		SessionID:   session.ID,
		AthleteID:   session.AthleteID,
		BatchNumber: number,
		BatchType:   gormModels.BatchDiscovery,
		Before:      before,
		After:       after,
		Status:      gormModels.BatchPending,
	})
}

// createEnrichmentBatch writes one enrichment chunk row. attemptFloor carries
// a parent batch's attempts into follow-up chunks so retry chains stay bounded.
func (j *SchedulerJob) createEnrichmentBatch(ctx context.Context, session *gormModels.SyncSession, ids []int64, attemptFloor int) error {
	number, err := j.sessionRepo.IncrementBatchNumber(ctx, session.ID)
	if err != nil {
		return err
	}

	batch := &gormModels.SyncBatch{
		ID:           uuid.NewString(),
		SessionID:    session.ID,
		AthleteID:    session.AthleteID,
		BatchNumber:  number,
		BatchType:    gormModels.BatchEnrichment,
		Status:       gormModels.BatchPending,
		AttemptCount: attemptFloor,
	}
	if err := batch.EncodeActivityIDs(ids); err != nil {
		return err
	}
	return j.batchRepo.Create(ctx, batch)
}

// RunScheduled advances the scheduler on a fixed interval until ctx is done
func (j *SchedulerJob) RunScheduled(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil {
				log.Printf("[Scheduler] Error in scheduled tick: %v", err)
			}
		}
	}
}

// chunkIDs splits ids into fixed-size disjoint chunks
func chunkIDs(ids []int64, size int) [][]int64 {
	if size <= 0 {
		size = len(ids)
	}
	var chunks [][]int64
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
