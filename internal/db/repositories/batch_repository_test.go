package repositories

import (
	"context"
	"testing"
	"time"

	gormModels "runclub/pacemaker/internal/models/gorm"
)

func TestBatchRepo_ClaimIsExclusive(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewBatchRepo(db)

	athlete := seedAthlete(t, db)
	session := seedSession(t, db, athlete.ID, gormModels.SessionPending)
	batch := seedBatch(t, db, session, 1, gormModels.BatchPending)

	now := time.Now().UTC()

	ok, err := repo.Claim(ctx, batch.ID, now)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if !ok {
		t.Fatal("first claim should succeed")
	}

	// A second claim must lose: the batch is no longer pending.
	ok, err = repo.Claim(ctx, batch.ID, now)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if ok {
		t.Fatal("second claim should be rejected")
	}

	got, err := repo.GetByID(ctx, batch.ID)
	if err != nil {
		t.Fatalf("fetching batch: %v", err)
	}
	if got.Status != gormModels.BatchProcessing {
		t.Errorf("status = %s, want processing", got.Status)
	}
	if got.AttemptCount != 1 {
		t.Errorf("attempt count = %d, want 1", got.AttemptCount)
	}
	if got.ClaimedAt == nil {
		t.Error("claimed_at should be stamped")
	}
}

func TestBatchRepo_ListClaimableSkipsBackoffAndDeadSessions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewBatchRepo(db)

	athlete := seedAthlete(t, db)
	live := seedSession(t, db, athlete.ID, gormModels.SessionInProgress)
	cancelled := seedSession(t, db, athlete.ID, gormModels.SessionCancelled)

	ready := seedBatch(t, db, live, 1, gormModels.BatchPending)
	seedBatch(t, db, cancelled, 1, gormModels.BatchPending)

	// Pending but still in backoff.
	delayed := seedBatch(t, db, live, 2, gormModels.BatchPending)
	future := time.Now().UTC().Add(time.Hour)
	if err := db.Model(&gormModels.SyncBatch{}).Where("id = ?", delayed.ID).Update("not_before", future).Error; err != nil {
		t.Fatalf("setting not_before: %v", err)
	}

	claimable, err := repo.ListClaimable(ctx, time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("listing claimable: %v", err)
	}
	if len(claimable) != 1 {
		t.Fatalf("claimable = %d batches, want 1", len(claimable))
	}
	if claimable[0].ID != ready.ID {
		t.Errorf("claimable batch = %s, want %s", claimable[0].ID, ready.ID)
	}
}

func TestBatchRepo_RequeueRestoresEligibilityAfterBackoff(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewBatchRepo(db)

	athlete := seedAthlete(t, db)
	session := seedSession(t, db, athlete.ID, gormModels.SessionInProgress)
	batch := seedBatch(t, db, session, 1, gormModels.BatchPending)

	now := time.Now().UTC()
	if ok, err := repo.Claim(ctx, batch.ID, now); err != nil || !ok {
		t.Fatalf("claim: ok=%t err=%v", ok, err)
	}

	notBefore := now.Add(-time.Second) // backoff already elapsed
	if err := repo.Requeue(ctx, batch.ID, notBefore); err != nil {
		t.Fatalf("requeue: %v", err)
	}

	got, _ := repo.GetByID(ctx, batch.ID)
	if got.Status != gormModels.BatchPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	if got.AttemptCount != 1 {
		t.Errorf("attempt count = %d, want 1 (claim already counted it)", got.AttemptCount)
	}

	claimable, err := repo.ListClaimable(ctx, time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("listing claimable: %v", err)
	}
	if len(claimable) != 1 {
		t.Fatalf("requeued batch should be claimable again, got %d", len(claimable))
	}
}

func TestBatchRepo_ResetStaleRespectsAttemptCeiling(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewBatchRepo(db)

	athlete := seedAthlete(t, db)
	session := seedSession(t, db, athlete.ID, gormModels.SessionInProgress)

	stale := seedBatch(t, db, session, 1, gormModels.BatchPending)
	exhausted := seedBatch(t, db, session, 2, gormModels.BatchPending)
	fresh := seedBatch(t, db, session, 3, gormModels.BatchPending)

	old := time.Now().UTC().Add(-time.Hour)
	recent := time.Now().UTC()

	if ok, err := repo.Claim(ctx, stale.ID, old); err != nil || !ok {
		t.Fatalf("claiming stale: ok=%t err=%v", ok, err)
	}
	if ok, err := repo.Claim(ctx, exhausted.ID, old); err != nil || !ok {
		t.Fatalf("claiming exhausted: ok=%t err=%v", ok, err)
	}
	if err := db.Model(&gormModels.SyncBatch{}).Where("id = ?", exhausted.ID).Update("attempt_count", 5).Error; err != nil {
		t.Fatalf("bumping attempts: %v", err)
	}
	if ok, err := repo.Claim(ctx, fresh.ID, recent); err != nil || !ok {
		t.Fatalf("claiming fresh: ok=%t err=%v", ok, err)
	}

	cutoff := time.Now().UTC().Add(-15 * time.Minute)
	reclaimed, err := repo.ResetStale(ctx, cutoff, 5)
	if err != nil {
		t.Fatalf("reset stale: %v", err)
	}
	if len(reclaimed) != 1 || reclaimed[0].ID != stale.ID {
		t.Fatalf("reclaimed = %v, want just the stale batch", reclaimed)
	}

	got, _ := repo.GetByID(ctx, stale.ID)
	if got.Status != gormModels.BatchPending {
		t.Errorf("stale batch status = %s, want pending", got.Status)
	}
	got, _ = repo.GetByID(ctx, fresh.ID)
	if got.Status != gormModels.BatchProcessing {
		t.Errorf("fresh batch status = %s, want processing (untouched)", got.Status)
	}

	over, err := repo.ListStaleExhausted(ctx, cutoff, 5)
	if err != nil {
		t.Fatalf("listing exhausted: %v", err)
	}
	if len(over) != 1 || over[0].ID != exhausted.ID {
		t.Fatalf("exhausted = %v, want just the over-ceiling batch", over)
	}
}

func TestBatchRepo_CancelForSessionLeavesCompletedAlone(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewBatchRepo(db)

	athlete := seedAthlete(t, db)
	session := seedSession(t, db, athlete.ID, gormModels.SessionInProgress)

	pending := seedBatch(t, db, session, 1, gormModels.BatchPending)
	done := seedBatch(t, db, session, 2, gormModels.BatchCompleted)

	if err := repo.CancelForSession(ctx, session.ID); err != nil {
		t.Fatalf("cancelling: %v", err)
	}

	got, _ := repo.GetByID(ctx, pending.ID)
	if got.Status != gormModels.BatchCancelled {
		t.Errorf("pending batch status = %s, want cancelled", got.Status)
	}
	got, _ = repo.GetByID(ctx, done.ID)
	if got.Status != gormModels.BatchCompleted {
		t.Errorf("completed batch status = %s, want completed", got.Status)
	}
}

func TestBatchRepo_SummarizeAggregatesByTypeAndStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewBatchRepo(db)

	athlete := seedAthlete(t, db)
	session := seedSession(t, db, athlete.ID, gormModels.SessionInProgress)

	d1 := seedBatch(t, db, session, 1, gormModels.BatchPending)
	now := time.Now().UTC()
	if ok, err := repo.Claim(ctx, d1.ID, now); err != nil || !ok {
		t.Fatalf("claim: ok=%t err=%v", ok, err)
	}
	if err := repo.Complete(ctx, d1.ID, 200, 150, now); err != nil {
		t.Fatalf("complete: %v", err)
	}

	enrich := &gormModels.SyncBatch{
		ID:          "enrich-1",
		SessionID:   session.ID,
		AthleteID:   athlete.ID,
		BatchNumber: 2,
		BatchType:   gormModels.BatchEnrichment,
		Status:      gormModels.BatchPending,
	}
	if err := repo.Create(ctx, enrich); err != nil {
		t.Fatalf("creating enrichment batch: %v", err)
	}

	summary, err := repo.Summarize(ctx, session.ID)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if summary.Discovery.Completed != 1 {
		t.Errorf("discovery completed = %d, want 1", summary.Discovery.Completed)
	}
	if summary.Enrichment.Pending != 1 {
		t.Errorf("enrichment pending = %d, want 1", summary.Enrichment.Pending)
	}
	if summary.BatchesTotal != 2 {
		t.Errorf("batches total = %d, want 2", summary.BatchesTotal)
	}
	if summary.ActivitiesFetched != 200 || summary.RecordsAdded != 150 {
		t.Errorf("fetched/added = %d/%d, want 200/150", summary.ActivitiesFetched, summary.RecordsAdded)
	}

	outstanding, err := repo.CountOutstanding(ctx, session.ID)
	if err != nil {
		t.Fatalf("counting outstanding: %v", err)
	}
	if outstanding != 1 {
		t.Errorf("outstanding = %d, want 1", outstanding)
	}
}
