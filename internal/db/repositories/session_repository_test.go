package repositories

import (
	"context"
	"testing"
	"time"

	gormModels "runclub/pacemaker/internal/models/gorm"
)

func TestSessionRepo_GetActiveForAthlete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewSessionRepo(db)

	athlete := seedAthlete(t, db)
	seedSession(t, db, athlete.ID, gormModels.SessionCompleted)
	live := seedSession(t, db, athlete.ID, gormModels.SessionInProgress)

	got, err := repo.GetActiveForAthlete(ctx, athlete.ID)
	if err != nil {
		t.Fatalf("fetching active session: %v", err)
	}
	if got == nil || got.ID != live.ID {
		t.Fatalf("active session = %v, want %s", got, live.ID)
	}

	other := seedAthlete(t, db)
	got, err = repo.GetActiveForAthlete(ctx, other.ID)
	if err != nil {
		t.Fatalf("fetching for idle athlete: %v", err)
	}
	if got != nil {
		t.Errorf("expected no active session, got %s", got.ID)
	}
}

func TestSessionRepo_TerminalStatusesStayPut(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewSessionRepo(db)

	athlete := seedAthlete(t, db)
	session := seedSession(t, db, athlete.ID, gormModels.SessionInProgress)

	if err := repo.Complete(ctx, session.ID, time.Now().UTC()); err != nil {
		t.Fatalf("completing: %v", err)
	}

	// Neither cancel nor fail may resurrect a completed session.
	if err := repo.Cancel(ctx, session.ID); err != nil {
		t.Fatalf("cancelling: %v", err)
	}
	if err := repo.Fail(ctx, session.ID, "too late"); err != nil {
		t.Fatalf("failing: %v", err)
	}

	got, err := repo.GetByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("fetching: %v", err)
	}
	if got.Status != gormModels.SessionCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.Phase != gormModels.PhaseCompleted {
		t.Errorf("phase = %s, want completed", got.Phase)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at should be stamped")
	}
	if got.ErrorMessage != nil {
		t.Errorf("error message = %q, want none", *got.ErrorMessage)
	}
}

func TestSessionRepo_IncrementBatchNumber(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewSessionRepo(db)

	athlete := seedAthlete(t, db)
	session := seedSession(t, db, athlete.ID, gormModels.SessionInProgress)

	for want := 2; want <= 4; want++ {
		got, err := repo.IncrementBatchNumber(ctx, session.ID)
		if err != nil {
			t.Fatalf("incrementing: %v", err)
		}
		if got != want {
			t.Errorf("batch number = %d, want %d", got, want)
		}
	}
}

func TestSessionRepo_ListStalled(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewSessionRepo(db)

	athlete := seedAthlete(t, db)

	old := time.Now().UTC().Add(-48 * time.Hour)

	stalled := seedSession(t, db, athlete.ID, gormModels.SessionInProgress)
	if err := db.Model(&gormModels.SyncSession{}).Where("id = ?", stalled.ID).Update("started_at", old).Error; err != nil {
		t.Fatalf("backdating stalled session: %v", err)
	}

	// Equally old, but a batch completed recently, so it is still moving.
	moving := seedSession(t, db, athlete.ID, gormModels.SessionInProgress)
	if err := db.Model(&gormModels.SyncSession{}).Where("id = ?", moving.ID).Update("started_at", old).Error; err != nil {
		t.Fatalf("backdating moving session: %v", err)
	}
	batch := seedBatch(t, db, moving, 1, gormModels.BatchCompleted)
	if err := db.Model(&gormModels.SyncBatch{}).Where("id = ?", batch.ID).Update("completed_at", time.Now().UTC()).Error; err != nil {
		t.Fatalf("stamping batch completion: %v", err)
	}

	recent := seedSession(t, db, athlete.ID, gormModels.SessionInProgress)
	_ = recent

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	got, err := repo.ListStalled(ctx, cutoff)
	if err != nil {
		t.Fatalf("listing stalled: %v", err)
	}
	if len(got) != 1 || got[0].ID != stalled.ID {
		t.Fatalf("stalled = %v, want just %s", got, stalled.ID)
	}
}
