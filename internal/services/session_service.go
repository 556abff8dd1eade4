package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"runclub/pacemaker/internal/db/repositories"
	"runclub/pacemaker/internal/models/dtos"

	gormModels "runclub/pacemaker/internal/models/gorm"
)

// SessionService starts, cancels and summarizes sync runs. The admin layer
// talks to it; the scheduler does the actual work on its own ticks.
type SessionService struct {
	athleteRepo *repositories.AthleteRepo
	sessionRepo *repositories.SessionRepo
	batchRepo   *repositories.BatchRepo
}

// NewSessionService creates a session manager
func NewSessionService(athleteRepo *repositories.AthleteRepo, sessionRepo *repositories.SessionRepo, batchRepo *repositories.BatchRepo) *SessionService {
	return &SessionService{
		athleteRepo: athleteRepo,
		sessionRepo: sessionRepo,
		batchRepo:   batchRepo,
	}
}

// InitiateSync creates a new session and its first discovery batch. An
// already-active session for the athlete is cancelled first: there is exactly
// one live session per athlete. The handler only writes rows and returns;
// processing happens on the next scheduler tick.
func (s *SessionService) InitiateSync(ctx context.Context, athleteID string, fullBackfill bool) (string, error) {
	athlete, err := s.athleteRepo.GetByID(ctx, athleteID)
	if err != nil {
		return "", fmt.Errorf("looking up athlete: %w", err)
	}
	if athlete == nil {
		return "", fmt.Errorf("athlete %s not found", athleteID)
	}

	if active, err := s.sessionRepo.GetActiveForAthlete(ctx, athleteID); err != nil {
		return "", fmt.Errorf("checking active session: %w", err)
	} else if active != nil {
		log.Printf("[SessionService] Cancelling active session %s for athlete %s before new sync", active.ID, athleteID)
		if err := s.CancelSession(ctx, active.ID); err != nil {
			return "", fmt.Errorf("cancelling previous session: %w", err)
		}
	}

	// Incremental resyncs start from the last successful sync; a full
	// backfill walks the entire history.
	var after *time.Time
	if !fullBackfill && athlete.LastSyncedAt != nil {
		after = athlete.LastSyncedAt
	}

	session := &gormModels.SyncSession{
		ID:                 uuid.NewString(),
		AthleteID:          athleteID,
		Phase:              gormModels.PhaseDiscovery,
		Status:             gormModels.SessionPending,
		FullBackfill:       fullBackfill,
		CurrentBatchNumber: 1,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}

	first := &gormModels.SyncBatch{
		ID:          uuid.NewString(),
		SessionID:   session.ID,
		AthleteID:   athleteID,
		BatchNumber: 1,
		BatchType:   gormModels.BatchDiscovery,
		After:       after,
		Status:      gormModels.BatchPending,
	}
	if err := s.batchRepo.Create(ctx, first); err != nil {
		return "", fmt.Errorf("creating first discovery batch: %w", err)
	}

	if err := s.athleteRepo.SetSyncInProgress(ctx, athleteID, session.ID); err != nil {
		return "", fmt.Errorf("updating athlete status: %w", err)
	}

	log.Printf("[SessionService] Started session %s for athlete %s (full_backfill=%t)", session.ID, athleteID, fullBackfill)
	return session.ID, nil
}

// CancelSession sets the session and all its non-terminal batches to
// cancelled. Idempotent: cancelling a finished session is a no-op.
func (s *SessionService) CancelSession(ctx context.Context, sessionID string) error {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("looking up session: %w", err)
	}
	if session == nil {
		return fmt.Errorf("session %s not found", sessionID)
	}

	if session.Status.Terminal() {
		return nil
	}

	if err := s.sessionRepo.Cancel(ctx, sessionID); err != nil {
		return fmt.Errorf("cancelling session: %w", err)
	}
	if err := s.batchRepo.CancelForSession(ctx, sessionID); err != nil {
		return fmt.Errorf("cancelling batches: %w", err)
	}
	if err := s.athleteRepo.SetSyncIdle(ctx, session.AthleteID); err != nil {
		return fmt.Errorf("resetting athlete: %w", err)
	}

	log.Printf("[SessionService] Cancelled session %s", sessionID)
	return nil
}

// GetSessionSummary aggregates batch counts by status and type for progress
// reporting. Read-only.
func (s *SessionService) GetSessionSummary(ctx context.Context, sessionID string) (*dtos.SessionSummary, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("looking up session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	summary, err := s.batchRepo.Summarize(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	summary.AthleteID = session.AthleteID
	summary.Phase = string(session.Phase)
	summary.Status = string(session.Status)
	summary.TotalBatchesExpected = session.TotalBatchesExpected
	summary.StartedAt = session.StartedAt
	summary.CompletedAt = session.CompletedAt
	if session.ErrorMessage != nil {
		summary.Error = *session.ErrorMessage
	}
	return summary, nil
}
