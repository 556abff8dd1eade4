package workers

import (
	"context"
	"fmt"
	"log"
	"time"

	"runclub/pacemaker/internal/db/repositories"
)

// HealthMonitor reclaims abandoned work on its own schedule, independent of
// the scheduler. A batch claimed by an invocation that was killed stays in
// processing forever unless something puts it back; sessions that stop moving
// entirely are failed so the athlete can be re-synced.
type HealthMonitor struct {
	athleteRepo *repositories.AthleteRepo
	sessionRepo *repositories.SessionRepo
	batchRepo   *repositories.BatchRepo

	staleClaimThreshold time.Duration
	stalledSessionAfter time.Duration
	maxAttempts         int
}

// NewHealthMonitor creates the monitor with its two sweep thresholds
func NewHealthMonitor(
	athleteRepo *repositories.AthleteRepo,
	sessionRepo *repositories.SessionRepo,
	batchRepo *repositories.BatchRepo,
	staleClaimThreshold time.Duration,
	stalledSessionAfter time.Duration,
	maxAttempts int,
) *HealthMonitor {
	return &HealthMonitor{
		athleteRepo:         athleteRepo,
		sessionRepo:         sessionRepo,
		batchRepo:           batchRepo,
		staleClaimThreshold: staleClaimThreshold,
		stalledSessionAfter: stalledSessionAfter,
		maxAttempts:         maxAttempts,
	}
}

// RunOnce executes both sweeps against current durable state
func (m *HealthMonitor) RunOnce(ctx context.Context) error {
	now := time.Now().UTC()

	if err := m.reclaimStaleBatches(ctx, now); err != nil {
		return err
	}
	return m.failStalledSessions(ctx, now)
}

// reclaimStaleBatches resets abandoned claims to pending, bounded by the same
// attempt ceiling as ordinary failures; exhausted ones fail their session.
func (m *HealthMonitor) reclaimStaleBatches(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-m.staleClaimThreshold)

	reclaimed, err := m.batchRepo.ResetStale(ctx, cutoff, m.maxAttempts)
	if err != nil {
		return fmt.Errorf("resetting stale batches: %w", err)
	}
	for _, b := range reclaimed {
		log.Printf("[HealthMonitor] Reclaimed stale batch %s (session %s, attempt %d)", b.ID, b.SessionID, b.AttemptCount)
	}

	exhausted, err := m.batchRepo.ListStaleExhausted(ctx, cutoff, m.maxAttempts)
	if err != nil {
		return fmt.Errorf("listing exhausted stale batches: %w", err)
	}
	for _, b := range exhausted {
		message := fmt.Sprintf("batch %d abandoned after %d attempts", b.BatchNumber, b.AttemptCount)
		log.Printf("[HealthMonitor] Session %s stuck: %s", b.SessionID, message)

		if err := m.batchRepo.MarkFailed(ctx, b.ID); err != nil {
			log.Printf("[HealthMonitor] Failed to mark batch %s: %v", b.ID, err)
			continue
		}
		if err := m.sessionRepo.Fail(ctx, b.SessionID, message); err != nil {
			log.Printf("[HealthMonitor] Failed to fail session %s: %v", b.SessionID, err)
			continue
		}
		_ = m.batchRepo.CancelForSession(ctx, b.SessionID)
		if err := m.athleteRepo.SetSyncError(ctx, b.AthleteID, message); err != nil {
			log.Printf("[HealthMonitor] Failed to flag athlete %s: %v", b.AthleteID, err)
		}
	}
	return nil
}

// failStalledSessions force-fails sessions with no batch progress at all for
// much longer than any single claim could be stale
func (m *HealthMonitor) failStalledSessions(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-m.stalledSessionAfter)

	stalled, err := m.sessionRepo.ListStalled(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("listing stalled sessions: %w", err)
	}

	for _, s := range stalled {
		message := fmt.Sprintf("session made no progress since %s", s.StartedAt.Format(time.RFC3339))
		log.Printf("[HealthMonitor] Failing stalled session %s: %s", s.ID, message)

		if err := m.sessionRepo.Fail(ctx, s.ID, message); err != nil {
			log.Printf("[HealthMonitor] Failed to fail session %s: %v", s.ID, err)
			continue
		}
		_ = m.batchRepo.CancelForSession(ctx, s.ID)
		if err := m.athleteRepo.SetSyncError(ctx, s.AthleteID, message); err != nil {
			log.Printf("[HealthMonitor] Failed to flag athlete %s: %v", s.AthleteID, err)
		}
	}
	return nil
}

// Start runs the monitor on its own interval until ctx is done
func (m *HealthMonitor) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.RunOnce(ctx); err != nil {
				log.Printf("[HealthMonitor] Sweep error: %v", err)
			}
		}
	}
}
