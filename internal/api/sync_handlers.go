package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"runclub/pacemaker/internal/db/repositories"
	"runclub/pacemaker/internal/jobs"
	"runclub/pacemaker/internal/logging"
	"runclub/pacemaker/internal/models/dtos"
	"runclub/pacemaker/internal/services"
	"runclub/pacemaker/internal/workers"

	gormModels "runclub/pacemaker/internal/models/gorm"
)

// SyncHandlers exposes the sync admin surface: trigger, cancel, progress and
// the time-based tick entry points. Handlers only read and write rows; the
// scheduler does the processing on its own ticks.
type SyncHandlers struct {
	sessions    *services.SessionService
	scheduler   *jobs.SchedulerJob
	monitor     *workers.HealthMonitor
	athleteRepo *repositories.AthleteRepo
}

// NewSyncHandlers wires the handler set
func NewSyncHandlers(sessions *services.SessionService, scheduler *jobs.SchedulerJob, monitor *workers.HealthMonitor, athleteRepo *repositories.AthleteRepo) *SyncHandlers {
	return &SyncHandlers{
		sessions:    sessions,
		scheduler:   scheduler,
		monitor:     monitor,
		athleteRepo: athleteRepo,
	}
}

// TriggerSync handles POST /api/v1/sync/trigger
func (h *SyncHandlers) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var req dtos.TriggerSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AthleteID == "" {
		respondWithError(w, http.StatusBadRequest, "athlete_id is required")
		return
	}

	sessionID, err := h.sessions.InitiateSync(r.Context(), req.AthleteID, req.FullBackfill)
	if err != nil {
		logging.Error("Failed to initiate sync", "athlete_id", req.AthleteID, "error", err.Error())
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondWithSuccess(w, http.StatusAccepted, &dtos.TriggerSyncResponse{SessionID: sessionID})
}

// CancelSync handles POST /api/v1/sync/sessions/{sessionID}/cancel
func (h *SyncHandlers) CancelSync(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.sessions.CancelSession(r.Context(), sessionID); err != nil {
		respondWithError(w, http.StatusNotFound, err.Error())
		return
	}

	respondWithSuccess(w, http.StatusOK, &dtos.CancelSyncResponse{OK: true})
}

// SessionProgress handles GET /api/v1/sync/sessions/{sessionID}
func (h *SyncHandlers) SessionProgress(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	summary, err := h.sessions.GetSessionSummary(r.Context(), sessionID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if summary == nil {
		respondWithError(w, http.StatusNotFound, "session not found")
		return
	}

	respondWithSuccess(w, http.StatusOK, summary)
}

// Tick handles POST /api/v1/sync/tick, the time-based entry point for an
// external cron. Carries no payload; a budget-exhausted tick is still a 200.
func (h *SyncHandlers) Tick(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.RunOnce(r.Context()); err != nil {
		logging.Error("Scheduler tick failed", "error", err.Error())
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithSuccess(w, http.StatusOK, &dtos.CancelSyncResponse{OK: true})
}

// MonitorSweep handles POST /api/v1/sync/monitor, the health monitor's
// time-based entry point on its own external schedule.
func (h *SyncHandlers) MonitorSweep(w http.ResponseWriter, r *http.Request) {
	if err := h.monitor.RunOnce(r.Context()); err != nil {
		logging.Error("Health monitor sweep failed", "error", err.Error())
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithSuccess(w, http.StatusOK, &dtos.CancelSyncResponse{OK: true})
}

// athleteRequest is the onboarding payload
type athleteRequest struct {
	UpstreamID   int64  `json:"upstream_id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenExpiry  string `json:"token_expiry"`
}

// athleteResponse echoes the created athlete
type athleteResponse struct {
	AthleteID string `json:"athlete_id"`
}

// CreateAthlete handles POST /api/v1/athletes
func (h *SyncHandlers) CreateAthlete(w http.ResponseWriter, r *http.Request) {
	var req athleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UpstreamID == 0 || req.RefreshToken == "" {
		respondWithError(w, http.StatusBadRequest, "upstream_id and refresh_token are required")
		return
	}

	expiry, err := time.Parse(time.RFC3339, req.TokenExpiry)
	if err != nil {
		expiry = time.Now() // forces a refresh on first use
	}

	athlete := &gormModels.Athlete{
		ID:           uuid.NewString(),
		UpstreamID:   req.UpstreamID,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		TokenExpiry:  expiry,
		SyncStatus:   gormModels.SyncStatusIdle,
	}
	if err := h.athleteRepo.Create(r.Context(), athlete); err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondWithSuccess(w, http.StatusCreated, &athleteResponse{AthleteID: athlete.ID})
}

// ListAthletes handles GET /api/v1/athletes
func (h *SyncHandlers) ListAthletes(w http.ResponseWriter, r *http.Request) {
	athletes, err := h.athleteRepo.List(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithSuccess(w, http.StatusOK, &athletes)
}
