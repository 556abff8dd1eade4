package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	gormlib "gorm.io/gorm"

	"runclub/pacemaker/internal/api"
	"runclub/pacemaker/internal/common"
	"runclub/pacemaker/internal/config"
	"runclub/pacemaker/internal/db/repositories"
	"runclub/pacemaker/internal/jobs"
	"runclub/pacemaker/internal/logging"
	"runclub/pacemaker/internal/metrics"
	"runclub/pacemaker/internal/middleware"
	"runclub/pacemaker/internal/providers"
	"runclub/pacemaker/internal/services"
	"runclub/pacemaker/internal/workers"
)

// RegisterRoutes wires the repositories, services, workers and HTTP surface.
// The returned handler carries the admin API; the background tickers are
// started as a side effect.
func RegisterRoutes(cfg config.Config, sqlxDB *sqlx.DB, gormDB *gormlib.DB, rdb *redis.Client, upSince time.Time) http.Handler {

	// initialize Chi router
	r := chi.NewRouter()

	// Initialize metrics registry
	metricsReg := metrics.NewMetricsRegistry()

	// global middleware
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.MetricsMiddleware(metricsReg))
	r.Use(middleware.NewRateLimiter(cfg.HTTPRateLimitPerSec, cfg.HTTPRateLimitBurst, cfg.HTTPTrustedIPs).Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://localhost:8081"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	logging.Info("Router initialized with metrics and logging middleware")

	// health check
	r.Get("/healthCheck", api.HealthCheckHandler(sqlxDB, rdb, upSince))

	// Repositories
	athleteRepo := repositories.NewAthleteRepo(gormDB)
	sessionRepo := repositories.NewSessionRepo(gormDB)
	batchRepo := repositories.NewBatchRepo(gormDB)
	activityRepo := repositories.NewActivityRecordRepo(sqlxDB)

	// Upstream client and guardians
	upstream := providers.NewUpstreamProvider(cfg.UpstreamBaseURL)
	tokenSvc := common.NewTokenService(cfg.OAuthClientID, cfg.OAuthClientSecret, cfg.UpstreamTokenURL, athleteRepo)
	budget := common.NewRateBudgetService(rdb, cfg.RateWindowLimit, cfg.RateWindowSize, cfg.RateDailyLimit)

	// Workers
	discovery := workers.NewDiscoveryWorker(upstream, tokenSvc, activityRepo, cfg.DiscoveryPageSize, cfg.ActivityTypes)
	enrichment := workers.NewEnrichmentWorker(upstream, tokenSvc, activityRepo, cfg.EnrichmentCallsPerSec)

	scheduler := jobs.NewSchedulerJob(
		jobs.SchedulerConfig{
			MaxBatchesPerTick:   cfg.MaxBatchesPerTick,
			EnrichmentChunkSize: cfg.EnrichmentChunkSize,
			MaxAttempts:         cfg.SyncMaxAttempts,
			RetryBackoffBase:    cfg.RetryBackoffBase,
		},
		athleteRepo, sessionRepo, batchRepo, activityRepo,
		&instrumentedBudget{inner: budget, reg: metricsReg},
		&instrumentedDiscovery{inner: discovery, reg: metricsReg},
		&instrumentedEnrichment{inner: enrichment, reg: metricsReg},
	)
	monitor := workers.NewHealthMonitor(
		athleteRepo, sessionRepo, batchRepo,
		cfg.StaleClaimThreshold, cfg.StalledSessionAfter, cfg.SyncMaxAttempts,
	)

	// Background tickers
	workers.InitWorkers(cfg, scheduler, monitor)

	sessionSvc := services.NewSessionService(athleteRepo, sessionRepo, batchRepo)
	handlers := api.NewSyncHandlers(sessionSvc, scheduler, monitor, athleteRepo)

	// API v1 routes, guarded by the admin token
	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Use(middleware.AdminAuthMiddleware(cfg.AdminJWTSecret))

		v1.Post("/athletes", handlers.CreateAthlete)
		v1.Get("/athletes", handlers.ListAthletes)

		v1.Post("/sync/trigger", handlers.TriggerSync)
		v1.Post("/sync/sessions/{sessionID}/cancel", handlers.CancelSync)
		v1.Get("/sync/sessions/{sessionID}", handlers.SessionProgress)

		// Time-based entry points for external schedulers
		v1.Post("/sync/tick", handlers.Tick)
		v1.Post("/sync/monitor", handlers.MonitorSweep)
	})

	return r
}
