package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"runclub/pacemaker/internal/common"
	"runclub/pacemaker/internal/config"
	"runclub/pacemaker/internal/db"
	"runclub/pacemaker/internal/db/repositories"
	"runclub/pacemaker/internal/logging"
	"runclub/pacemaker/internal/routes"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Local development convenience; production relies on real env vars
	_ = godotenv.Load()

	cfg := config.Load()

	if err := logging.Init(cfg.AppEnv); err != nil {
		log.Fatalf("❌ Failed to initialize logger: %v", err)
	}
	defer logging.Close()

	logging.Info("Pacemaker starting up",
		"environment", cfg.AppEnv,
		"timestamp", time.Now().Format(time.RFC3339),
	)

	// Connect to DB with sqlx
	if err := db.InitPostgres(); err != nil {
		logging.Error("Failed to connect to Postgres (sqlx)", "error", err.Error())
		log.Fatalf("❌ Failed to connect to Postgres (sqlx): %v", err)
	}
	logging.Info("Connected to Postgres (sqlx)")

	// Activity records live in a plain relational table managed outside GORM
	activityRepo := repositories.NewActivityRecordRepo(db.DB)
	if err := activityRepo.EnsureSchema(context.Background()); err != nil {
		logging.Error("Failed to ensure activity schema", "error", err.Error())
		log.Fatalf("❌ Failed to ensure activity schema: %v", err)
	}

	// Connect to DB with GORM for the session and batch state machine
	gormDB, err := db.InitPostgresORM(db.PostgresDSN())
	if err != nil {
		logging.Error("Failed to connect to Postgres (GORM)", "error", err.Error())
		log.Fatalf("❌ Failed to connect to Postgres (GORM): %v", err)
	}
	logging.Info("Connected to Postgres (GORM)")

	rdb := common.NewRedisClient()

	upSince := time.Now()

	// Initialize router with Chi; workers are started inside RegisterRoutes
	router := routes.RegisterRoutes(cfg, db.DB, gormDB, rdb, upSince)

	// Setup metrics endpoint outside of Chi router
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", router)
	logging.Info("Prometheus metrics endpoint registered at /metrics")

	logging.Info("Server starting",
		"address", cfg.HTTPAddress,
		"environment", cfg.AppEnv,
	)

	log.Printf("Starting server on %s", cfg.HTTPAddress)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddress, mux))
}
