package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/audience-sync/internal/analytics"
	"github.com/ignite/audience-sync/internal/config"
	"github.com/ignite/audience-sync/internal/mailchimp"
	"github.com/ignite/audience-sync/internal/repository/postgres"
	"github.com/ignite/audience-sync/internal/worker"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

func main() {
	log.Println("Starting audience-sync flusher...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if !cfg.Mailchimp.Configured() {
		log.Fatal("MAILCHIMP_API_KEY is required for the flusher")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Minute)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Printf("Redis unavailable, falling back to advisory locks: %v", err)
			redisClient = nil
		}
	}

	gateway, err := mailchimp.NewClient(cfg.Mailchimp)
	if err != nil {
		log.Fatalf("Invalid Mailchimp credentials: %v", err)
	}

	queueRepo := postgres.NewQueueRepo(db)
	settingsRepo := postgres.NewSettingsRepo(db)
	analyticsRepo := postgres.NewAnalyticsRepo(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	flusher := worker.NewFlusher(queueRepo, gateway, settingsRepo, redisClient, db, cfg.Flusher)
	go flusher.Start(ctx)

	retention := time.Duration(cfg.Analytics.RetentionDays) * 24 * time.Hour
	cleanup := worker.NewAnalyticsCleanupWorker(analytics.NewRecorder(analyticsRepo, nil), retention)
	go cleanup.Start(ctx)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done
	log.Println("Shutting down...")
	cancel()

	// Give in-flight cycles a moment to observe cancellation.
	time.Sleep(2 * time.Second)
	log.Println("Flusher stopped")
}
