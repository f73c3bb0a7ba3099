package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/audience-sync/internal/analytics"
	"github.com/ignite/audience-sync/internal/api"
	"github.com/ignite/audience-sync/internal/config"
	"github.com/ignite/audience-sync/internal/mailchimp"
	"github.com/ignite/audience-sync/internal/pipeline"
	"github.com/ignite/audience-sync/internal/repository/postgres"
	"github.com/ignite/audience-sync/internal/webhook"
	"github.com/ignite/audience-sync/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

func main() {
	log.Println("Starting audience-sync server...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
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
			log.Printf("Redis unavailable, report caching disabled: %v", err)
			redisClient = nil
		} else {
			log.Println("Connected to Redis")
		}
	}

	queueRepo := postgres.NewQueueRepo(db)
	mirrorRepo := postgres.NewMirrorRepo(db)
	settingsRepo := postgres.NewSettingsRepo(db)
	analyticsRepo := postgres.NewAnalyticsRepo(db)

	recorder := analytics.NewRecorder(analyticsRepo,
		analytics.NewReportCache(redisClient, cfg.Analytics.CacheTTL()))

	var gateway *mailchimp.Client
	if cfg.Mailchimp.Configured() {
		gateway, err = mailchimp.NewClient(cfg.Mailchimp)
		if err != nil {
			log.Fatalf("Invalid Mailchimp credentials: %v", err)
		}
		log.Println("Mailchimp gateway configured")
	} else {
		log.Println("No Mailchimp API key configured; dispatch endpoints will answer 409")
	}

	// The pipeline's Gateway is an interface; a typed-nil *Client must
	// not masquerade as a configured gateway.
	var processorGateway pipeline.Gateway
	var listGateway api.ListGateway
	if gateway != nil {
		processorGateway = gateway
		listGateway = gateway
	}
	processor := pipeline.NewProcessor(settingsRepo, queueRepo, mirrorRepo, processorGateway, recorder)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	secret, err := webhook.EnsureSecret(ctx, settingsRepo)
	if err != nil {
		log.Fatalf("Failed to provision webhook secret: %v", err)
	}
	webhookHandler := webhook.NewHandler(secret, mirrorRepo, recorder)

	if gateway != nil && cfg.Webhook.PublicURL != "" {
		registrar := webhook.NewRegistrar(gateway, settingsRepo, cfg.Webhook.PublicURL)
		// Register on every list that is currently a destination.
		go registerDestinations(ctx, registrar, db)
	}

	// The queue drains in-process too. The single-flight lock keeps this
	// safe next to a standalone flusher binary on the same database.
	if gateway != nil {
		flusher := worker.NewFlusher(queueRepo, gateway, settingsRepo, redisClient, db, cfg.Flusher)
		go flusher.Start(ctx)
	} else {
		log.Println("Flusher disabled: no Mailchimp API key configured")
	}

	retention := time.Duration(cfg.Analytics.RetentionDays) * 24 * time.Hour
	cleanup := worker.NewAnalyticsCleanupWorker(analytics.NewRecorder(analyticsRepo, nil), retention)
	go cleanup.Start(ctx)

	handlers := api.NewHandlers(processor, settingsRepo, listGateway, queueRepo, recorder, db, redisClient)
	server := api.NewServer(cfg.Server, handlers, webhookHandler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	go func() {
		log.Printf("Listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

// registerDestinations ensures a webhook registration exists for every
// distinct destination list in the form settings table.
func registerDestinations(ctx context.Context, registrar *webhook.Registrar, db *sql.DB) {
	rows, err := db.QueryContext(ctx, `
		SELECT DISTINCT destination_list_id FROM sync_form_settings WHERE destination_list_id <> ''
	`)
	if err != nil {
		log.Printf("Webhook registration scan failed: %v", err)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var listID string
		if err := rows.Scan(&listID); err != nil {
			log.Printf("Webhook registration scan failed: %v", err)
			return
		}
		if err := registrar.Ensure(ctx, listID); err != nil {
			log.Printf("Webhook registration failed for list %s: %v", listID, err)
		}
	}
}
