package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pesio-ai/be-sales-proposals/internal/client"
	"github.com/pesio-ai/be-sales-proposals/internal/config"
	"github.com/pesio-ai/be-sales-proposals/internal/database"
	"github.com/pesio-ai/be-sales-proposals/internal/handler"
	"github.com/pesio-ai/be-sales-proposals/internal/logger"
	"github.com/pesio-ai/be-sales-proposals/internal/repository"
	"github.com/pesio-ai/be-sales-proposals/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Sales Proposals Service")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize repositories
	docRepo := repository.NewDocumentRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Initialize HTTP service clients
	attachmentsURL := getEnv("ATTACHMENTS_URL", "http://localhost:8091")
	attachmentsClient := client.NewAttachmentsClient(attachmentsURL)

	directoryURL := getEnv("USER_DIRECTORY_URL", "http://localhost:8092")
	directoryClient := client.NewUserDirectoryClient(directoryURL)

	siteVisitsURL := getEnv("SITE_VISITS_URL", "http://localhost:8093")
	siteVisitsClient := client.NewSiteVisitsClient(siteVisitsURL)

	log.Info().
		Str("attachments_url", attachmentsURL).
		Str("user_directory_url", directoryURL).
		Str("site_visits_url", siteVisitsURL).
		Msg("Service clients initialized")

	// Initialize NATS notification publisher (optional)
	var (
		notifier  service.NotificationPublisherInterface
		publisher *client.NotificationPublisher
	)
	if cfg.NATS.Enabled {
		publisher, err = client.NewNotificationPublisher(cfg.NATS.URL, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer publisher.Close()
		notifier = publisher
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS notification publisher connected")
	}

	// Initialize services
	proposalService := service.NewProposalService(
		docRepo, auditRepo, attachmentsClient, directoryClient, siteVisitsClient, notifier, log)

	// Register the lifecycle request/reply handler. The proposals gateway
	// talks to this service over NATS; HTTP carries health checks only.
	if publisher != nil {
		natsHandler := handler.NewNATSHandler(proposalService, log)
		if err := natsHandler.Register(publisher.Conn()); err != nil {
			log.Fatal().Err(err).Msg("Failed to register NATS handler")
		}
	} else {
		log.Warn().Msg("NATS disabled, lifecycle handler not registered")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
