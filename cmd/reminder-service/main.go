package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bashmentarium/prescriptions/internal/calendar"
	"github.com/bashmentarium/prescriptions/internal/parser"
	"github.com/bashmentarium/prescriptions/internal/prescription"
	"github.com/bashmentarium/prescriptions/internal/reminder"
	"github.com/bashmentarium/prescriptions/pkg/config"
	"github.com/bashmentarium/prescriptions/pkg/database"
	"github.com/bashmentarium/prescriptions/pkg/logger"
	"github.com/bashmentarium/prescriptions/pkg/monitoring"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)

	// Initialize database connection
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.CreateSchema(ctx); err != nil {
		cancel()
		logger.Fatalf("Failed to create database schema: %v", err)
	}
	cancel()

	// Initialize metrics
	metrics := monitoring.NewMetricsCollector("prescriptions")

	// Initialize repositories
	repository := prescription.NewRepository(db, logger)
	events := prescription.NewEventStore(db, logger)
	settings := prescription.NewSettingsRepository(db, logger)

	// Initialize external collaborators
	parserClient := parser.NewClient(cfg.Parser, logger)
	notifier := reminder.NewWebhookNotifier(cfg.Notifications, logger)
	calendarMirror, err := calendar.NewMirror(cfg.Calendar, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize calendar mirror: %v", err)
	}

	// Initialize reminder orchestrator
	presenter := reminder.NewPresenter(notifier, cfg.Notifications.DeepLink, logger, metrics)
	orchestrator := reminder.NewOrchestrator(cfg.Scheduler, events, presenter, logger, metrics)

	// Initialize prescription service
	service := prescription.NewService(
		logger,
		metrics,
		repository,
		events,
		settings,
		parserClient,
		orchestrator.Dispatcher(),
		presenter,
		calendarMirror,
	)
	server := prescription.NewServer(service, db)

	// Start reminder delivery
	if err := orchestrator.Start(); err != nil {
		logger.Fatalf("Failed to start reminder orchestrator: %v", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = strconv.Itoa(cfg.Server.Port)
	}

	// Start service in a goroutine. ErrServerClosed is the normal outcome of
	// Stop during shutdown, not a startup failure.
	go func() {
		if err := server.Start(":" + port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start prescription service: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	orchestrator.Stop()
	if err := server.Stop(); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}
	logger.Info("Prescription service stopped")
}
