// Package main is the entry point for the Pulse sentiment index service.
// Pulse computes a daily fear/greed sentiment index and runs the durable
// batch jobs (backfill, recalculation, validation, report export) that
// build and maintain its history.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/pulse/internal/config"
	"github.com/aristath/pulse/internal/database"
	"github.com/aristath/pulse/internal/events"
	"github.com/aristath/pulse/internal/jobs"
	"github.com/aristath/pulse/internal/reports"
	"github.com/aristath/pulse/internal/sentiment"
	"github.com/aristath/pulse/internal/server"
	"github.com/aristath/pulse/internal/signals"
	"github.com/aristath/pulse/internal/strategies"
	"github.com/aristath/pulse/internal/triggers"
	"github.com/aristath/pulse/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting Pulse")

	// Databases: jobs (queue + audit trail), sentiment (computed records),
	// cache (ephemeral signal data).
	jobsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "jobs.db"),
		Profile: database.ProfileStandard,
		Name:    "jobs",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open jobs database")
	}
	defer jobsDB.Close()

	sentimentDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "sentiment.db"),
		Profile: database.ProfileStandard,
		Name:    "sentiment",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open sentiment database")
	}
	defer sentimentDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	for _, db := range []*database.DB{jobsDB, sentimentDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", db.Name()).Msg("Failed to migrate database")
		}
	}
	log.Info().Str("data_dir", cfg.DataDir).Msg("Databases initialized")

	// Scoring engine with weights validated at config load.
	engine, err := sentiment.NewEngine(cfg.Weights)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid scoring weights")
	}

	bus := events.NewBus(log)
	records := sentiment.NewRepository(sentimentDB.Conn(), log)

	// Signal source: synthetic data behind a read-through cache. A real
	// market-data provider plugs in by replacing the inner source.
	cache := signals.NewCache(cacheDB.Conn(), log)
	source := signals.NewCachingSource(signals.NewRandomWalkSource(), cache, log)

	// Job engine.
	jobLogs := jobs.NewLogRepository(jobsDB.Conn(), log)
	jobResults := jobs.NewResultRepository(jobsDB.Conn())
	store := jobs.NewStore(jobsDB.Conn(), jobLogs, log)
	dispatcher := jobs.NewDispatcher(jobsDB.Conn())
	service := jobs.NewService(store, jobLogs, jobResults, dispatcher, bus, records, log)

	// Report generation and optional S3 upload.
	generator := reports.NewGenerator(cfg.ReportsDir, log)
	uploader, err := reports.NewUploader(context.Background(), cfg.Reports, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure report uploader")
	}
	if uploader != nil {
		log.Info().Str("bucket", cfg.Reports.S3Bucket).Msg("Report upload enabled")
	}

	// One handler per job type.
	registry := jobs.NewRegistry()
	registry.Register(strategies.NewBackfillHandler(engine, records, source, bus, log))
	registry.Register(strategies.NewRecalcHandler(engine, records, bus, log))
	registry.Register(strategies.NewValidateHandler(records, log))
	registry.Register(strategies.NewReportHandler(records, generator, uploader, log))
	log.Info().Int("handlers", registry.Count()).Msg("Job handlers registered")

	worker := jobs.NewWorker(jobs.WorkerConfig{
		Store:      store,
		Logs:       jobLogs,
		Results:    jobResults,
		Dispatcher: dispatcher,
		Registry:   registry,
		Bus:        bus,
		Log:        log,
		Interval:   cfg.WorkerInterval,
	})
	service.SetWake(worker.Trigger)
	go worker.Run()

	// Scheduled submissions (disabled unless configured).
	scheduler := triggers.NewScheduler(service, cfg.Triggers, log)
	if scheduler != nil {
		if err := scheduler.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start trigger scheduler")
		}
	}

	srv := server.New(server.Config{
		Log:         log,
		Config:      cfg,
		JobsDB:      jobsDB,
		SentimentDB: sentimentDB,
		CacheDB:     cacheDB,
		JobService:  service,
		Sentiment:   records,
		Bus:         bus,
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	// Wait for interrupt signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	if scheduler != nil {
		scheduler.Stop()
	}

	// Stop the worker before the HTTP server so no new jobs start. An
	// in-flight job finishes its current tick; its progress is durable, so
	// a job interrupted by a hard kill simply re-runs from the store.
	worker.Stop()
	log.Info().Msg("Worker stopped")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Pulse stopped")
}
