package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/internal/clients/yahoo"
	"github.com/aristath/portfolio-analytics/internal/config"
	"github.com/aristath/portfolio-analytics/internal/database"
	"github.com/aristath/portfolio-analytics/internal/modules/marketdata"
	"github.com/aristath/portfolio-analytics/internal/modules/portfolio"
	"github.com/aristath/portfolio-analytics/internal/modules/risk"
	"github.com/aristath/portfolio-analytics/internal/modules/settings"
	"github.com/aristath/portfolio-analytics/internal/reliability"
	"github.com/aristath/portfolio-analytics/internal/scheduler"
	"github.com/aristath/portfolio-analytics/internal/server"
	"github.com/aristath/portfolio-analytics/pkg/logger"
)

func main() {
	// Bootstrap logger, replaced once configuration is loaded
	log := logger.New(logger.Config{
		Level:  "info",
		Pretty: true,
	})

	log.Info().Msg("Starting portfolio analytics service")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log = logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	// Initialize databases
	// Architecture: analytics (metric history), config (definitions and
	// settings), cache (operational state), history (price bars)

	// 1. analytics.db - Append-only metric snapshot history
	analyticsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "analytics.db"),
		Profile: database.ProfileLedger,
		Name:    "analytics",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize analytics database")
	}
	defer analyticsDB.Close()

	// 2. config.db - Portfolio definitions and runtime settings
	configDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "config.db"),
		Profile: database.ProfileStandard,
		Name:    "config",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize config database")
	}
	defer configDB.Close()

	// 3. cache.db - Job runs and sync state, rebuildable
	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize cache database")
	}
	defer cacheDB.Close()

	// Apply schemas (single source of truth, idempotent)
	for _, db := range []*database.DB{analyticsDB, configDB, cacheDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", db.Name()).Msg("Failed to apply schema")
		}
	}

	// Overlay stored settings onto the environment-derived defaults
	settingsRepo := settings.NewRepository(configDB.Conn(), log)
	if err := cfg.UpdateFromSettings(settingsRepo); err != nil {
		log.Warn().Err(err).Msg("Failed to apply stored settings, using environment defaults")
	}

	// 4. history.db - Daily price bars, its own file and driver
	history, err := marketdata.OpenHistoryStore(cfg.HistoryDBPath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer history.Close()

	// Initialize scheduler with run records in cache.db
	recorder := scheduler.NewRunRecorder(cacheDB.Conn(), log)
	sched := scheduler.New(recorder, log)
	sched.Start()
	defer sched.Stop()

	// Register background jobs
	jobs, monitoring, err := registerJobs(sched, recorder, analyticsDB, configDB, cacheDB, history, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register jobs")
	}

	// Initialize HTTP server
	srv := server.New(server.Config{
		Log:         log,
		AnalyticsDB: analyticsDB,
		ConfigDB:    configDB,
		CacheDB:     cacheDB,
		History:     history,
		Config:      cfg,
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
		Scheduler:   sched,
		Recorder:    recorder,
		Monitoring:  monitoring,
	})

	// Wire up jobs for manual triggering via API
	srv.SetJobs(jobs)

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// registerJobs wires the background jobs onto their schedules. The returned
// map is keyed by job name and backs the manual trigger API; the monitoring
// service backs the alerts endpoint.
func registerJobs(
	sched *scheduler.Scheduler,
	recorder *scheduler.RunRecorder,
	analyticsDB, configDB, cacheDB *database.DB,
	history *marketdata.HistoryStore,
	cfg *config.Config,
	log zerolog.Logger,
) (map[string]scheduler.Job, *reliability.MonitoringService, error) {
	jobs := map[string]scheduler.Job{}

	// Price sync: Yahoo Finance -> history.db for every symbol referenced by
	// a stored portfolio
	yahooClient := yahoo.New(log)
	portfolioRepo := portfolio.NewRepository(configDB.Conn(), log)
	syncStateRepo := marketdata.NewSyncStateRepo(cacheDB.Conn(), log)
	syncService := marketdata.NewSyncService(
		yahooClient,
		history,
		portfolioRepo,
		syncStateRepo,
		cfg.YahooRateLimit,
		cfg.LookbackDays,
		log,
	)

	priceSync := scheduler.NewPriceSyncJob(syncService, log)
	if err := sched.AddJob(cfg.PriceSyncSchedule, priceSync); err != nil {
		return nil, nil, fmt.Errorf("failed to register price sync job: %w", err)
	}
	jobs[priceSync.Name()] = priceSync

	// Metric snapshots: one metrics row per portfolio per day in analytics.db
	snapshotRepo := portfolio.NewSnapshotRepository(analyticsDB.Conn(), log)
	seriesBuilder := portfolio.NewSeriesBuilder(history.Conn(), log)
	riskService := risk.NewService(risk.Defaults{
		RiskFreeRate:    cfg.AnnualRiskFreeRate,
		PeriodsPerYear:  cfg.PeriodsPerYear,
		ConfidenceLevel: cfg.ConfidenceLevel,
	}, log)
	portfolioService := portfolio.NewService(
		portfolioRepo,
		snapshotRepo,
		seriesBuilder,
		riskService,
		cfg.LookbackDays,
		log,
	)

	metricSnapshot := scheduler.NewMetricSnapshotJob(portfolioService, log)
	if err := sched.AddJob(cfg.SnapshotSchedule, metricSnapshot); err != nil {
		return nil, nil, fmt.Errorf("failed to register metric snapshot job: %w", err)
	}
	jobs[metricSnapshot.Name()] = metricSnapshot

	// Reliability: integrity checks, backups, maintenance
	databases := map[string]reliability.Connector{
		"analytics": analyticsDB,
		"config":    configDB,
		"cache":     cacheDB,
		"history":   history,
	}

	healthServices := map[string]*reliability.DatabaseHealthService{
		"analytics": reliability.NewDatabaseHealthService(analyticsDB, cfg.BackupDir, log),
		"config":    reliability.NewDatabaseHealthService(configDB, cfg.BackupDir, log),
		"cache":     reliability.NewDatabaseHealthService(cacheDB, cfg.BackupDir, log),
	}

	monitoring := reliability.NewMonitoringService(databases, healthServices, cfg.DataDir, cfg.BackupDir, log)
	backupService := reliability.NewBackupService(databases, cfg.BackupDir, log)

	dailyBackup := reliability.NewDailyBackupJob(backupService)
	if err := sched.AddJob("0 0 1 * * *", dailyBackup); err != nil {
		return nil, nil, fmt.Errorf("failed to register daily backup job: %w", err)
	}
	jobs[dailyBackup.Name()] = dailyBackup

	weeklyBackup := reliability.NewWeeklyBackupJob(backupService)
	if err := sched.AddJob("0 0 1 * * 0", weeklyBackup); err != nil {
		return nil, nil, fmt.Errorf("failed to register weekly backup job: %w", err)
	}
	jobs[weeklyBackup.Name()] = weeklyBackup

	dailyMaintenance := reliability.NewDailyMaintenanceJob(databases, healthServices, recorder, cfg.BackupDir, log)
	if err := sched.AddJob("0 0 2 * * *", dailyMaintenance); err != nil {
		return nil, nil, fmt.Errorf("failed to register daily maintenance job: %w", err)
	}
	jobs[dailyMaintenance.Name()] = dailyMaintenance

	validator := database.NewPortfolioValidator(configDB.Conn())
	weeklyMaintenance := reliability.NewWeeklyMaintenanceJob(databases, validator, log)
	if err := sched.AddJob("0 30 3 * * 0", weeklyMaintenance); err != nil {
		return nil, nil, fmt.Errorf("failed to register weekly maintenance job: %w", err)
	}
	jobs[weeklyMaintenance.Name()] = weeklyMaintenance

	healthCheck := reliability.NewHealthCheckJob(healthServices, syncStateRepo, monitoring, 0, log)
	if err := sched.AddJob("0 0 4 * * *", healthCheck); err != nil {
		return nil, nil, fmt.Errorf("failed to register health check job: %w", err)
	}
	jobs[healthCheck.Name()] = healthCheck

	log.Info().Int("jobs", len(jobs)).Msg("Background jobs registered")

	return jobs, monitoring, nil
}
