package reliability

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/portfolio-analytics/internal/database"
	"github.com/aristath/portfolio-analytics/internal/domain"
)

// SyncStates exposes the per-symbol sync bookkeeping the health check reads.
type SyncStates interface {
	GetAll() ([]domain.SyncState, error)
}

// RunPruner trims old job-run records during maintenance.
type RunPruner interface {
	Prune(keepDays int) (int64, error)
}

// HealthCheckJob runs integrity checks with auto-recovery on every app
// database, flags symbols whose price history has gone stale, and refreshes
// the monitoring alerts (4 AM)
type HealthCheckJob struct {
	healthServices map[string]*DatabaseHealthService
	syncStates     SyncStates
	monitoring     *MonitoringService
	staleAfter     time.Duration
	log            zerolog.Logger
}

// NewHealthCheckJob creates a new health check job. staleAfter <= 0 defaults
// to 96h, long enough to ride out a weekend plus a market holiday.
func NewHealthCheckJob(
	healthServices map[string]*DatabaseHealthService,
	syncStates SyncStates,
	monitoring *MonitoringService,
	staleAfter time.Duration,
	log zerolog.Logger,
) *HealthCheckJob {
	if staleAfter <= 0 {
		staleAfter = 96 * time.Hour
	}
	return &HealthCheckJob{
		healthServices: healthServices,
		syncStates:     syncStates,
		monitoring:     monitoring,
		staleAfter:     staleAfter,
		log:            log.With().Str("job", "health_check").Logger(),
	}
}

// Run executes the health check job
func (j *HealthCheckJob) Run() error {
	j.log.Info().Msg("Starting health check")
	startTime := time.Now()

	for name, healthService := range j.healthServices {
		j.log.Debug().Str("database", name).Msg("Running integrity check")

		if err := healthService.CheckAndRecover(); err != nil {
			j.log.Error().
				Str("database", name).
				Err(err).
				Msg("CRITICAL: Failed to recover database")
			return fmt.Errorf("CRITICAL: failed to recover %s: %w", name, err)
		}
	}

	stale := j.checkPriceStaleness()

	if j.monitoring != nil {
		if err := j.monitoring.CheckAlerts(); err != nil {
			j.log.Warn().Err(err).Msg("Alert evaluation failed")
		}
	}

	duration := time.Since(startTime)
	j.log.Info().
		Int("stale_symbols", stale).
		Dur("duration_ms", duration).
		Msg("Health check completed")

	return nil
}

// Name returns the job name for scheduler
func (j *HealthCheckJob) Name() string {
	return "health_check"
}

// checkPriceStaleness warns about symbols whose last successful sync is
// older than the staleness window. Returns the number of stale symbols.
func (j *HealthCheckJob) checkPriceStaleness() int {
	if j.syncStates == nil {
		return 0
	}

	states, err := j.syncStates.GetAll()
	if err != nil {
		j.log.Warn().Err(err).Msg("Failed to read sync state for staleness check")
		return 0
	}

	cutoff := time.Now().Add(-j.staleAfter)
	stale := 0
	for _, state := range states {
		if state.LastSyncedAt.Before(cutoff) {
			stale++
			j.log.Warn().
				Str("symbol", state.Symbol).
				Time("last_synced_at", state.LastSyncedAt).
				Msg("Price history is stale")
		}
	}

	return stale
}

// DailyMaintenanceJob performs daily database maintenance (2 AM)
type DailyMaintenanceJob struct {
	databases      map[string]Connector
	healthServices map[string]*DatabaseHealthService
	runs           RunPruner
	backupDir      string
	log            zerolog.Logger
}

// NewDailyMaintenanceJob creates a new daily maintenance job
func NewDailyMaintenanceJob(
	databases map[string]Connector,
	healthServices map[string]*DatabaseHealthService,
	runs RunPruner,
	backupDir string,
	log zerolog.Logger,
) *DailyMaintenanceJob {
	return &DailyMaintenanceJob{
		databases:      databases,
		healthServices: healthServices,
		runs:           runs,
		backupDir:      backupDir,
		log:            log.With().Str("job", "daily_maintenance").Logger(),
	}
}

// Run executes the daily maintenance job
func (j *DailyMaintenanceJob) Run() error {
	j.log.Info().Msg("Starting daily maintenance")
	startTime := time.Now()

	// Step 1: Integrity check and auto-recovery for app databases
	for name, healthService := range j.healthServices {
		j.log.Debug().Str("database", name).Msg("Running integrity check")

		if err := healthService.CheckAndRecover(); err != nil {
			j.log.Error().
				Str("database", name).
				Err(err).
				Msg("CRITICAL: Failed to recover database")
			return fmt.Errorf("CRITICAL: failed to recover %s: %w", name, err)
		}
	}

	// Step 2: WAL checkpoint for all databases (prevent bloat)
	for name, db := range j.databases {
		j.log.Debug().Str("database", name).Msg("Running WAL checkpoint")

		_, err := db.Conn().Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		if err != nil {
			j.log.Warn().
				Str("database", name).
				Err(err).
				Msg("WAL checkpoint failed")
			// Don't return error - this is not critical
		}
	}

	// Step 3: Check disk space
	if err := j.checkDiskSpace(); err != nil {
		return err // HALT if critical
	}

	// Step 4: Verify yesterday's backups
	if err := j.verifyBackups(); err != nil {
		j.log.Error().Err(err).Msg("Backup verification failed")
		// Log but don't halt - we have today's backup
	}

	// Step 5: Trim old job-run records
	if j.runs != nil {
		deleted, err := j.runs.Prune(30)
		if err != nil {
			j.log.Warn().Err(err).Msg("Failed to prune job runs")
		} else if deleted > 0 {
			j.log.Info().Int64("deleted", deleted).Msg("Pruned old job runs")
		}
	}

	// Step 6: Log database sizes
	j.logDatabaseMetrics()

	duration := time.Since(startTime)
	j.log.Info().
		Dur("duration_ms", duration).
		Msg("Daily maintenance completed successfully")

	return nil
}

// Name returns the job name for scheduler
func (j *DailyMaintenanceJob) Name() string {
	return "daily_maintenance"
}

// checkDiskSpace verifies sufficient disk space is available
func (j *DailyMaintenanceJob) checkDiskSpace() error {
	dataDir := filepath.Dir(j.backupDir)
	usage, err := disk.Usage(dataDir)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableGB := float64(usage.Free) / 1e9

	j.log.Debug().Float64("available_gb", availableGB).Msg("Disk space check")

	// CRITICAL: Less than 500MB
	if availableGB < 0.5 {
		j.log.Error().
			Float64("available_gb", availableGB).
			Msg("CRITICAL: Insufficient disk space - HALTING SYSTEM")
		return fmt.Errorf("CRITICAL: only %.2f GB free - system halted", availableGB)
	}

	// ERROR: Less than 5GB
	if availableGB < 5.0 {
		j.log.Error().
			Float64("available_gb", availableGB).
			Msg("Low disk space - consider cleanup")
	}

	// WARNING: Less than 10GB
	if availableGB < 10.0 {
		j.log.Warn().
			Float64("available_gb", availableGB).
			Msg("Disk space running low")
	}

	return nil
}

// verifyBackups checks integrity of yesterday's backups
func (j *DailyMaintenanceJob) verifyBackups() error {
	yesterday := time.Now().AddDate(0, 0, -1).Format("2006-01-02")
	dailyBackupDir := filepath.Join(j.backupDir, "daily", yesterday)

	if _, err := os.Stat(dailyBackupDir); os.IsNotExist(err) {
		return fmt.Errorf("yesterday's backup directory not found: %s", dailyBackupDir)
	}

	// Cache is excluded from daily backups, so don't expect it here
	for name := range j.databases {
		if name == "cache" {
			continue
		}
		backupPath := filepath.Join(dailyBackupDir, name+".db")

		if _, err := os.Stat(backupPath); os.IsNotExist(err) {
			j.log.Error().
				Str("database", name).
				Str("path", backupPath).
				Msg("Backup file missing")
			continue
		}

		if err := j.verifyBackupFile(backupPath); err != nil {
			j.log.Error().
				Str("database", name).
				Err(err).
				Msg("Backup integrity check failed")
		} else {
			j.log.Debug().
				Str("database", name).
				Msg("Backup verified")
		}
	}

	return nil
}

// verifyBackupFile opens one backup and runs an integrity check
func (j *DailyMaintenanceJob) verifyBackupFile(path string) error {
	backupDB, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer backupDB.Close()

	var result string
	if err := backupDB.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// logDatabaseMetrics reports per-database sizes for growth tracking
func (j *DailyMaintenanceJob) logDatabaseMetrics() {
	for name, healthService := range j.healthServices {
		metrics, err := healthService.GetMetrics()
		if err != nil {
			j.log.Error().
				Str("database", name).
				Err(err).
				Msg("Failed to get metrics")
			continue
		}

		j.log.Info().
			Str("database", name).
			Float64("size_mb", metrics.SizeMB).
			Float64("wal_size_mb", metrics.WALSizeMB).
			Bool("integrity_ok", metrics.IntegrityCheckPassed).
			Msg("Database metrics")
	}
}

// WeeklyMaintenanceJob compacts the databases that churn and validates
// portfolio referential integrity (Sunday 3 AM). The analytics ledger is
// append-only and is deliberately left alone.
type WeeklyMaintenanceJob struct {
	databases map[string]Connector
	validator *database.PortfolioValidator
	log       zerolog.Logger
}

// NewWeeklyMaintenanceJob creates a new weekly maintenance job. The validator
// may be nil, in which case the integrity step is skipped.
func NewWeeklyMaintenanceJob(databases map[string]Connector, validator *database.PortfolioValidator, log zerolog.Logger) *WeeklyMaintenanceJob {
	return &WeeklyMaintenanceJob{
		databases: databases,
		validator: validator,
		log:       log.With().Str("job", "weekly_maintenance").Logger(),
	}
}

// Run executes the weekly maintenance job
func (j *WeeklyMaintenanceJob) Run() error {
	j.log.Info().Msg("Starting weekly maintenance")
	startTime := time.Now()

	// Step 1: VACUUM the databases that churn
	failures := 0
	for name, db := range j.databases {
		j.log.Info().Str("database", name).Msg("Running VACUUM")

		if err := j.vacuumDatabase(db, name); err != nil {
			j.log.Error().
				Str("database", name).
				Err(err).
				Msg("VACUUM failed")
			failures++
		}
	}

	// Step 2: Portfolio referential integrity checks
	if err := j.validatePortfolios(); err != nil {
		j.log.Error().Err(err).Msg("Portfolio validation failed")
		failures++
	}

	duration := time.Since(startTime)
	j.log.Info().
		Dur("duration_ms", duration).
		Msg("Weekly maintenance completed")

	if failures > 0 {
		return fmt.Errorf("weekly maintenance completed with %d errors", failures)
	}
	return nil
}

// validatePortfolios runs the referential integrity checks over config.db.
// Findings are logged, not repaired: every known cause so far has been a
// manual edit, and silently rewriting those is worse than a loud alert.
func (j *WeeklyMaintenanceJob) validatePortfolios() error {
	if j.validator == nil {
		return nil
	}

	result, err := j.validator.ValidateAll()
	if err != nil {
		return fmt.Errorf("validation checks failed to run: %w", err)
	}

	if !result.IsValid {
		j.log.Warn().
			Int("orphaned_weights", len(result.OrphanedWeights)).
			Int("empty_portfolios", len(result.EmptyPortfolios)).
			Int("unnormalized", len(result.UnnormalizedPortfolios)).
			Msg(result.FormatErrors())
		return fmt.Errorf("portfolio validation found inconsistencies")
	}

	j.log.Debug().Msg("Portfolio validation passed")
	return nil
}

// Name returns the job name for scheduler
func (j *WeeklyMaintenanceJob) Name() string {
	return "weekly_maintenance"
}

// vacuumDatabase performs VACUUM on a database
func (j *WeeklyMaintenanceJob) vacuumDatabase(db Connector, name string) error {
	j.log.Debug().Str("database", name).Msg("Starting VACUUM")

	// Get size before VACUUM
	var pageCount, pageSize int
	db.Conn().QueryRow("PRAGMA page_count").Scan(&pageCount)
	db.Conn().QueryRow("PRAGMA page_size").Scan(&pageSize)
	sizeBefore := float64(pageCount*pageSize) / 1024 / 1024

	// Run VACUUM
	_, err := db.Conn().Exec("VACUUM")
	if err != nil {
		return fmt.Errorf("VACUUM failed: %w", err)
	}

	// Get size after VACUUM
	db.Conn().QueryRow("PRAGMA page_count").Scan(&pageCount)
	sizeAfter := float64(pageCount*pageSize) / 1024 / 1024
	spaceReclaimed := sizeBefore - sizeAfter

	j.log.Info().
		Str("database", name).
		Float64("size_before_mb", sizeBefore).
		Float64("size_after_mb", sizeAfter).
		Float64("space_reclaimed_mb", spaceReclaimed).
		Msg("VACUUM completed")

	return nil
}
