package reliability

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/internal/database"
)

// DatabaseHealthService monitors one app database and performs auto-recovery:
// integrity check, then WAL recovery, then restore from the latest backup.
type DatabaseHealthService struct {
	db        *database.DB
	backupDir string
	log       zerolog.Logger
}

// NewDatabaseHealthService creates a new database health service
func NewDatabaseHealthService(db *database.DB, backupDir string, log zerolog.Logger) *DatabaseHealthService {
	return &DatabaseHealthService{
		db:        db,
		backupDir: backupDir,
		log:       log.With().Str("service", "health").Str("database", db.Name()).Logger(),
	}
}

// DB returns the current database handle. It changes when a recovery
// reopened the database.
func (s *DatabaseHealthService) DB() *database.DB {
	return s.db
}

// CheckAndRecover performs health check and auto-recovery if needed
func (s *DatabaseHealthService) CheckAndRecover() error {
	s.log.Debug().Msg("Starting health check")

	// Step 1: Integrity check
	if err := s.checkIntegrity(); err != nil {
		s.log.Error().Err(err).Msg("Integrity check failed")

		// Step 2: Attempt WAL recovery
		if err := s.attemptWALRecovery(); err != nil {
			s.log.Error().Err(err).Msg("WAL recovery failed")

			// Step 3: Restore from backup
			return s.restoreFromBackup()
		}

		// Verify integrity after WAL recovery
		if err := s.checkIntegrity(); err != nil {
			s.log.Error().Err(err).Msg("Integrity check failed after WAL recovery")
			return s.restoreFromBackup()
		}

		s.log.Info().Msg("Database recovered via WAL recovery")
	}

	s.log.Debug().Msg("Health check complete")
	return nil
}

// checkIntegrity runs PRAGMA integrity_check
func (s *DatabaseHealthService) checkIntegrity() error {
	var result string
	err := s.db.Conn().QueryRow("PRAGMA integrity_check").Scan(&result)
	if err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}

	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	return nil
}

// attemptWALRecovery closes the pooled connection, forces a WAL checkpoint
// over a direct connection, and reopens the database with its own profile.
func (s *DatabaseHealthService) attemptWALRecovery() error {
	s.log.Warn().Msg("Attempting WAL recovery")

	path := s.db.Path()
	profile := s.db.Profile()
	name := s.db.Name()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	recoveryConn, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open recovery connection: %w", err)
	}
	_, err = recoveryConn.Exec("PRAGMA wal_checkpoint(RESTART)")
	recoveryConn.Close()
	if err != nil {
		return fmt.Errorf("WAL checkpoint failed: %w", err)
	}

	newDB, err := database.New(database.Config{
		Path:    path,
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		return fmt.Errorf("failed to reopen database: %w", err)
	}

	s.db = newDB

	s.log.Info().Msg("WAL recovery completed")
	return nil
}

// restoreFromBackup attempts to restore database from most recent backup
func (s *DatabaseHealthService) restoreFromBackup() error {
	s.log.Warn().Msg("Attempting restore from backup")

	backup := s.findMostRecentBackup()
	if backup == "" {
		return fmt.Errorf("CRITICAL: no backup found for %s", s.db.Name())
	}

	s.log.Info().Str("backup", backup).Msg("Found backup")

	path := s.db.Path()
	profile := s.db.Profile()
	name := s.db.Name()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	// Keep the corrupted file around for investigation
	corruptedPath := path + ".corrupted." + time.Now().Format("20060102_150405")
	if err := os.Rename(path, corruptedPath); err != nil {
		s.log.Error().Err(err).Msg("Failed to set aside corrupted file")
	} else {
		s.log.Info().Str("path", corruptedPath).Msg("Corrupted file set aside")
	}

	if err := CopyFile(backup, path); err != nil {
		return fmt.Errorf("failed to restore backup: %w", err)
	}

	newDB, err := database.New(database.Config{
		Path:    path,
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		return fmt.Errorf("failed to reopen database: %w", err)
	}

	s.db = newDB

	// Verify restored database
	var result string
	err = s.db.Conn().QueryRow("PRAGMA integrity_check").Scan(&result)
	if err != nil || result != "ok" {
		return fmt.Errorf("restored backup is also corrupt")
	}

	s.log.Info().
		Str("backup", backup).
		Msg("Successfully restored from backup")

	return nil
}

// findMostRecentBackup finds the most recent backup for this database
func (s *DatabaseHealthService) findMostRecentBackup() string {
	filename := filepath.Base(s.db.Path())

	var mostRecent string
	var mostRecentTime time.Time

	if err := filepath.Walk(s.backupDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}

		if !info.IsDir() && filepath.Base(path) == filename {
			if info.ModTime().After(mostRecentTime) {
				mostRecent = path
				mostRecentTime = info.ModTime()
			}
		}

		return nil
	}); err != nil {
		s.log.Warn().Err(err).Str("backup_dir", s.backupDir).Msg("Error walking directory for backup search")
	}

	return mostRecent
}

// GetMetrics returns current database metrics
func (s *DatabaseHealthService) GetMetrics() (*DatabaseMetrics, error) {
	metrics := &DatabaseMetrics{
		Name: s.db.Name(),
	}

	stats, err := s.db.GetStats()
	if err != nil {
		return nil, fmt.Errorf("failed to get stats for %s: %w", s.db.Name(), err)
	}
	metrics.SizeMB = float64(stats.SizeBytes) / 1024 / 1024
	metrics.WALSizeMB = float64(stats.WALSizeBytes) / 1024 / 1024

	// Run integrity check now
	var result string
	if err := s.db.Conn().QueryRow("PRAGMA integrity_check").Scan(&result); err == nil {
		metrics.IntegrityCheckPassed = result == "ok"
		metrics.LastIntegrityCheck = time.Now()
	}

	return metrics, nil
}

// DatabaseMetrics holds database health metrics
type DatabaseMetrics struct {
	Name                 string
	SizeMB               float64
	WALSizeMB            float64
	LastIntegrityCheck   time.Time
	IntegrityCheckPassed bool
}

// CopyFile copies a file from src to dst (exported for use by other reliability services)
func CopyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	return os.WriteFile(dst, input, 0644)
}
