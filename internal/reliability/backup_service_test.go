package reliability

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/aristath/portfolio-analytics/internal/database"
	"github.com/aristath/portfolio-analytics/pkg/logger"
)

func TestBackupService_DailyBackup(t *testing.T) {
	log := logger.New(logger.Config{Level: "error", Pretty: false})

	t.Run("creates daily backup for all databases except cache", func(t *testing.T) {
		tempDir := t.TempDir()
		dataDir := filepath.Join(tempDir, "data")
		backupDir := filepath.Join(tempDir, "backups")
		require.NoError(t, os.MkdirAll(dataDir, 0755))

		// Create test databases
		analyticsDB, err := database.New(database.Config{
			Path:    filepath.Join(dataDir, "analytics.db"),
			Profile: database.ProfileLedger,
			Name:    "analytics",
		})
		require.NoError(t, err)
		defer analyticsDB.Close()

		cacheDB, err := database.New(database.Config{
			Path:    filepath.Join(dataDir, "cache.db"),
			Profile: database.ProfileCache,
			Name:    "cache",
		})
		require.NoError(t, err)
		defer cacheDB.Close()

		// Create test table with data
		_, err = analyticsDB.Conn().Exec("CREATE TABLE snapshots (id INTEGER PRIMARY KEY, portfolio_id INTEGER)")
		require.NoError(t, err)
		_, err = analyticsDB.Conn().Exec("INSERT INTO snapshots (portfolio_id) VALUES (1), (2)")
		require.NoError(t, err)

		databases := map[string]Connector{
			"analytics": analyticsDB,
			"cache":     cacheDB,
		}

		backupService := NewBackupService(databases, backupDir, log)

		err = backupService.DailyBackup()
		require.NoError(t, err)

		// Verify backup exists and cache was skipped
		date := time.Now().Format("2006-01-02")
		dailyDir := filepath.Join(backupDir, "daily", date)
		entries, err := os.ReadDir(dailyDir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "analytics.db", entries[0].Name())

		// Verify backup integrity and data
		backupDB, err := sql.Open("sqlite", filepath.Join(dailyDir, "analytics.db"))
		require.NoError(t, err)
		defer backupDB.Close()

		var result string
		err = backupDB.QueryRow("PRAGMA integrity_check").Scan(&result)
		require.NoError(t, err)
		assert.Equal(t, "ok", result)

		var count int
		err = backupDB.QueryRow("SELECT COUNT(*) FROM snapshots").Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})
}

func TestBackupService_WeeklyBackup(t *testing.T) {
	log := logger.New(logger.Config{Level: "error", Pretty: false})

	t.Run("weekly backup includes cache", func(t *testing.T) {
		tempDir := t.TempDir()
		dataDir := filepath.Join(tempDir, "data")
		backupDir := filepath.Join(tempDir, "backups")
		require.NoError(t, os.MkdirAll(dataDir, 0755))

		configDB, err := database.New(database.Config{
			Path:    filepath.Join(dataDir, "config.db"),
			Profile: database.ProfileStandard,
			Name:    "config",
		})
		require.NoError(t, err)
		defer configDB.Close()

		cacheDB, err := database.New(database.Config{
			Path:    filepath.Join(dataDir, "cache.db"),
			Profile: database.ProfileCache,
			Name:    "cache",
		})
		require.NoError(t, err)
		defer cacheDB.Close()

		databases := map[string]Connector{
			"config": configDB,
			"cache":  cacheDB,
		}

		backupService := NewBackupService(databases, backupDir, log)

		err = backupService.WeeklyBackup()
		require.NoError(t, err)

		year, week := time.Now().ISOWeek()
		weekDir := filepath.Join(backupDir, "weekly", fmt.Sprintf("%04d-W%02d", year, week))
		entries, err := os.ReadDir(weekDir)
		require.NoError(t, err)
		assert.Len(t, entries, 2)

		backupNames := []string{}
		for _, entry := range entries {
			backupNames = append(backupNames, entry.Name())
		}
		assert.Contains(t, backupNames, "config.db")
		assert.Contains(t, backupNames, "cache.db")
	})
}

func TestBackupService_RotateDailyBackups(t *testing.T) {
	log := logger.New(logger.Config{Level: "error", Pretty: false})

	t.Run("deletes backups older than 30 days", func(t *testing.T) {
		tempDir := t.TempDir()
		backupDir := filepath.Join(tempDir, "backups")

		// Create old backup directory (35 days ago, named by date)
		oldDate := time.Now().AddDate(0, 0, -35).Format("2006-01-02")
		oldDir := filepath.Join(backupDir, "daily", oldDate)
		require.NoError(t, os.MkdirAll(oldDir, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(oldDir, "config.db"), []byte("old"), 0644))

		// Create recent backup directory (yesterday)
		recentDate := time.Now().AddDate(0, 0, -1).Format("2006-01-02")
		recentDir := filepath.Join(backupDir, "daily", recentDate)
		require.NoError(t, os.MkdirAll(recentDir, 0755))

		backupService := NewBackupService(map[string]Connector{}, backupDir, log)

		err := backupService.rotateDailyBackups()
		require.NoError(t, err)

		_, err = os.Stat(oldDir)
		assert.True(t, os.IsNotExist(err), "Old backup should be deleted")

		_, err = os.Stat(recentDir)
		assert.NoError(t, err, "Recent backup should still exist")
	})
}

func TestBackupService_RestoreFromBackup(t *testing.T) {
	log := logger.New(logger.Config{Level: "error", Pretty: false})

	t.Run("finds and returns most recent backup", func(t *testing.T) {
		tempDir := t.TempDir()
		backupDir := filepath.Join(tempDir, "backups")

		dailyDir := filepath.Join(backupDir, "daily", "2026-01-01")
		require.NoError(t, os.MkdirAll(dailyDir, 0755))

		backupPath := filepath.Join(dailyDir, "config.db")
		err := os.WriteFile(backupPath, []byte("backup data"), 0644)
		require.NoError(t, err)

		backupService := NewBackupService(map[string]Connector{}, backupDir, log)

		foundBackup, err := backupService.RestoreFromBackup("config")
		require.NoError(t, err)
		assert.Contains(t, foundBackup, "config.db")
	})

	t.Run("falls back to weekly backups", func(t *testing.T) {
		tempDir := t.TempDir()
		backupDir := filepath.Join(tempDir, "backups")

		weekDir := filepath.Join(backupDir, "weekly", "2026-W01")
		require.NoError(t, os.MkdirAll(weekDir, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(weekDir, "analytics.db"), []byte("backup data"), 0644))

		backupService := NewBackupService(map[string]Connector{}, backupDir, log)

		foundBackup, err := backupService.RestoreFromBackup("analytics")
		require.NoError(t, err)
		assert.Contains(t, foundBackup, filepath.Join("weekly", "2026-W01"))
	})

	t.Run("returns error when no backup found", func(t *testing.T) {
		tempDir := t.TempDir()
		backupDir := filepath.Join(tempDir, "backups")

		backupService := NewBackupService(map[string]Connector{}, backupDir, log)

		_, err := backupService.RestoreFromBackup("nonexistent")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no backup found")
	})
}

func TestBackupService_VerifyBackup(t *testing.T) {
	log := logger.New(logger.Config{Level: "error", Pretty: false})

	t.Run("verifies valid backup", func(t *testing.T) {
		tempDir := t.TempDir()
		backupPath := filepath.Join(tempDir, "test.db")

		db, err := database.New(database.Config{
			Path:    backupPath,
			Profile: database.ProfileStandard,
			Name:    "test",
		})
		require.NoError(t, err)
		db.Close()

		backupService := NewBackupService(map[string]Connector{}, tempDir, log)

		err = backupService.verifyBackup(backupPath)
		assert.NoError(t, err)
	})

	t.Run("detects corrupted backup", func(t *testing.T) {
		tempDir := t.TempDir()
		backupPath := filepath.Join(tempDir, "corrupted.db")

		err := os.WriteFile(backupPath, []byte("not a valid sqlite database"), 0644)
		require.NoError(t, err)

		backupService := NewBackupService(map[string]Connector{}, tempDir, log)

		err = backupService.verifyBackup(backupPath)
		assert.Error(t, err)
	})
}

func TestBackupJobs_Names(t *testing.T) {
	log := logger.New(logger.Config{Level: "error", Pretty: false})
	service := NewBackupService(map[string]Connector{}, t.TempDir(), log)

	assert.Equal(t, "daily_backup", NewDailyBackupJob(service).Name())
	assert.Equal(t, "weekly_backup", NewWeeklyBackupJob(service).Name())
}
