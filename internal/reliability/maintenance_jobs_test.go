package reliability

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-analytics/internal/database"
	"github.com/aristath/portfolio-analytics/internal/domain"
	"github.com/aristath/portfolio-analytics/pkg/logger"
)

type fakeSyncStates struct {
	states []domain.SyncState
	err    error
}

func (f *fakeSyncStates) GetAll() ([]domain.SyncState, error) {
	return f.states, f.err
}

type fakeRunPruner struct {
	keepDays int
	deleted  int64
	calls    int
}

func (f *fakeRunPruner) Prune(keepDays int) (int64, error) {
	f.calls++
	f.keepDays = keepDays
	return f.deleted, nil
}

func newMaintenanceFixture(t *testing.T) (map[string]Connector, map[string]*DatabaseHealthService, string) {
	t.Helper()
	log := logger.New(logger.Config{Level: "error", Pretty: false})

	tempDir := t.TempDir()
	dataDir := filepath.Join(tempDir, "data")
	backupDir := filepath.Join(dataDir, "backups")
	require.NoError(t, os.MkdirAll(dataDir, 0755))

	configDB, err := database.New(database.Config{
		Path:    filepath.Join(dataDir, "config.db"),
		Profile: database.ProfileStandard,
		Name:    "config",
	})
	require.NoError(t, err)
	require.NoError(t, configDB.Migrate())
	t.Cleanup(func() { configDB.Close() })

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(dataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	require.NoError(t, cacheDB.Migrate())
	t.Cleanup(func() { cacheDB.Close() })

	databases := map[string]Connector{
		"config": configDB,
		"cache":  cacheDB,
	}
	healthServices := map[string]*DatabaseHealthService{
		"config": NewDatabaseHealthService(configDB, backupDir, log),
		"cache":  NewDatabaseHealthService(cacheDB, backupDir, log),
	}

	return databases, healthServices, backupDir
}

func TestHealthCheckJob_Run(t *testing.T) {
	log := logger.New(logger.Config{Level: "error", Pretty: false})

	t.Run("passes on healthy databases", func(t *testing.T) {
		_, healthServices, _ := newMaintenanceFixture(t)

		job := NewHealthCheckJob(healthServices, nil, nil, 0, log)

		assert.NoError(t, job.Run())
		assert.Equal(t, "health_check", job.Name())
	})

	t.Run("counts stale symbols without failing the job", func(t *testing.T) {
		_, healthServices, _ := newMaintenanceFixture(t)

		syncStates := &fakeSyncStates{states: []domain.SyncState{
			{Symbol: "AAA", LastSyncedAt: time.Now().Add(-200 * time.Hour)},
			{Symbol: "BBB", LastSyncedAt: time.Now().Add(-2 * time.Hour)},
		}}

		job := NewHealthCheckJob(healthServices, syncStates, nil, 96*time.Hour, log)

		assert.NoError(t, job.Run())
		assert.Equal(t, 1, job.checkPriceStaleness())
	})

	t.Run("refreshes monitoring alerts", func(t *testing.T) {
		databases, healthServices, backupDir := newMaintenanceFixture(t)
		monitoring := NewMonitoringService(databases, healthServices, filepath.Dir(backupDir), backupDir, log)

		job := NewHealthCheckJob(healthServices, nil, monitoring, 0, log)

		require.NoError(t, job.Run())

		// Fresh data dir has no backups yet, which shows up as a warning
		assert.NotEmpty(t, monitoring.GetAlerts())
	})
}

func TestDailyMaintenanceJob_Run(t *testing.T) {
	log := logger.New(logger.Config{Level: "error", Pretty: false})

	t.Run("runs all maintenance steps on healthy databases", func(t *testing.T) {
		databases, healthServices, backupDir := newMaintenanceFixture(t)

		pruner := &fakeRunPruner{deleted: 3}
		job := NewDailyMaintenanceJob(databases, healthServices, pruner, backupDir, log)

		err := job.Run()
		require.NoError(t, err)

		assert.Equal(t, "daily_maintenance", job.Name())
		assert.Equal(t, 1, pruner.calls)
		assert.Equal(t, 30, pruner.keepDays)
	})

	t.Run("runs without a pruner", func(t *testing.T) {
		databases, healthServices, backupDir := newMaintenanceFixture(t)

		job := NewDailyMaintenanceJob(databases, healthServices, nil, backupDir, log)

		assert.NoError(t, job.Run())
	})

	t.Run("verifies yesterday's backups when present", func(t *testing.T) {
		databases, healthServices, backupDir := newMaintenanceFixture(t)

		// Seed yesterday's backup dir with a real backup of the config DB
		yesterday := time.Now().AddDate(0, 0, -1).Format("2006-01-02")
		dailyDir := filepath.Join(backupDir, "daily", yesterday)
		require.NoError(t, os.MkdirAll(dailyDir, 0755))

		_, err := databases["config"].Conn().Exec("VACUUM INTO '" + filepath.Join(dailyDir, "config.db") + "'")
		require.NoError(t, err)

		job := NewDailyMaintenanceJob(databases, healthServices, nil, backupDir, log)

		assert.NoError(t, job.verifyBackups())
	})

	t.Run("reports missing backup directory", func(t *testing.T) {
		databases, healthServices, backupDir := newMaintenanceFixture(t)

		job := NewDailyMaintenanceJob(databases, healthServices, nil, backupDir, log)

		err := job.verifyBackups()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "backup directory not found")
	})
}

func TestWeeklyMaintenanceJob_Run(t *testing.T) {
	log := logger.New(logger.Config{Level: "error", Pretty: false})

	t.Run("vacuums all given databases", func(t *testing.T) {
		databases, _, _ := newMaintenanceFixture(t)

		// Churn the cache DB so VACUUM has something to reclaim
		cache := databases["cache"]
		_, err := cache.Conn().Exec("CREATE TABLE scratch (id INTEGER PRIMARY KEY, blob TEXT)")
		require.NoError(t, err)
		for i := 0; i < 50; i++ {
			_, err = cache.Conn().Exec("INSERT INTO scratch (blob) VALUES (?)", "some throwaway row content")
			require.NoError(t, err)
		}
		_, err = cache.Conn().Exec("DELETE FROM scratch")
		require.NoError(t, err)

		job := NewWeeklyMaintenanceJob(map[string]Connector{"cache": cache}, nil, log)

		err = job.Run()
		require.NoError(t, err)

		assert.Equal(t, "weekly_maintenance", job.Name())
	})

	t.Run("flags portfolio inconsistencies", func(t *testing.T) {
		databases, _, _ := newMaintenanceFixture(t)

		configDB := databases["config"]
		_, err := configDB.Conn().Exec("INSERT INTO portfolios (name) VALUES ('hollow')")
		require.NoError(t, err)

		validator := database.NewPortfolioValidator(configDB.Conn())
		job := NewWeeklyMaintenanceJob(map[string]Connector{"config": configDB}, validator, log)

		err = job.Run()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 errors")
	})

	t.Run("passes with consistent portfolios", func(t *testing.T) {
		databases, _, _ := newMaintenanceFixture(t)

		configDB := databases["config"]
		res, err := configDB.Conn().Exec("INSERT INTO portfolios (name) VALUES ('balanced')")
		require.NoError(t, err)
		id, err := res.LastInsertId()
		require.NoError(t, err)
		_, err = configDB.Conn().Exec(
			"INSERT INTO portfolio_weights (portfolio_id, symbol, weight) VALUES (?, 'AAA', 0.5), (?, 'BBB', 0.5)",
			id, id)
		require.NoError(t, err)

		validator := database.NewPortfolioValidator(configDB.Conn())
		job := NewWeeklyMaintenanceJob(map[string]Connector{"config": configDB}, validator, log)

		require.NoError(t, job.Run())
	})
}
