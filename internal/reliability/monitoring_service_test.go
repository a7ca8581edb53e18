package reliability

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-analytics/internal/database"
	"github.com/aristath/portfolio-analytics/pkg/logger"
)

func newMonitoringFixture(t *testing.T) (*MonitoringService, *database.DB) {
	t.Helper()
	log := logger.New(logger.Config{Level: "error", Pretty: false})

	tempDir := t.TempDir()
	db, err := database.New(database.Config{
		Path:    filepath.Join(tempDir, "config.db"),
		Profile: database.ProfileStandard,
		Name:    "config",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	databases := map[string]Connector{"config": db}
	healthServices := map[string]*DatabaseHealthService{
		"config": NewDatabaseHealthService(db, filepath.Join(tempDir, "backups"), log),
	}

	return NewMonitoringService(databases, healthServices, tempDir, filepath.Join(tempDir, "backups"), log), db
}

func TestMonitoringService_CollectMetrics(t *testing.T) {
	t.Run("collects metrics from all databases", func(t *testing.T) {
		monitoringService, _ := newMonitoringFixture(t)

		metrics, err := monitoringService.CollectMetrics()
		require.NoError(t, err)

		assert.Len(t, metrics, 1)
		assert.Contains(t, metrics, "config")
		assert.True(t, metrics["config"].IntegrityCheckPassed)
	})
}

func TestMonitoringService_CheckAlerts(t *testing.T) {
	t.Run("runs alert checks without error", func(t *testing.T) {
		monitoringService, _ := newMonitoringFixture(t)

		err := monitoringService.CheckAlerts()
		assert.NoError(t, err)

		// A healthy database never raises critical alerts, even when the
		// backup-missing warning fires on a fresh data dir
		assert.False(t, monitoringService.HasCriticalAlerts())
	})

	t.Run("warns when no recent daily backup exists", func(t *testing.T) {
		monitoringService, _ := newMonitoringFixture(t)

		err := monitoringService.CheckAlerts()
		require.NoError(t, err)

		hasBackupWarning := false
		for _, alert := range monitoringService.GetAlerts() {
			if alert.Component == "backup" && alert.Level == AlertWarning {
				hasBackupWarning = true
				break
			}
		}
		assert.True(t, hasBackupWarning, "Should warn about missing daily backup")
	})

	t.Run("clears previous alerts on each run", func(t *testing.T) {
		monitoringService, _ := newMonitoringFixture(t)

		monitoringService.addAlert(AlertCritical, "disk", "Stale alert", nil)
		require.True(t, monitoringService.HasCriticalAlerts())

		err := monitoringService.CheckAlerts()
		require.NoError(t, err)

		assert.False(t, monitoringService.HasCriticalAlerts())
	})
}

func TestMonitoringService_HasCriticalAlerts(t *testing.T) {
	log := logger.New(logger.Config{Level: "error", Pretty: false})

	t.Run("detects critical alerts", func(t *testing.T) {
		tempDir := t.TempDir()
		monitoringService := NewMonitoringService(map[string]Connector{}, map[string]*DatabaseHealthService{}, tempDir, filepath.Join(tempDir, "backups"), log)

		monitoringService.addAlert(AlertCritical, "disk", "Test critical alert", map[string]interface{}{})

		assert.True(t, monitoringService.HasCriticalAlerts())

		criticalAlerts := monitoringService.GetCriticalAlerts()
		assert.Len(t, criticalAlerts, 1)
		assert.Equal(t, AlertCritical, criticalAlerts[0].Level)
	})

	t.Run("returns false when no critical alerts", func(t *testing.T) {
		tempDir := t.TempDir()
		monitoringService := NewMonitoringService(map[string]Connector{}, map[string]*DatabaseHealthService{}, tempDir, filepath.Join(tempDir, "backups"), log)

		monitoringService.addAlert(AlertWarning, "test", "Test warning", map[string]interface{}{})

		assert.False(t, monitoringService.HasCriticalAlerts())
	})
}

func TestMonitoringService_GetAlertsReturnsCopy(t *testing.T) {
	log := logger.New(logger.Config{Level: "error", Pretty: false})

	tempDir := t.TempDir()
	monitoringService := NewMonitoringService(map[string]Connector{}, map[string]*DatabaseHealthService{}, tempDir, filepath.Join(tempDir, "backups"), log)

	monitoringService.addAlert(AlertInfo, "test", "First", nil)

	alerts := monitoringService.GetAlerts()
	require.Len(t, alerts, 1)
	alerts[0].Message = "mutated"

	assert.Equal(t, "First", monitoringService.GetAlerts()[0].Message)
}

func TestAlert_Levels(t *testing.T) {
	t.Run("alert level constants are correct", func(t *testing.T) {
		assert.Equal(t, AlertLevel("CRITICAL"), AlertCritical)
		assert.Equal(t, AlertLevel("ERROR"), AlertError)
		assert.Equal(t, AlertLevel("WARNING"), AlertWarning)
		assert.Equal(t, AlertLevel("INFO"), AlertInfo)
	})
}
