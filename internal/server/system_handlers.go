package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/portfolio-analytics/internal/config"
	"github.com/aristath/portfolio-analytics/internal/database"
	"github.com/aristath/portfolio-analytics/internal/modules/marketdata"
	"github.com/aristath/portfolio-analytics/internal/reliability"
	"github.com/aristath/portfolio-analytics/internal/scheduler"
)

// SystemHandlers handles system-wide monitoring and operations endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	cfg         *config.Config
	analyticsDB *database.DB
	configDB    *database.DB
	cacheDB     *database.DB
	history     *marketdata.HistoryStore
	scheduler   *scheduler.Scheduler
	recorder    *scheduler.RunRecorder
	monitoring  *reliability.MonitoringService
	startedAt   time.Time
	// Jobs (set after job registration in main.go)
	jobs map[string]scheduler.Job
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(
	log zerolog.Logger,
	cfg *config.Config,
	analyticsDB, configDB, cacheDB *database.DB,
	history *marketdata.HistoryStore,
	sched *scheduler.Scheduler,
	recorder *scheduler.RunRecorder,
	monitoring *reliability.MonitoringService,
) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		cfg:         cfg,
		analyticsDB: analyticsDB,
		configDB:    configDB,
		cacheDB:     cacheDB,
		history:     history,
		scheduler:   sched,
		recorder:    recorder,
		monitoring:  monitoring,
		startedAt:   time.Now(),
		jobs:        map[string]scheduler.Job{},
	}
}

// SetJobs registers job references for manual triggering, keyed by job name.
// Called once after jobs are registered in main.go, before the server starts
// serving requests.
func (h *SystemHandlers) SetJobs(jobs map[string]scheduler.Job) {
	h.jobs = jobs
}

// SystemStatusResponse represents the system status response
type SystemStatusResponse struct {
	Status         string  `json:"status"` // "ok" or "degraded"
	UptimeSeconds  float64 `json:"uptime_seconds"`
	PortfolioCount int     `json:"portfolio_count"`
	SymbolCount    int     `json:"symbol_count"`
	SnapshotCount  int     `json:"snapshot_count"`
	BarCount       int64   `json:"bar_count"`
	LastPriceSync  string  `json:"last_price_sync,omitempty"`
	Goroutines     int     `json:"goroutines"`
	CPUPercent     float64 `json:"cpu_percent"`
	MemoryUsedMB   float64 `json:"memory_used_mb"`
	MemoryPercent  float64 `json:"memory_percent"`
}

// JobsStatusResponse represents scheduler job status
type JobsStatusResponse struct {
	TotalJobs int       `json:"total_jobs"`
	Jobs      []JobInfo `json:"jobs"`
	LastRun   string    `json:"last_run,omitempty"`
}

// JobInfo represents information about a single job
type JobInfo struct {
	Name     string `json:"name"`
	Status   string `json:"status"` // "idle", "running", "success", "failed"
	LastRun  string `json:"last_run,omitempty"`
	Duration string `json:"duration,omitempty"`
	Detail   string `json:"detail,omitempty"`
	Error    string `json:"error,omitempty"`
}

// DatabaseStatsResponse represents database statistics
type DatabaseStatsResponse struct {
	Databases   []DBInfo `json:"databases"`
	TotalSizeMB float64  `json:"total_size_mb"`
	LastChecked string   `json:"last_checked"`
}

// DBInfo represents information about a single database
type DBInfo struct {
	Name          string  `json:"name"`
	Path          string  `json:"path"`
	SizeMB        float64 `json:"size_mb"`
	WALSizeMB     float64 `json:"wal_size_mb"`
	PageCount     int64   `json:"page_count,omitempty"`
	FreelistPages int64   `json:"freelist_pages,omitempty"`
}

// DiskUsageResponse represents disk usage statistics
type DiskUsageResponse struct {
	DataDirMB   float64 `json:"data_dir_mb"`
	BackupsMB   float64 `json:"backups_mb"`
	TotalMB     float64 `json:"total_mb"`
	AvailableMB float64 `json:"available_mb,omitempty"`
	UsedPercent float64 `json:"used_percent,omitempty"`
}

// AlertsResponse represents the current alert state
type AlertsResponse struct {
	Alerts      []reliability.Alert `json:"alerts"`
	Count       int                 `json:"count"`
	HasCritical bool                `json:"has_critical"`
	CheckedAt   string              `json:"checked_at"`
}

// HandleSystemStatus returns system status: row counts across the databases,
// last price sync, and process resource usage
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	response := SystemStatusResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
	}

	if err := h.configDB.Conn().QueryRow(`SELECT COUNT(*) FROM portfolios`).Scan(&response.PortfolioCount); err != nil {
		h.log.Warn().Err(err).Msg("Failed to count portfolios")
	}

	if err := h.analyticsDB.Conn().QueryRow(`SELECT COUNT(*) FROM metric_snapshots`).Scan(&response.SnapshotCount); err != nil {
		h.log.Warn().Err(err).Msg("Failed to count metric snapshots")
	}

	if symbols, err := h.history.Symbols(); err != nil {
		h.log.Warn().Err(err).Msg("Failed to list history symbols")
	} else {
		response.SymbolCount = len(symbols)
	}

	if err := h.history.Conn().QueryRow(`SELECT COUNT(*) FROM daily_prices`).Scan(&response.BarCount); err != nil {
		h.log.Warn().Err(err).Msg("Failed to count price bars")
	}

	var lastSync string
	if err := h.cacheDB.Conn().QueryRow(`SELECT COALESCE(MAX(last_synced_at), '') FROM sync_state`).Scan(&lastSync); err != nil {
		h.log.Warn().Err(err).Msg("Failed to read last sync time")
	}
	response.LastPriceSync = lastSync

	// Aggregate CPU over a short window; percpu=false returns one value
	if percentages, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(percentages) > 0 {
		response.CPUPercent = percentages[0]
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		response.MemoryUsedMB = float64(vm.Used) / 1024 / 1024
		response.MemoryPercent = vm.UsedPercent
	}

	if h.monitoring != nil && h.monitoring.HasCriticalAlerts() {
		response.Status = "degraded"
	}

	h.writeJSON(w, response)
}

// HandleJobsStatus returns the registered jobs with their most recent run
// record from the cache database
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting jobs status")

	lastRuns, err := h.recorder.LastRuns()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load job run history")
		http.Error(w, "failed to load job run history", http.StatusInternalServerError)
		return
	}

	names := make([]string, 0, len(h.jobs))
	for name := range h.jobs {
		names = append(names, name)
	}
	sort.Strings(names)

	response := JobsStatusResponse{
		TotalJobs: len(names),
		Jobs:      make([]JobInfo, 0, len(names)),
	}

	var newest time.Time
	for _, name := range names {
		info := JobInfo{Name: name, Status: "idle"}

		if run, ok := lastRuns[name]; ok {
			info.LastRun = run.StartedAt.Format(time.RFC3339)
			info.Detail = run.Detail
			info.Error = run.Error

			switch {
			case run.FinishedAt.IsZero():
				info.Status = "running"
			case run.Success:
				info.Status = "success"
				info.Duration = run.FinishedAt.Sub(run.StartedAt).String()
			default:
				info.Status = "failed"
				info.Duration = run.FinishedAt.Sub(run.StartedAt).String()
			}

			if run.StartedAt.After(newest) {
				newest = run.StartedAt
			}
		}

		response.Jobs = append(response.Jobs, info)
	}

	if !newest.IsZero() {
		response.LastRun = newest.Format(time.RFC3339)
	}

	h.writeJSON(w, response)
}

// HandleDatabaseStats returns per-database size and page statistics
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	databases := []DBInfo{}
	totalSizeMB := 0.0

	for _, db := range []*database.DB{h.analyticsDB, h.configDB, h.cacheDB} {
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to get database stats")
			continue
		}

		sizeMB := float64(stats.SizeBytes) / 1024 / 1024
		totalSizeMB += sizeMB

		databases = append(databases, DBInfo{
			Name:          db.Name() + ".db",
			Path:          db.Path(),
			SizeMB:        sizeMB,
			WALSizeMB:     float64(stats.WALSizeBytes) / 1024 / 1024,
			PageCount:     stats.PageCount,
			FreelistPages: stats.FreelistCount,
		})
	}

	// history.db lives outside the managed pool, stat the files directly
	if info, err := os.Stat(h.cfg.HistoryDBPath); err == nil {
		sizeMB := float64(info.Size()) / 1024 / 1024
		totalSizeMB += sizeMB

		historyInfo := DBInfo{
			Name:   "history.db",
			Path:   h.cfg.HistoryDBPath,
			SizeMB: sizeMB,
		}
		if walInfo, err := os.Stat(h.cfg.HistoryDBPath + "-wal"); err == nil {
			historyInfo.WALSizeMB = float64(walInfo.Size()) / 1024 / 1024
		}
		databases = append(databases, historyInfo)
	}

	response := DatabaseStatsResponse{
		Databases:   databases,
		TotalSizeMB: totalSizeMB,
		LastChecked: time.Now().Format(time.RFC3339),
	}

	h.writeJSON(w, response)
}

// HandleDiskUsage returns disk usage statistics
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting disk usage")

	dataDirSize := h.getDirSize(h.cfg.DataDir)
	backupsSize := h.getDirSize(h.cfg.BackupDir)

	response := DiskUsageResponse{
		DataDirMB: dataDirSize,
		BackupsMB: backupsSize,
		TotalMB:   dataDirSize + backupsSize,
	}

	if usage, err := disk.Usage(h.cfg.DataDir); err == nil {
		response.AvailableMB = float64(usage.Free) / 1024 / 1024
		response.UsedPercent = usage.UsedPercent
	} else {
		h.log.Warn().Err(err).Msg("Failed to read filesystem usage")
	}

	h.writeJSON(w, response)
}

// HandleAlerts runs the alert checks and returns the current alert state
func (h *SystemHandlers) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting alerts")

	if h.monitoring == nil {
		http.Error(w, "monitoring not configured", http.StatusServiceUnavailable)
		return
	}

	if err := h.monitoring.CheckAlerts(); err != nil {
		h.log.Error().Err(err).Msg("Alert check failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	alerts := h.monitoring.GetAlerts()
	response := AlertsResponse{
		Alerts:      alerts,
		Count:       len(alerts),
		HasCritical: h.monitoring.HasCriticalAlerts(),
		CheckedAt:   time.Now().Format(time.RFC3339),
	}

	h.writeJSON(w, response)
}

// HandleTriggerJob triggers a registered job immediately
// POST /api/system/jobs/{name}/run
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	job, ok := h.jobs[name]
	if !ok || job == nil {
		h.log.Warn().Str("job", name).Msg("Requested job not registered")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "error",
			"message": "Job not registered: " + name,
		})
		return
	}

	h.log.Info().Str("job", name).Msg("Manual job trigger")

	if err := h.scheduler.RunNow(job); err != nil {
		h.log.Error().Err(err).Str("job", name).Msg("Failed to run job")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]string{
		"status":  "success",
		"message": "Job " + name + " completed",
	})
}

// HandleSyncPrices triggers the price sync job immediately
// POST /api/system/sync/prices
func (h *SystemHandlers) HandleSyncPrices(w http.ResponseWriter, r *http.Request) {
	job, ok := h.jobs["price_sync"]
	if !ok || job == nil {
		h.log.Warn().Msg("Price sync job not registered yet")
		h.writeJSON(w, map[string]string{
			"status":  "error",
			"message": "Price sync job not registered",
		})
		return
	}

	h.log.Info().Msg("Manual price sync triggered")

	if err := h.scheduler.RunNow(job); err != nil {
		h.log.Error().Err(err).Msg("Failed to trigger price sync")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, map[string]string{
		"status":  "success",
		"message": "Price sync completed",
	})
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// writeJSON writes a JSON response
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
