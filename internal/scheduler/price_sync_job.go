package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/internal/modules/marketdata"
)

// PriceSyncJob refreshes stored price history for every portfolio symbol.
// Scheduled after market close; also triggered manually from the API.
type PriceSyncJob struct {
	sync *marketdata.SyncService
	log  zerolog.Logger

	mu         sync.Mutex
	lastDetail string
}

// NewPriceSyncJob creates a new price sync job
func NewPriceSyncJob(syncService *marketdata.SyncService, log zerolog.Logger) *PriceSyncJob {
	return &PriceSyncJob{
		sync: syncService,
		log:  log.With().Str("job", "price_sync").Logger(),
	}
}

// Name returns the job name
func (j *PriceSyncJob) Name() string {
	return "price_sync"
}

// Run executes one sync cycle
func (j *PriceSyncJob) Run() error {
	startTime := time.Now()

	result, err := j.sync.SyncAll()
	if err != nil {
		j.setDetail("sync aborted: " + err.Error())
		return err
	}

	detail := fmt.Sprintf("synced %d symbols (%d bars), %d skipped, %d failed",
		result.Synced, result.Bars, result.Skipped, result.Failed)
	j.setDetail(detail)

	j.log.Info().
		Dur("duration", time.Since(startTime)).
		Str("result", detail).
		Msg("Price sync finished")

	if result.Failed > 0 {
		return fmt.Errorf("price sync completed with %d failed symbols", result.Failed)
	}
	return nil
}

// Detail reports the last run's summary
func (j *PriceSyncJob) Detail() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastDetail
}

func (j *PriceSyncJob) setDetail(detail string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastDetail = detail
}
