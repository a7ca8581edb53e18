package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/internal/modules/portfolio"
)

// MetricSnapshotJob writes a daily metric snapshot for every portfolio.
// Runs at midnight so each snapshot captures the full prior day.
type MetricSnapshotJob struct {
	portfolios *portfolio.Service
	log        zerolog.Logger

	mu         sync.Mutex
	lastDetail string
}

// NewMetricSnapshotJob creates a new metric snapshot job
func NewMetricSnapshotJob(portfolios *portfolio.Service, log zerolog.Logger) *MetricSnapshotJob {
	return &MetricSnapshotJob{
		portfolios: portfolios,
		log:        log.With().Str("job", "metric_snapshot").Logger(),
	}
}

// Name returns the job name
func (j *MetricSnapshotJob) Name() string {
	return "metric_snapshot"
}

// Run computes and stores snapshots for all portfolios
func (j *MetricSnapshotJob) Run() error {
	startTime := time.Now()

	written, failed, err := j.portfolios.SnapshotAll()
	if err != nil {
		j.setDetail("snapshot aborted: " + err.Error())
		return err
	}

	detail := fmt.Sprintf("wrote %d snapshots, %d failed", written, failed)
	j.setDetail(detail)

	j.log.Info().
		Int("written", written).
		Int("failed", failed).
		Dur("duration", time.Since(startTime)).
		Msg("Metric snapshots finished")

	if failed > 0 {
		return fmt.Errorf("metric snapshot completed with %d errors", failed)
	}
	return nil
}

// Detail reports the last run's summary
func (j *MetricSnapshotJob) Detail() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastDetail
}

func (j *MetricSnapshotJob) setDetail(detail string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastDetail = detail
}
