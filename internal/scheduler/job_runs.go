package scheduler

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/internal/domain"
)

// RunRecorder persists one row per job execution so operators can see what
// ran, when, and how it went. Recording failures are logged but never fail
// the job itself.
// Database: cache.db (job_runs table)
type RunRecorder struct {
	db  *sql.DB // cache.db
	log zerolog.Logger
}

// NewRunRecorder creates a new run recorder.
// db parameter should be the cache.db connection.
func NewRunRecorder(db *sql.DB, log zerolog.Logger) *RunRecorder {
	return &RunRecorder{
		db:  db,
		log: log.With().Str("component", "run_recorder").Logger(),
	}
}

// Start records the beginning of a run and returns its id.
func (r *RunRecorder) Start(jobName string) string {
	id := uuid.NewString()
	startedAt := time.Now().UTC().Format(time.RFC3339)

	_, err := r.db.Exec(`
		INSERT INTO job_runs (id, job_name, started_at)
		VALUES (?, ?, ?)
	`, id, jobName, startedAt)
	if err != nil {
		r.log.Warn().Err(err).Str("job", jobName).Msg("Failed to record job start")
	}

	return id
}

// Finish completes a run record with its outcome.
func (r *RunRecorder) Finish(id string, runErr error, detail string) {
	finishedAt := time.Now().UTC().Format(time.RFC3339)

	success := 1
	errMsg := ""
	if runErr != nil {
		success = 0
		errMsg = runErr.Error()
	}

	_, err := r.db.Exec(`
		UPDATE job_runs
		SET finished_at = ?, success = ?, error = ?, detail = ?
		WHERE id = ?
	`, finishedAt, success, errMsg, detail, id)
	if err != nil {
		r.log.Warn().Err(err).Str("run_id", id).Msg("Failed to record job finish")
	}
}

// List returns the most recent runs, newest first.
func (r *RunRecorder) List(limit int) ([]domain.JobRun, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(`
		SELECT id, job_name, started_at, finished_at, success, error, detail
		FROM job_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query job runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// LastRuns returns the most recent run per job name.
func (r *RunRecorder) LastRuns() (map[string]domain.JobRun, error) {
	// A couple hundred rows cover the latest run of every job; folding in
	// Go keeps the query trivial.
	runs, err := r.List(200)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]domain.JobRun)
	for _, run := range runs {
		if _, seen := latest[run.JobName]; !seen {
			latest[run.JobName] = run
		}
	}
	return latest, nil
}

// Prune removes run records older than keepDays. Returns the number of rows
// deleted.
func (r *RunRecorder) Prune(keepDays int) (int64, error) {
	if keepDays <= 0 {
		keepDays = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -keepDays).Format(time.RFC3339)

	result, err := r.db.Exec("DELETE FROM job_runs WHERE started_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune job runs: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		r.log.Info().Int64("deleted", deleted).Int("keep_days", keepDays).Msg("Pruned old job runs")
	}
	return deleted, nil
}

func scanRuns(rows *sql.Rows) ([]domain.JobRun, error) {
	runs := make([]domain.JobRun, 0)
	for rows.Next() {
		var run domain.JobRun
		var startedAt string
		var finishedAt sql.NullString
		var success int

		if err := rows.Scan(&run.ID, &run.JobName, &startedAt, &finishedAt, &success, &run.Error, &run.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan job run: %w", err)
		}

		run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		if finishedAt.Valid {
			run.FinishedAt, _ = time.Parse(time.RFC3339, finishedAt.String)
		}
		run.Success = success == 1

		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job runs: %w", err)
	}
	return runs, nil
}
