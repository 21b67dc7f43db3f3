// Package queue implements interfaces.QueueStore against SurrealDB. It
// generalizes the teacher's job_queue table idiom — UPSERT-by-record-id,
// a two-step select-then-conditional-update dequeue — to the transform
// job lifecycle (pending/running/completed/failed/timeout/killed).
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/bobmcallan/transformd/internal/common"
	"github.com/bobmcallan/transformd/internal/interfaces"
	"github.com/bobmcallan/transformd/internal/models"
	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// jobSelectFields aliases the record's job_id to id so query results map
// directly onto models.Job.
const jobSelectFields = "job_id as id, seq_id, user_id, script_id, source_table, destination_table, " +
	"status, logs, error_message, rows_processed, created_at, started_at, completed_at"

// Store implements interfaces.QueueStore using SurrealDB.
type Store struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// New creates a Store bound to an already-connected SurrealDB client.
func New(db *surrealdb.DB, logger *common.Logger) *Store {
	return &Store{db: db, logger: logger}
}

func (s *Store) Enqueue(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()[:8]
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.SeqID == 0 {
		seq, err := s.nextSeqID(ctx)
		if err != nil {
			return fmt.Errorf("failed to assign job sequence id: %w", err)
		}
		job.SeqID = seq
	}

	sql := `UPSERT $rid SET
		job_id = $job_id, seq_id = $seq_id, user_id = $user_id, script_id = $script_id,
		source_table = $source_table, destination_table = $destination_table,
		status = $status, logs = $logs, error_message = $error_message,
		rows_processed = $rows_processed, created_at = $created_at,
		started_at = $started_at, completed_at = $completed_at`
	vars := map[string]any{
		"rid":               surrealmodels.NewRecordID("jobs", job.ID),
		"job_id":            job.ID,
		"seq_id":            job.SeqID,
		"user_id":           job.UserID,
		"script_id":         job.ScriptID,
		"source_table":      job.SourceTable,
		"destination_table": job.DestinationTable,
		"status":            job.Status,
		"logs":              job.Logs,
		"error_message":     job.ErrorMessage,
		"rows_processed":    job.RowsProcessed,
		"created_at":        job.CreatedAt,
		"started_at":        job.StartedAt,
		"completed_at":      job.CompletedAt,
	}

	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// nextSeqID assigns the monotonically increasing integer identity a Job
// carries in addition to its SurrealDB record id (the spec's identifier is
// an integer; SurrealDB record ids are strings, so a dedicated counter
// record tracks the next value).
func (s *Store) nextSeqID(ctx context.Context) (int64, error) {
	sql := `UPSERT counters:job_seq SET value = (value ?? 0) + 1 RETURN value`
	type seqResult struct {
		Value int64 `json:"value"`
	}
	results, err := surrealdb.Query[[]seqResult](ctx, s.db, sql, nil)
	if err != nil {
		return 0, err
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return (*results)[0].Result[0].Value, nil
	}
	return 1, nil
}

func (s *Store) FetchPending(ctx context.Context, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	sql := "SELECT " + jobSelectFields + " FROM jobs WHERE status = $pending ORDER BY created_at ASC LIMIT $limit"
	vars := map[string]any{"pending": models.JobStatusPending, "limit": limit}
	return s.queryJobs(ctx, sql, vars)
}

func (s *Store) MarkRunning(ctx context.Context, id string) (bool, error) {
	now := time.Now()
	// Single conditional UPDATE: the row flips to running only if it is
	// still pending. The WHERE clause is what makes concurrent claims safe —
	// a losing supervisor's UPDATE simply touches zero rows.
	sql := "UPDATE $rid SET status = $running, started_at = $now WHERE status = $pending RETURN AFTER"
	vars := map[string]any{
		"rid":     surrealmodels.NewRecordID("jobs", id),
		"running": models.JobStatusRunning,
		"pending": models.JobStatusPending,
		"now":     now,
	}

	results, err := surrealdb.Query[[]models.Job](ctx, s.db, sql, vars)
	if err != nil {
		return false, fmt.Errorf("failed to mark job running: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return false, nil
	}
	return len((*results)[0].Result) > 0, nil
}

func (s *Store) MarkCompleted(ctx context.Context, id string, rows int64, logText string) error {
	sql := `UPDATE $rid SET status = $status, completed_at = $now, rows_processed = $rows, logs = $logs`
	vars := map[string]any{
		"rid":    surrealmodels.NewRecordID("jobs", id),
		"status": models.JobStatusCompleted,
		"now":    time.Now(),
		"rows":   rows,
		"logs":   logText,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, id string, kind string, errMsg string, logText string) error {
	switch kind {
	case models.JobStatusFailed, models.JobStatusTimeout, models.JobStatusKilled:
	default:
		return fmt.Errorf("mark failed: invalid terminal kind %q", kind)
	}
	sql := `UPDATE $rid SET status = $status, completed_at = $now, error_message = $err, logs = $logs`
	vars := map[string]any{
		"rid":    surrealmodels.NewRecordID("jobs", id),
		"status": kind,
		"now":    time.Now(),
		"err":    errMsg,
		"logs":   logText,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}

func (s *Store) UpdateProgress(ctx context.Context, id string, rows int64, logText string) error {
	sql := `UPDATE $rid SET rows_processed = $rows, logs = $logs`
	vars := map[string]any{
		"rid":  surrealmodels.NewRecordID("jobs", id),
		"rows": rows,
		"logs": logText,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	sql := "SELECT " + jobSelectFields + " FROM $rid"
	vars := map[string]any{"rid": surrealmodels.NewRecordID("jobs", id)}
	jobs, err := s.queryJobs(ctx, sql, vars)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return jobs[0], nil
}

func (s *Store) IsCancelled(ctx context.Context, id string) (bool, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	return job.Status == models.JobStatusKilled, nil
}

// ResetOrphaned recovers jobs left running by a crashed supervisor. The
// spec's documented default is to mark them failed as orphaned; the
// requeue policy mirrors the teacher's ResetRunningJobs behavior for
// operators who'd rather retry than surface a failure.
func (s *Store) ResetOrphaned(ctx context.Context, policy interfaces.OrphanPolicy) (int, error) {
	switch policy {
	case interfaces.OrphanRequeue:
		sql := `UPDATE jobs SET status = $pending, started_at = NONE WHERE status = $running RETURN BEFORE`
		jobs, err := s.queryJobs(ctx, sql, map[string]any{
			"pending": models.JobStatusPending,
			"running": models.JobStatusRunning,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to requeue orphaned jobs: %w", err)
		}
		return len(jobs), nil
	default:
		sql := `UPDATE jobs SET status = $failed, completed_at = $now, error_message = $msg
			WHERE status = $running RETURN BEFORE`
		jobs, err := s.queryJobs(ctx, sql, map[string]any{
			"failed":  models.JobStatusFailed,
			"running": models.JobStatusRunning,
			"now":     time.Now(),
			"msg":     "orphaned: supervisor restarted while job was running",
		})
		if err != nil {
			return 0, fmt.Errorf("failed to mark orphaned jobs failed: %w", err)
		}
		return len(jobs), nil
	}
}

func (s *Store) queryJobs(ctx context.Context, sql string, vars map[string]any) ([]*models.Job, error) {
	results, err := surrealdb.Query[[]models.Job](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	var jobs []*models.Job
	if results != nil && len(*results) > 0 {
		for i := range (*results)[0].Result {
			jobs = append(jobs, &(*results)[0].Result[i])
		}
	}
	return jobs, nil
}

var _ interfaces.QueueStore = (*Store)(nil)
