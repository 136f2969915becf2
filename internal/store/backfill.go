package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Backfill job statuses.
const (
	BackfillPending   = "pending"
	BackfillRunning   = "running"
	BackfillCompleted = "completed"
	BackfillFailed    = "failed"
)

// BackfillJob tracks one collection backfill from the network.
type BackfillJob struct {
	ID           string
	Collection   string
	Status       string
	ReposTotal   int
	ReposDone    int
	RecordsSaved int
	Error        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateBackfillJob inserts a new pending job for a collection and
// returns it.
func (s *Store) CreateBackfillJob(ctx context.Context, collection string) (*BackfillJob, error) {
	job := &BackfillJob{
		ID:         uuid.NewString(),
		Collection: collection,
		Status:     BackfillPending,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO backfill_jobs (id, collection, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, job.ID, job.Collection, job.Status, now(), now())
	if err != nil {
		return nil, fmt.Errorf("create backfill job: %w", err)
	}
	return job, nil
}

// UpdateBackfillJob persists a job's progress and status.
func (s *Store) UpdateBackfillJob(ctx context.Context, job *BackfillJob) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE backfill_jobs
		SET status = ?, repos_total = ?, repos_done = ?, records_saved = ?,
		    error = ?, updated_at = ?
		WHERE id = ?
	`, job.Status, job.ReposTotal, job.ReposDone, job.RecordsSaved,
		nullIfEmpty(job.Error), now(), job.ID)
	if err != nil {
		return fmt.Errorf("update backfill job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("backfill job %s: %w", job.ID, ErrNotFound)
	}
	return nil
}

// GetBackfillJob returns a job by id.
// Returns ErrNotFound if no such job exists.
func (s *Store) GetBackfillJob(ctx context.Context, id string) (*BackfillJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, collection, status, repos_total, repos_done, records_saved,
		       error, created_at, updated_at
		FROM backfill_jobs
		WHERE id = ?
	`, id)

	job, err := scanBackfillJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("backfill job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get backfill job: %w", err)
	}
	return job, nil
}

// ListBackfillJobs returns all jobs, most recent first.
func (s *Store) ListBackfillJobs(ctx context.Context) ([]*BackfillJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, collection, status, repos_total, repos_done, records_saved,
		       error, created_at, updated_at
		FROM backfill_jobs
		ORDER BY created_at DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list backfill jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*BackfillJob{}
	for rows.Next() {
		job, err := scanBackfillJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list backfill jobs: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list backfill jobs: %w", err)
	}
	return jobs, nil
}

// ActiveBackfillJob returns the pending or running job for a collection,
// if one exists. Used to keep backfills one-at-a-time per collection.
func (s *Store) ActiveBackfillJob(ctx context.Context, collection string) (*BackfillJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, collection, status, repos_total, repos_done, records_saved,
		       error, created_at, updated_at
		FROM backfill_jobs
		WHERE collection = ? AND status IN (?, ?)
		ORDER BY created_at DESC
		LIMIT 1
	`, collection, BackfillPending, BackfillRunning)

	job, err := scanBackfillJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("backfill for %s: %w", collection, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("active backfill job: %w", err)
	}
	return job, nil
}

func scanBackfillJob(row rowScanner) (*BackfillJob, error) {
	var job BackfillJob
	var errMsg sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&job.ID, &job.Collection, &job.Status, &job.ReposTotal,
		&job.ReposDone, &job.RecordsSaved, &errMsg, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	job.Error = errMsg.String
	job.CreatedAt = parseTime(createdAt)
	job.UpdatedAt = parseTime(updatedAt)
	return &job, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
