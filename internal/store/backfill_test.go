package store

import (
	"context"
	"errors"
	"testing"
)

func TestBackfillJob_Lifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	job, err := s.CreateBackfillJob(ctx, "com.example.note")
	if err != nil {
		t.Fatalf("CreateBackfillJob() failed: %v", err)
	}
	if job.Status != BackfillPending {
		t.Errorf("status = %q, expected pending", job.Status)
	}

	job.Status = BackfillRunning
	job.ReposTotal = 10
	job.ReposDone = 3
	job.RecordsSaved = 42
	if err := s.UpdateBackfillJob(ctx, job); err != nil {
		t.Fatalf("UpdateBackfillJob() failed: %v", err)
	}

	got, err := s.GetBackfillJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetBackfillJob() failed: %v", err)
	}
	if got.Status != BackfillRunning || got.ReposDone != 3 || got.RecordsSaved != 42 {
		t.Errorf("job = %+v", got)
	}

	job.Status = BackfillFailed
	job.Error = "relay unavailable"
	if err := s.UpdateBackfillJob(ctx, job); err != nil {
		t.Fatalf("UpdateBackfillJob() failed: %v", err)
	}

	got, err = s.GetBackfillJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetBackfillJob() failed: %v", err)
	}
	if got.Status != BackfillFailed || got.Error != "relay unavailable" {
		t.Errorf("job = %+v", got)
	}
}

func TestActiveBackfillJob(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.ActiveBackfillJob(ctx, "com.example.note"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound with no jobs, got %v", err)
	}

	job, err := s.CreateBackfillJob(ctx, "com.example.note")
	if err != nil {
		t.Fatalf("CreateBackfillJob() failed: %v", err)
	}

	active, err := s.ActiveBackfillJob(ctx, "com.example.note")
	if err != nil {
		t.Fatalf("ActiveBackfillJob() failed: %v", err)
	}
	if active.ID != job.ID {
		t.Errorf("active job = %+v", active)
	}

	job.Status = BackfillCompleted
	if err := s.UpdateBackfillJob(ctx, job); err != nil {
		t.Fatalf("UpdateBackfillJob() failed: %v", err)
	}
	if _, err := s.ActiveBackfillJob(ctx, "com.example.note"); !errors.Is(err, ErrNotFound) {
		t.Errorf("completed job still reported active: %v", err)
	}
}

func TestListBackfillJobs(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.CreateBackfillJob(ctx, "com.example.note"); err != nil {
		t.Fatalf("CreateBackfillJob() failed: %v", err)
	}
	if _, err := s.CreateBackfillJob(ctx, "com.example.task"); err != nil {
		t.Fatalf("CreateBackfillJob() failed: %v", err)
	}

	jobs, err := s.ListBackfillJobs(ctx)
	if err != nil {
		t.Fatalf("ListBackfillJobs() failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, expected 2", len(jobs))
	}

	if _, err := s.GetBackfillJob(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown id, got %v", err)
	}
}
