package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"deep-research-service/internal/domain"
	"deep-research-service/internal/domain/model"
	"deep-research-service/internal/domain/ports/repository"
)

func newTestStore(t *testing.T) *JobStore {
	t.Helper()
	store, err := NewJobStore(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("NewJobStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestJobRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.CreateJob(ctx, "What is quantum computing?", "alice")
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	job, err := store.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.ID != id || job.UserID != "alice" || job.Query != "What is quantum computing?" {
		t.Errorf("unexpected job: %+v", job)
	}
	if job.Status != model.JobStatusCreated {
		t.Errorf("Status = %q, want %q", job.Status, model.JobStatusCreated)
	}
	if job.CreatedAt.IsZero() || !job.CompletedAt.IsZero() {
		t.Errorf("timestamp invariants violated: created=%v completed=%v", job.CreatedAt, job.CompletedAt)
	}
	if job.CreatedAt.Location() != time.UTC {
		t.Errorf("CreatedAt not UTC: %v", job.CreatedAt)
	}
}

func TestGetJobNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetJob(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateJobStatusMergesHandles(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id, _ := store.CreateJob(ctx, "q", "u1")

	err := store.UpdateJobStatus(ctx, id, repository.StatusUpdate{
		Status:   model.JobStatusInProgress,
		ThreadID: repository.Str("T1"),
		RunID:    repository.Str("R1"),
		AgentID:  repository.Str("A1"),
	})
	if err != nil {
		t.Fatalf("UpdateJobStatus failed: %v", err)
	}

	err = store.UpdateJobStatus(ctx, id, repository.StatusUpdate{
		Status:      model.JobStatusInProgress,
		CurrentStep: repository.Str("researching"),
	})
	if err != nil {
		t.Fatalf("UpdateJobStatus failed: %v", err)
	}

	job, _ := store.GetJob(ctx, id)
	if job.ThreadID != "T1" || job.RunID != "R1" || job.AgentID != "A1" {
		t.Errorf("handles clobbered: %+v", job)
	}
	if job.CurrentStep != "researching" {
		t.Errorf("CurrentStep = %q", job.CurrentStep)
	}
}

func TestUpdateJobStatusTerminalSetsCompletedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id, _ := store.CreateJob(ctx, "q", "u1")

	err := store.UpdateJobStatus(ctx, id, repository.StatusUpdate{Status: model.JobStatusFailed})
	if err != nil {
		t.Fatalf("UpdateJobStatus failed: %v", err)
	}
	job, _ := store.GetJob(ctx, id)
	if job.CompletedAt.IsZero() {
		t.Error("terminal status must set completed_at")
	}
}

func TestUpdateJobResultAndError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("result forces completed", func(t *testing.T) {
		id, _ := store.CreateJob(ctx, "q", "u1")
		if err := store.UpdateJobResult(ctx, id, "the answer"); err != nil {
			t.Fatalf("UpdateJobResult failed: %v", err)
		}
		job, _ := store.GetJob(ctx, id)
		if job.Status != model.JobStatusCompleted || job.Result != "the answer" || job.CompletedAt.IsZero() {
			t.Errorf("unexpected job: %+v", job)
		}
	})

	t.Run("error forces failed", func(t *testing.T) {
		id, _ := store.CreateJob(ctx, "q", "u1")
		if err := store.UpdateJobError(ctx, id, "run ended with status expired"); err != nil {
			t.Fatalf("UpdateJobError failed: %v", err)
		}
		job, _ := store.GetJob(ctx, id)
		if job.Status != model.JobStatusFailed || job.ErrorMessage == "" || job.CompletedAt.IsZero() {
			t.Errorf("unexpected job: %+v", job)
		}
	})
}

func TestUpdatesOnMissingJobAreSilent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpdateJobStatus(ctx, "missing", repository.StatusUpdate{Status: model.JobStatusInProgress}); err != nil {
		t.Errorf("UpdateJobStatus on missing id: %v", err)
	}
	if err := store.UpdateJobResult(ctx, "missing", "r"); err != nil {
		t.Errorf("UpdateJobResult on missing id: %v", err)
	}
	if err := store.UpdateJobError(ctx, "missing", "e"); err != nil {
		t.Errorf("UpdateJobError on missing id: %v", err)
	}
}

func TestJobStepsOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id, _ := store.CreateJob(ctx, "q", "u1")

	// All inserts land within the same second, so ordering must fall back
	// to insertion order.
	names := []string{model.StepAgentInit, model.StepRunCreated, model.StepCitation}
	for _, n := range names {
		if err := store.AddJobStep(ctx, id, n, "details for "+n); err != nil {
			t.Fatalf("AddJobStep failed: %v", err)
		}
	}

	steps, err := store.GetJobSteps(ctx, id)
	if err != nil {
		t.Fatalf("GetJobSteps failed: %v", err)
	}
	if len(steps) != 3 {
		t.Fatalf("got %d steps, want 3", len(steps))
	}
	for i, n := range names {
		if steps[i].StepName != n {
			t.Errorf("step[%d] = %q, want %q", i, steps[i].StepName, n)
		}
		if steps[i].JobID != id {
			t.Errorf("step[%d] job id = %q", i, steps[i].JobID)
		}
	}
}

func TestGetJobStepsEmpty(t *testing.T) {
	store := newTestStore(t)
	steps, err := store.GetJobSteps(context.Background(), "whatever")
	if err != nil {
		t.Fatalf("GetJobSteps failed: %v", err)
	}
	if steps == nil || len(steps) != 0 {
		t.Errorf("expected empty step sequence, got %+v", steps)
	}
}

func TestNaiveTimestampsNormalizedOnRead(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	id, _ := store.CreateJob(ctx, "q", "u1")

	// Rows written by older deployments carry timestamps without the
	// UTC designator.
	_, err := store.db.ExecContext(ctx,
		`UPDATE research_jobs SET created_at = ? WHERE id = ?`, "2024-05-01T12:30:00", id)
	if err != nil {
		t.Fatalf("seed naive timestamp: %v", err)
	}

	job, err := store.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	want := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	if !job.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", job.CreatedAt, want)
	}
}

func TestGetJobsFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	aliceDone, _ := store.CreateJob(ctx, "q1", "alice")
	store.CreateJob(ctx, "q2", "alice")
	store.CreateJob(ctx, "q3", "bob")
	store.UpdateJobResult(ctx, aliceDone, "done")

	jobs, err := store.GetJobs(ctx, repository.JobFilter{UserID: "alice"})
	if err != nil {
		t.Fatalf("GetJobs failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("alice jobs = %d, want 2", len(jobs))
	}

	jobs, err = store.GetJobs(ctx, repository.JobFilter{UserID: "alice", Status: model.JobStatusCompleted})
	if err != nil {
		t.Fatalf("GetJobs failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != aliceDone {
		t.Errorf("unexpected filtered jobs: %+v", jobs)
	}

	jobs, err = store.GetJobs(ctx, repository.JobFilter{Limit: 1})
	if err != nil {
		t.Fatalf("GetJobs failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("limited jobs = %d, want 1", len(jobs))
	}
}

func TestDeleteJobRemovesSteps(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, _ := store.CreateJob(ctx, "q", "u1")
	store.AddJobStep(ctx, id, model.StepRunCreated, "run R1")

	if err := store.DeleteJob(ctx, id); err != nil {
		t.Fatalf("DeleteJob failed: %v", err)
	}
	if _, err := store.GetJob(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	steps, _ := store.GetJobSteps(ctx, id)
	if len(steps) != 0 {
		t.Errorf("steps survived delete: %+v", steps)
	}
}
