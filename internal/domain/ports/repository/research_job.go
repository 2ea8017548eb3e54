package repository

import (
	"context"

	"deep-research-service/internal/domain/model"
)

// JobFilter narrows GetJobs. Zero values mean "no filter"; Limit <= 0
// falls back to the store default of 50.
type JobFilter struct {
	UserID string
	Status model.JobStatus
	Limit  int
}

// StatusUpdate is a partial job mutation. Nil pointer fields retain the
// previously stored value; in particular a nil handle never clears a
// handle that an earlier update attached.
type StatusUpdate struct {
	Status      model.JobStatus
	CurrentStep *string
	ThreadID    *string
	RunID       *string
	AgentID     *string
}

// ResearchJobRepository is the storage contract shared by every backend.
//
// GetJob returns domain.ErrNotFound for unknown ids. UpdateJobResult and
// UpdateJobError are silent no-ops for unknown ids: reconciliation may race
// with deletion and must not fail because the tracking record is gone.
// A terminal Status in UpdateJobStatus stamps CompletedAt.
type ResearchJobRepository interface {
	CreateJob(ctx context.Context, query, userID string) (string, error)
	GetJob(ctx context.Context, jobID string) (*model.ResearchJob, error)
	GetJobs(ctx context.Context, filter JobFilter) ([]*model.ResearchJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, upd StatusUpdate) error
	UpdateJobResult(ctx context.Context, jobID, result string) error
	UpdateJobError(ctx context.Context, jobID, errorMessage string) error
	AddJobStep(ctx context.Context, jobID, stepName, stepDetails string) error
	GetJobSteps(ctx context.Context, jobID string) ([]*model.JobStep, error)
	DeleteJob(ctx context.Context, jobID string) error
	Close() error
}

// Str is a convenience for building StatusUpdate pointer fields.
func Str(s string) *string { return &s }
