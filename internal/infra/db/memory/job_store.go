package memory

import (
	"context"
	"sort"
	"sync"

	"deep-research-service/internal/domain"
	"deep-research-service/internal/domain/model"
	"deep-research-service/internal/domain/ports/repository"

	"github.com/google/uuid"
)

var _ repository.ResearchJobRepository = (*JobStore)(nil)

// JobStore is the last-resort volatile backend. It keeps job tracking
// available when both real backends fail, at the cost of durability.
// Step history is not supported: AddJobStep drops the event and
// GetJobSteps always returns an empty sequence.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*model.ResearchJob
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*model.ResearchJob)}
}

func (s *JobStore) CreateJob(_ context.Context, query, userID string) (string, error) {
	if userID == "" {
		userID = model.AnonymousUserID
	}
	job := &model.ResearchJob{
		ID:        uuid.NewString(),
		UserID:    userID,
		Query:     query,
		Status:    model.JobStatusCreated,
		CreatedAt: model.UTCNow(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return job.ID, nil
}

func (s *JobStore) GetJob(_ context.Context, jobID string) (*model.ResearchJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *JobStore) GetJobs(_ context.Context, filter repository.JobFilter) ([]*model.ResearchJob, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	out := make([]*model.ResearchJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if filter.UserID != "" && job.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		cp := *job
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *JobStore) UpdateJobStatus(_ context.Context, jobID string, upd repository.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil
	}
	job.Status = upd.Status
	if upd.CurrentStep != nil {
		job.CurrentStep = *upd.CurrentStep
	}
	if upd.ThreadID != nil {
		job.ThreadID = *upd.ThreadID
	}
	if upd.RunID != nil {
		job.RunID = *upd.RunID
	}
	if upd.AgentID != nil {
		job.AgentID = *upd.AgentID
	}
	if upd.Status.Terminal() {
		job.CompletedAt = model.UTCNow()
	}
	return nil
}

func (s *JobStore) UpdateJobResult(_ context.Context, jobID, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil
	}
	job.Result = result
	job.Status = model.JobStatusCompleted
	job.CompletedAt = model.UTCNow()
	return nil
}

func (s *JobStore) UpdateJobError(_ context.Context, jobID, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil
	}
	job.ErrorMessage = errorMessage
	job.Status = model.JobStatusFailed
	job.CompletedAt = model.UTCNow()
	return nil
}

func (s *JobStore) AddJobStep(_ context.Context, _, _, _ string) error {
	return nil
}

func (s *JobStore) GetJobSteps(_ context.Context, _ string) ([]*model.JobStep, error) {
	return []*model.JobStep{}, nil
}

func (s *JobStore) DeleteJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
	return nil
}

func (s *JobStore) Close() error { return nil }
