package sched

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"deep-research-service/internal/domain"
	"deep-research-service/internal/domain/model"
	"deep-research-service/internal/domain/ports/repository"
	"deep-research-service/internal/usecase"

	"github.com/rs/zerolog"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

type stubJobRepo struct {
	jobs    []*model.ResearchJob
	listErr error
}

func (s *stubJobRepo) CreateJob(context.Context, string, string) (string, error) { return "", nil }
func (s *stubJobRepo) GetJob(context.Context, string) (*model.ResearchJob, error) {
	return nil, domain.ErrNotFound
}
func (s *stubJobRepo) GetJobs(_ context.Context, filter repository.JobFilter) ([]*model.ResearchJob, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*model.ResearchJob
	for _, j := range s.jobs {
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}
func (s *stubJobRepo) UpdateJobStatus(context.Context, string, repository.StatusUpdate) error {
	return nil
}
func (s *stubJobRepo) UpdateJobResult(context.Context, string, string) error { return nil }
func (s *stubJobRepo) UpdateJobError(context.Context, string, string) error  { return nil }
func (s *stubJobRepo) AddJobStep(context.Context, string, string, string) error {
	return nil
}
func (s *stubJobRepo) GetJobSteps(context.Context, string) ([]*model.JobStep, error) {
	return []*model.JobStep{}, nil
}
func (s *stubJobRepo) DeleteJob(context.Context, string) error { return nil }
func (s *stubJobRepo) Close() error                            { return nil }

type stubStatusUC struct {
	mu       sync.Mutex
	seen     []string
	outcomes map[string]usecase.ReconcileOutcome
}

func (s *stubStatusUC) Reconcile(_ context.Context, job *model.ResearchJob) usecase.ReconcileOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, job.ID)
	return s.outcomes[job.ID]
}

func TestSweepReconcilesInFlightJobs(t *testing.T) {
	repo := &stubJobRepo{jobs: []*model.ResearchJob{
		{ID: "j1", Status: model.JobStatusInProgress, ThreadID: "T1", RunID: "R1"},
		{ID: "j2", Status: model.JobStatusInProgress, ThreadID: "T2", RunID: "R2"},
		{ID: "j3", Status: model.JobStatusCompleted},
	}}
	status := &stubStatusUC{outcomes: map[string]usecase.ReconcileOutcome{
		"j1": {Updated: true},
		"j2": {Updated: false},
	}}
	w := NewReconcileWorker(time.Minute, 50, repo, status, testLogger())

	n, err := w.sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if n != 1 {
		t.Errorf("updated = %d, want 1", n)
	}
	if len(status.seen) != 2 {
		t.Errorf("reconciled %v, terminal jobs must be excluded", status.seen)
	}
}

func TestSweepReportsListFailure(t *testing.T) {
	repo := &stubJobRepo{listErr: errors.New("storage down")}
	w := NewReconcileWorker(time.Minute, 50, repo, &stubStatusUC{}, testLogger())

	if _, err := w.sweep(context.Background()); err == nil {
		t.Error("expected the listing failure to surface")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	repo := &stubJobRepo{}
	w := NewReconcileWorker(10*time.Millisecond, 50, repo, &stubStatusUC{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
