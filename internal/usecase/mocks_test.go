package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"deep-research-service/internal/domain"
	"deep-research-service/internal/domain/model"
	"deep-research-service/internal/domain/ports/adapter"
	"deep-research-service/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// mockJobRepo is an in-memory ResearchJobRepository with step retention,
// per-method error injection and call counting.
type mockJobRepo struct {
	mu    sync.Mutex
	jobs  map[string]*model.ResearchJob
	steps map[string][]*model.JobStep
	seq   int

	createErr  error
	getErr     error
	resultErr  error
	errorErr   error
	statusErr  error
	addStepErr error
	stepsErr   error

	createCalls  int
	resultCalls  int
	errorCalls   int
	statusCalls  int
	addStepCalls int
	deleteCalls  int
}

var _ repository.ResearchJobRepository = (*mockJobRepo)(nil)

func newMockJobRepo() *mockJobRepo {
	return &mockJobRepo{
		jobs:  make(map[string]*model.ResearchJob),
		steps: make(map[string][]*model.JobStep),
	}
}

func (m *mockJobRepo) CreateJob(_ context.Context, query, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.createErr != nil {
		return "", m.createErr
	}
	if userID == "" {
		userID = model.AnonymousUserID
	}
	m.seq++
	id := fmt.Sprintf("job-%d", m.seq)
	m.jobs[id] = &model.ResearchJob{
		ID:        id,
		UserID:    userID,
		Query:     query,
		Status:    model.JobStatusCreated,
		CreatedAt: model.UTCNow(),
	}
	return id, nil
}

func (m *mockJobRepo) GetJob(_ context.Context, jobID string) (*model.ResearchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *mockJobRepo) GetJobs(_ context.Context, filter repository.JobFilter) ([]*model.ResearchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var out []*model.ResearchJob
	for _, job := range m.jobs {
		if filter.UserID != "" && job.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		cp := *job
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockJobRepo) UpdateJobStatus(_ context.Context, jobID string, upd repository.StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCalls++
	if m.statusErr != nil {
		return m.statusErr
	}
	job, ok := m.jobs[jobID]
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

func (m *mockJobRepo) UpdateJobResult(_ context.Context, jobID, result string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resultCalls++
	if m.resultErr != nil {
		return m.resultErr
	}
	if job, ok := m.jobs[jobID]; ok {
		job.Result = result
		job.Status = model.JobStatusCompleted
		job.CompletedAt = model.UTCNow()
	}
	return nil
}

func (m *mockJobRepo) UpdateJobError(_ context.Context, jobID, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCalls++
	if m.errorErr != nil {
		return m.errorErr
	}
	if job, ok := m.jobs[jobID]; ok {
		job.ErrorMessage = errorMessage
		job.Status = model.JobStatusFailed
		job.CompletedAt = model.UTCNow()
	}
	return nil
}

func (m *mockJobRepo) AddJobStep(_ context.Context, jobID, stepName, stepDetails string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addStepCalls++
	if m.addStepErr != nil {
		return m.addStepErr
	}
	m.seq++
	m.steps[jobID] = append(m.steps[jobID], &model.JobStep{
		ID:          fmt.Sprintf("step-%d", m.seq),
		JobID:       jobID,
		StepName:    stepName,
		StepDetails: stepDetails,
		Timestamp:   model.UTCNow(),
	})
	return nil
}

func (m *mockJobRepo) GetJobSteps(_ context.Context, jobID string) ([]*model.JobStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stepsErr != nil {
		return nil, m.stepsErr
	}
	return append([]*model.JobStep{}, m.steps[jobID]...), nil
}

func (m *mockJobRepo) DeleteJob(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	delete(m.jobs, jobID)
	delete(m.steps, jobID)
	return nil
}

func (m *mockJobRepo) Close() error { return nil }

func (m *mockJobRepo) mustGet(jobID string) *model.ResearchJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.jobs[jobID]
	return &cp
}

func (m *mockJobRepo) stepsFor(jobID string) []*model.JobStep {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.JobStep{}, m.steps[jobID]...)
}

func (m *mockJobRepo) seed(job *model.ResearchJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
}

// mockAgent is a scriptable AgentServiceAdapter.
type mockAgent struct {
	mu sync.Mutex

	runStatus adapter.RunStatus
	messages  []adapter.Message

	resolveErr error
	agentErr   error
	threadErr  error
	messageErr error
	runErr     error
	getRunErr  error
	listErr    error

	getRunCalls  int
	listCalls    int
	createdAgent *adapter.AgentSpec
	sentMessage  string
}

var _ adapter.AgentServiceAdapter = (*mockAgent)(nil)

func (a *mockAgent) ResolveConnectionID(_ context.Context, resourceName string) (string, error) {
	if a.resolveErr != nil {
		return "", a.resolveErr
	}
	return "conn-" + resourceName, nil
}

func (a *mockAgent) CreateAgent(_ context.Context, spec adapter.AgentSpec) (*adapter.Agent, error) {
	if a.agentErr != nil {
		return nil, a.agentErr
	}
	a.mu.Lock()
	a.createdAgent = &spec
	a.mu.Unlock()
	return &adapter.Agent{ID: "A1"}, nil
}

func (a *mockAgent) CreateThread(context.Context) (*adapter.Thread, error) {
	if a.threadErr != nil {
		return nil, a.threadErr
	}
	return &adapter.Thread{ID: "T1"}, nil
}

func (a *mockAgent) CreateMessage(_ context.Context, _, _, content string) error {
	if a.messageErr != nil {
		return a.messageErr
	}
	a.mu.Lock()
	a.sentMessage = content
	a.mu.Unlock()
	return nil
}

func (a *mockAgent) CreateRun(_ context.Context, threadID, agentID string) (*adapter.Run, error) {
	if a.runErr != nil {
		return nil, a.runErr
	}
	return &adapter.Run{ID: "R1", ThreadID: threadID, AgentID: agentID, Status: adapter.RunStatusQueued}, nil
}

func (a *mockAgent) GetRun(_ context.Context, threadID, runID string) (*adapter.Run, error) {
	a.mu.Lock()
	a.getRunCalls++
	a.mu.Unlock()
	if a.getRunErr != nil {
		return nil, a.getRunErr
	}
	return &adapter.Run{ID: runID, ThreadID: threadID, Status: a.runStatus}, nil
}

func (a *mockAgent) ListMessages(context.Context, string) ([]adapter.Message, error) {
	a.mu.Lock()
	a.listCalls++
	a.mu.Unlock()
	if a.listErr != nil {
		return nil, a.listErr
	}
	return a.messages, nil
}
