package usecase

import (
	"context"
	"fmt"
	"time"

	"deep-research-service/internal/config"
	"deep-research-service/internal/domain"
	"deep-research-service/internal/domain/model"
	"deep-research-service/internal/domain/ports/adapter"
	"deep-research-service/internal/domain/ports/repository"
	"deep-research-service/internal/infra/logging"
	"deep-research-service/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ ResearchUseCase = (*researchUC)(nil)

// StartResult reports a job creation attempt. On delegation failure JobID
// still identifies the (now failed) tracking record.
type StartResult struct {
	JobID     string
	Status    model.JobStatus
	Message   string
	CreatedAt time.Time
}

// StatusReport is the view returned by a status check: the job's freshest
// persisted state plus the reconciliation pass details.
type StatusReport struct {
	Job          *model.ResearchJob
	Steps        []*model.JobStep
	Messages     []adapter.Message
	Updated      bool
	ReconcileErr string
}

// ResultReport is the terminal-state view with materialized citations.
type ResultReport struct {
	Job       *model.ResearchJob
	Steps     []*model.JobStep
	Citations []model.Citation
}

// JobListing is a filtered page of jobs plus aggregate counts over the
// owner's whole history.
type JobListing struct {
	Jobs  []*model.ResearchJob
	Stats JobStats
}

type JobStats struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	InProgress int `json:"in_progress"`
	Failed     int `json:"failed"`
}

// ResearchUseCase owns the research job lifecycle: creation with synchronous
// delegation to the agent service, status reconciliation, result retrieval
// and deletion. All reads are ownership-checked against the requester.
type ResearchUseCase interface {
	Start(ctx context.Context, query, userID string) (*StartResult, error)
	CheckStatus(ctx context.Context, jobID, requesterID string) (*StatusReport, error)
	GetResult(ctx context.Context, jobID, requesterID string) (*ResultReport, error)
	List(ctx context.Context, userID string, status model.JobStatus, limit int) (*JobListing, error)
	Delete(ctx context.Context, jobID, requesterID string) error
}

type researchUC struct {
	jobs   repository.ResearchJobRepository
	agents adapter.AgentServiceAdapter
	status StatusUseCase
	cfg    config.AgentConfig
	log    *zerolog.Logger
}

func NewResearchUseCase(
	jobs repository.ResearchJobRepository,
	agents adapter.AgentServiceAdapter,
	status StatusUseCase,
	cfg config.AgentConfig,
	logger *zerolog.Logger,
) *researchUC {
	return &researchUC{jobs: jobs, agents: agents, status: status, cfg: cfg, log: logger}
}

// Start creates the tracking record and delegates execution synchronously:
// the caller's response reflects delegation success or failure. A single
// provider failure finalizes the job as failed; there is no retry loop.
func (u *researchUC) Start(ctx context.Context, query, userID string) (*StartResult, error) {
	defer logging.TraceDuration(u.log, "ResearchUC.Start")()
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", domain.ErrInvalidArgument)
	}
	if userID == "" {
		userID = model.AnonymousUserID
	}

	jobID, err := u.jobs.CreateJob(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	ctx = logging.WithUserID(logging.WithJobID(ctx, jobID), userID)
	log := logging.With(ctx, u.log)
	metrics.IncJobCreated()
	log.Info().Msg("research job created")

	if err := u.delegate(ctx, jobID, query); err != nil {
		log.Error().Err(err).Msg("delegation failed")
		if uerr := u.jobs.UpdateJobError(ctx, jobID, err.Error()); uerr != nil {
			log.Error().Err(uerr).Msg("could not finalize failed job")
		}
		if serr := u.jobs.AddJobStep(ctx, jobID, model.StepError, fmt.Sprintf("error: %v", err)); serr != nil {
			log.Warn().Err(serr).Msg("could not record error step")
		}
		metrics.IncJobFinalized(string(model.JobStatusFailed))
		return &StartResult{JobID: jobID, Status: model.JobStatusFailed},
			fmt.Errorf("%w: %v", domain.ErrDelegationFailed, err)
	}

	return &StartResult{
		JobID:     jobID,
		Status:    model.JobStatusCreated,
		Message:   "Research job created successfully",
		CreatedAt: model.UTCNow(),
	}, nil
}

// delegate provisions the provider-side agent, thread and run and attaches
// their handles to the job.
func (u *researchUC) delegate(ctx context.Context, jobID, query string) error {
	log := logging.With(ctx, u.log)
	connID := ""
	if u.cfg.BingResourceName != "" {
		id, err := u.agents.ResolveConnectionID(ctx, u.cfg.BingResourceName)
		if err != nil {
			return fmt.Errorf("resolve grounding connection: %w", err)
		}
		connID = id
	}
	if connID == "" {
		return fmt.Errorf("grounding connection id not resolved")
	}

	spec := adapter.AgentSpec{
		Model: u.cfg.ModelDeployment,
		Name:  "Deep Research Agent",
		Instructions: fmt.Sprintf(
			"You are a research agent that produces thorough, well-sourced answers.\n\n"+
				"User question: %s\n\n"+
				"Use the deep research tool to build a comprehensive answer.", query),
		DeepResearchModel: u.cfg.DeepResearchModel,
		BingConnectionID:  connID,
	}
	ag, err := u.agents.CreateAgent(ctx, spec)
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	if err := u.jobs.AddJobStep(ctx, jobID, model.StepAgentInit, fmt.Sprintf("agent %s created", ag.ID)); err != nil {
		log.Warn().Err(err).Msg("could not record agent_init step")
	}

	thread, err := u.agents.CreateThread(ctx)
	if err != nil {
		return fmt.Errorf("create thread: %w", err)
	}
	prompt := fmt.Sprintf("Research the following in depth. Always use the deep research tool:\n\n%s", query)
	if err := u.agents.CreateMessage(ctx, thread.ID, "user", prompt); err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	run, err := u.agents.CreateRun(ctx, thread.ID, ag.ID)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	upd := repository.StatusUpdate{
		Status:      model.JobStatusInProgress,
		CurrentStep: repository.Str("Deep research running..."),
		ThreadID:    repository.Str(thread.ID),
		RunID:       repository.Str(run.ID),
		AgentID:     repository.Str(ag.ID),
	}
	if err := u.jobs.UpdateJobStatus(ctx, jobID, upd); err != nil {
		return fmt.Errorf("attach run handles: %w", err)
	}
	if err := u.jobs.AddJobStep(ctx, jobID, model.StepRunCreated, fmt.Sprintf("run %s executing", run.ID)); err != nil {
		log.Warn().Err(err).Msg("could not record run_created step")
	}
	return nil
}

// CheckStatus reconciles the job against the provider and returns its
// freshest persisted state. Reconciliation failures never surface as caller
// errors; the last good state is returned with the failure description.
func (u *researchUC) CheckStatus(ctx context.Context, jobID, requesterID string) (*StatusReport, error) {
	defer logging.TraceDuration(u.log, "ResearchUC.CheckStatus")()
	ctx = logging.WithJobID(ctx, jobID)
	job, err := u.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := authorizeOwner(job, requesterID); err != nil {
		return nil, err
	}

	outcome := u.status.Reconcile(ctx, job)
	if outcome.Updated {
		if fresh, err := u.jobs.GetJob(ctx, jobID); err == nil {
			job = fresh
		}
	}
	steps, err := u.jobs.GetJobSteps(ctx, jobID)
	if err != nil {
		logging.With(ctx, u.log).Warn().Err(err).Msg("could not load job steps")
		steps = []*model.JobStep{}
	}
	return &StatusReport{
		Job:          job,
		Steps:        steps,
		Messages:     outcome.Messages,
		Updated:      outcome.Updated,
		ReconcileErr: outcome.Err,
	}, nil
}

func (u *researchUC) GetResult(ctx context.Context, jobID, requesterID string) (*ResultReport, error) {
	defer logging.TraceDuration(u.log, "ResearchUC.GetResult")()
	ctx = logging.WithJobID(ctx, jobID)
	job, err := u.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := authorizeOwner(job, requesterID); err != nil {
		return nil, err
	}
	steps, err := u.jobs.GetJobSteps(ctx, jobID)
	if err != nil {
		logging.With(ctx, u.log).Warn().Err(err).Msg("could not load job steps")
		steps = []*model.JobStep{}
	}
	return &ResultReport{
		Job:       job,
		Steps:     steps,
		Citations: model.CitationsFromSteps(steps),
	}, nil
}

func (u *researchUC) List(ctx context.Context, userID string, status model.JobStatus, limit int) (*JobListing, error) {
	defer logging.TraceDuration(u.log, "ResearchUC.List")()
	jobs, err := u.jobs.GetJobs(ctx, repository.JobFilter{UserID: userID, Status: status, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	all, err := u.jobs.GetJobs(ctx, repository.JobFilter{UserID: userID, Limit: 1000})
	if err != nil {
		return nil, fmt.Errorf("list jobs for stats: %w", err)
	}
	stats := JobStats{Total: len(all)}
	for _, j := range all {
		switch j.Status {
		case model.JobStatusCompleted:
			stats.Completed++
		case model.JobStatusFailed:
			stats.Failed++
		case model.JobStatusCreated, model.JobStatusInProgress:
			stats.InProgress++
		}
	}
	return &JobListing{Jobs: jobs, Stats: stats}, nil
}

func (u *researchUC) Delete(ctx context.Context, jobID, requesterID string) error {
	defer logging.TraceDuration(u.log, "ResearchUC.Delete")()
	job, err := u.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if err := authorizeOwner(job, requesterID); err != nil {
		return err
	}
	// Removes local tracking only; the external run, if any, keeps going.
	return u.jobs.DeleteJob(ctx, jobID)
}

// authorizeOwner allows the owner and anyone for legacy anonymous jobs.
func authorizeOwner(job *model.ResearchJob, requesterID string) error {
	if job.UserID == "" || job.UserID == model.AnonymousUserID || job.UserID == requesterID {
		return nil
	}
	return domain.ErrForbidden
}
