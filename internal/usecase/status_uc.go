package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"deep-research-service/internal/domain/model"
	"deep-research-service/internal/domain/ports/adapter"
	"deep-research-service/internal/domain/ports/repository"
	"deep-research-service/internal/infra/logging"
	"deep-research-service/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ StatusUseCase = (*statusUC)(nil)

// ReconcileOutcome reports one reconciliation pass. Err carries the
// description of a swallowed polling/extraction failure; the job's last
// persisted state is still valid when it is set.
type ReconcileOutcome struct {
	Updated  bool
	Messages []adapter.Message
	Err      string
}

// StatusUseCase converges locally persisted job state with the provider's
// authoritative run state. Safe under concurrent and repeated invocation:
// a job already in a terminal status is never touched again.
type StatusUseCase interface {
	Reconcile(ctx context.Context, job *model.ResearchJob) ReconcileOutcome
}

type statusUC struct {
	jobs   repository.ResearchJobRepository
	agents adapter.AgentServiceAdapter
	log    *zerolog.Logger
}

func NewStatusUseCase(jobs repository.ResearchJobRepository, agents adapter.AgentServiceAdapter, logger *zerolog.Logger) *statusUC {
	return &statusUC{jobs: jobs, agents: agents, log: logger}
}

func (s *statusUC) Reconcile(ctx context.Context, job *model.ResearchJob) ReconcileOutcome {
	ctx = logging.WithJobID(ctx, job.ID)
	log := logging.With(ctx, s.log)
	defer logging.TraceDuration(log, "StatusUC.Reconcile")()
	start := time.Now()
	out := ReconcileOutcome{}

	finish := func(outcome string) ReconcileOutcome {
		metrics.ObserveReconcile(outcome, float64(time.Since(start).Milliseconds()))
		return out
	}
	fail := func(err error) ReconcileOutcome {
		log.Error().Err(err).Msg("reconciliation failed")
		out.Updated = false
		out.Err = err.Error()
		return finish("error")
	}

	// An already-terminal job is a pure read: no provider contact, no writes.
	if job.Status.Terminal() {
		return finish("noop")
	}
	if !job.Delegated() {
		return finish("noop")
	}

	run, err := s.agents.GetRun(ctx, job.ThreadID, job.RunID)
	if err != nil {
		return fail(fmt.Errorf("poll run: %w", err))
	}
	log.Info().Str("run_status", string(run.Status)).Msg("run status polled")

	// Message fetch is best effort; status interpretation proceeds without it.
	msgs, err := s.agents.ListMessages(ctx, job.ThreadID)
	if err != nil {
		log.Debug().Err(err).Msg("message fetch failed")
		msgs = nil
	}
	out.Messages = msgs

	switch run.Status {
	case adapter.RunStatusCompleted:
		if text := primaryAssistantText(msgs); text != "" {
			if err := s.jobs.UpdateJobResult(ctx, job.ID, text); err != nil {
				return fail(fmt.Errorf("persist result: %w", err))
			}
		}
		upd := repository.StatusUpdate{
			Status:      model.JobStatusCompleted,
			CurrentStep: repository.Str("Deep research completed"),
		}
		if err := s.jobs.UpdateJobStatus(ctx, job.ID, upd); err != nil {
			return fail(fmt.Errorf("persist completion: %w", err))
		}
		s.extractAndStoreCitations(ctx, job.ID, msgs)
		metrics.IncJobFinalized(string(model.JobStatusCompleted))
		out.Updated = true
		return finish("updated")

	case adapter.RunStatusFailed, adapter.RunStatusExpired:
		msg := fmt.Sprintf("run ended with status %s", run.Status)
		if err := s.jobs.UpdateJobError(ctx, job.ID, msg); err != nil {
			return fail(fmt.Errorf("persist failure: %w", err))
		}
		metrics.IncJobFinalized(string(model.JobStatusFailed))
		out.Updated = true
		return finish("updated")

	case adapter.RunStatusQueued, adapter.RunStatusInProgress, adapter.RunStatusRequiresAction:
		upd := repository.StatusUpdate{
			Status:      model.JobStatusInProgress,
			CurrentStep: repository.Str(fmt.Sprintf("Deep research running... (status: %s)", run.Status)),
		}
		if err := s.jobs.UpdateJobStatus(ctx, job.ID, upd); err != nil {
			return fail(fmt.Errorf("persist progress: %w", err))
		}
		if run.Status == adapter.RunStatusRequiresAction {
			if err := s.jobs.AddJobStep(ctx, job.ID, model.StepRequiresAction, "run is waiting for an external action"); err != nil {
				log.Warn().Err(err).Msg("could not record requires_action step")
			}
		}
		out.Updated = true
		return finish("updated")
	}

	log.Warn().Str("run_status", string(run.Status)).Msg("unrecognized run status")
	return finish("noop")
}

// primaryAssistantText selects the first assistant message (the provider
// returns messages most-recent-first) and concatenates its text-bearing
// content parts in order.
func primaryAssistantText(msgs []adapter.Message) string {
	for _, m := range msgs {
		if m.Role != "assistant" {
			continue
		}
		if m.Content.Parts == nil {
			return m.Content.Text
		}
		var parts []string
		for _, p := range m.Content.Parts {
			if p.Text != nil && p.Text.Value != "" {
				parts = append(parts, p.Text.Value)
			}
		}
		return strings.TrimSpace(strings.Join(parts, "\n"))
	}
	return ""
}
