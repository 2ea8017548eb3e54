package sched

import (
	"context"
	"time"

	"deep-research-service/internal/domain/model"
	"deep-research-service/internal/domain/ports/repository"
	"deep-research-service/internal/usecase"

	"github.com/rs/zerolog"
)

// ReconcileWorker periodically converges delegated jobs that nobody is
// polling over HTTP, so runs that finished while the caller was away still
// get their result and citations persisted.
type ReconcileWorker struct {
	interval time.Duration
	batch    int
	jobs     repository.ResearchJobRepository
	status   usecase.StatusUseCase
	log      *zerolog.Logger
}

func NewReconcileWorker(interval time.Duration, batch int, jobs repository.ResearchJobRepository, status usecase.StatusUseCase, logger *zerolog.Logger) *ReconcileWorker {
	wlog := logger.With().Str("component", "ReconcileWorker").Logger()
	if batch <= 0 {
		batch = 50
	}
	return &ReconcileWorker{
		interval: interval,
		batch:    batch,
		jobs:     jobs,
		status:   status,
		log:      &wlog,
	}
}

func (w *ReconcileWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting reconcile worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping reconcile worker")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.sweep(ctx)
			if err != nil {
				w.log.Error().Err(err).Msg("reconcile sweep error")
			}
			if n > 0 {
				w.log.Info().Int("count", n).Msg("jobs reconciled in background")
			}
		}
	}
}

// sweep reconciles one batch of in-flight jobs and reports how many changed.
func (w *ReconcileWorker) sweep(ctx context.Context) (int, error) {
	jobs, err := w.jobs.GetJobs(ctx, repository.JobFilter{
		Status: model.JobStatusInProgress,
		Limit:  w.batch,
	})
	if err != nil {
		return 0, err
	}
	updated := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			return updated, ctx.Err()
		}
		if out := w.status.Reconcile(ctx, job); out.Updated {
			updated++
		}
	}
	return updated, nil
}
