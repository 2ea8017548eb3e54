package db

import (
	"context"
	"fmt"

	"deep-research-service/internal/config"
	"deep-research-service/internal/domain/ports/repository"
	"deep-research-service/internal/infra/db/memory"
	"deep-research-service/internal/infra/db/redisstore"
	"deep-research-service/internal/infra/db/sqlite"
	"deep-research-service/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Report records the selection decision for the storage diagnostics endpoint.
type Report struct {
	Requested string   `json:"provider_requested"`
	Selected  string   `json:"backend"`
	Errors    []string `json:"errors,omitempty"`
}

// Fallback reports whether a backend other than the requested one is serving.
func (r Report) Fallback() bool { return r.Requested != r.Selected }

// Factory constructs one candidate backend.
type Factory struct {
	Name string
	New  func(ctx context.Context) (repository.ResearchJobRepository, error)
}

// Select resolves the job storage backend: the configured provider first,
// then the embedded sqlite backend, then the volatile memory backend. The
// API layer must never crash because storage is unavailable, so Select
// cannot fail; the worst case is memory-only degraded service.
func Select(ctx context.Context, cfg config.StorageConfig, log *zerolog.Logger) (repository.ResearchJobRepository, Report) {
	redisFactory := Factory{Name: "redis", New: func(ctx context.Context) (repository.ResearchJobRepository, error) {
		return redisstore.NewJobStore(ctx, cfg.Redis)
	}}
	sqliteFactory := Factory{Name: "sqlite", New: func(ctx context.Context) (repository.ResearchJobRepository, error) {
		return sqlite.NewJobStore(cfg.SQLitePath)
	}}

	var chain []Factory
	switch cfg.Provider {
	case "redis":
		chain = []Factory{redisFactory, sqliteFactory}
	case "sqlite":
		chain = []Factory{sqliteFactory}
	default:
		chain = []Factory{{Name: cfg.Provider, New: func(context.Context) (repository.ResearchJobRepository, error) {
			return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
		}}, sqliteFactory}
	}

	store, report := selectFrom(ctx, cfg.Provider, chain)
	if report.Fallback() {
		log.Warn().
			Str("requested", report.Requested).
			Str("selected", report.Selected).
			Strs("errors", report.Errors).
			Msg("job storage fell back to a degraded backend")
	} else {
		log.Info().Str("backend", report.Selected).Msg("job storage backend selected")
	}
	metrics.RecordStorageSelection(report.Requested, report.Selected)
	return store, report
}

func selectFrom(ctx context.Context, requested string, chain []Factory) (repository.ResearchJobRepository, Report) {
	report := Report{Requested: requested}
	for _, f := range chain {
		store, err := f.New(ctx)
		if err == nil {
			report.Selected = f.Name
			return store, report
		}
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", f.Name, err))
	}
	report.Selected = "memory"
	return memory.NewJobStore(), report
}
