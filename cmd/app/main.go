// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"deep-research-service/internal/config"
	"deep-research-service/internal/domain/ports/adapter"
	agentAdapters "deep-research-service/internal/infra/adapters/agent"
	"deep-research-service/internal/infra/db"
	"deep-research-service/internal/infra/logging"
	"deep-research-service/internal/infra/metrics"
	"deep-research-service/internal/infra/sched"
	"deep-research-service/internal/infra/secrets"
	"deep-research-service/internal/infra/web"
	"deep-research-service/internal/usecase"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, relaxed auth)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Secrets / env lookup chain ----
	var stores []secrets.Store
	secretStore, err := secrets.NewStore(secrets.Config{
		Provider: cfg.Secrets.Provider,
		Vault:    cfg.Secrets.Vault,
	})
	if err != nil {
		log.Printf("secret store unavailable (%v); using environment only", err)
	} else {
		stores = append(stores, secretStore)
	}
	if cfg.Secrets.Provider != "env" {
		stores = append(stores, secrets.NewEnvStore())
	}
	lookup := secrets.NewLookup(stores...)
	cfg.Overlay(ctx, lookup)

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("developer mode enabled")
	}
	metrics.MustRegister()

	// ---- Job storage (never fatal: the selector degrades instead) ----
	store, report := db.Select(ctx, cfg.Storage, logger)
	defer store.Close()

	// ---- Agent service adapter ----
	var agents adapter.AgentServiceAdapter
	if cfg.Agent.ProjectEndpoint != "" {
		agents, err = agentAdapters.NewRESTAdapter(cfg.Agent)
		if err != nil {
			log.Fatalf("agent adapter: %v", err)
		}
		logger.Info().Str("endpoint", cfg.Agent.ProjectEndpoint).Msg("agent service configured")
	} else {
		agents = agentAdapters.NewNoopAdapter()
		logger.Warn().Msg("agent endpoint not configured; research delegation will fail jobs")
	}

	// ---- Use cases ----
	statusUC := usecase.NewStatusUseCase(store, agents, logger)
	researchUC := usecase.NewResearchUseCase(store, agents, statusUC, cfg.Agent, logger)

	// ---- Background reconciliation sweep ----
	if cfg.ReconcileEnabled() {
		worker := sched.NewReconcileWorker(cfg.Reconcile.Interval, cfg.Reconcile.Batch, store, statusUC, logger)
		go func() {
			if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("reconcile worker stopped")
			}
		}()
	}

	// ---- HTTP server ----
	server := web.NewServer(researchUC, report, cfg.Auth.APIKey, cfg.AllowAnonymous(), logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
