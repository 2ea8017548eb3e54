package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"deep-research-service/internal/domain"
	"deep-research-service/internal/infra/db"
	"deep-research-service/internal/infra/logging"
	"deep-research-service/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server exposes the research job API. The lifecycle core lives in the use
// cases; this layer only resolves the caller identity, routes, and shapes
// JSON responses.
type Server struct {
	research       usecase.ResearchUseCase
	storage        db.Report
	apiKey         string
	allowAnonymous bool
	log            *zerolog.Logger
}

func NewServer(
	research usecase.ResearchUseCase,
	storage db.Report,
	apiKey string,
	allowAnonymous bool,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		research:       research,
		storage:        storage,
		apiKey:         apiKey,
		allowAnonymous: allowAnonymous,
		log:            logger,
	}
}

// Router builds the chi router with both the canonical lowercase routes and
// the legacy function-style aliases the original frontend expects.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(traceMiddleware)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/healthz/storage", s.handleStorageHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.principalMiddleware)

		r.Post("/api/research/start", s.handleStart)
		r.Get("/api/research/status/{jobID}", s.handleCheckStatus)
		r.Get("/api/research/result/{jobID}", s.handleGetResult)
		r.Get("/api/research/jobs", s.handleListJobs)
		r.Delete("/api/research/delete/{jobID}", s.handleDelete)

		// Legacy aliases
		r.Post("/api/StartResearch", s.handleStart)
		r.Get("/api/CheckStatus/{jobID}", s.handleCheckStatus)
		r.Get("/api/CheckStatus", s.handleCheckStatusQuery)
		r.Get("/api/GetResult/{jobID}", s.handleGetResult)
		r.Get("/api/ListJobs", s.handleListJobs)
		r.Delete("/api/DeleteJob/{jobID}", s.handleDelete)
	})
	return r
}

// traceMiddleware carries the request id into the logging context so every
// log line emitted while serving the request correlates to it.
func traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			r = r.WithContext(logging.WithTraceID(r.Context(), reqID))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStorageHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	var warning string
	if s.storage.Fallback() {
		status = "fallback"
		warning = "requested backend unavailable; running degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"backend":   s.storage.Selected,
		"requested": s.storage.Requested,
		"warning":   warning,
		"debug":     s.storage,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps the error taxonomy to HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "Job not found")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
