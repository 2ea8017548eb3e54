package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"deep-research-service/internal/domain"
	"deep-research-service/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

type startRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	principal := principalFrom(r.Context())

	res, err := s.research.Start(r.Context(), req.Query, principal.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrDelegationFailed) && res != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"job_id": res.JobID,
				"status": string(model.JobStatusFailed),
				"error":  err.Error(),
			})
			return
		}
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":     res.JobID,
		"status":     string(res.Status),
		"message":    res.Message,
		"created_at": model.FormatTimestamp(res.CreatedAt),
	})
}

func (s *Server) handleCheckStatus(w http.ResponseWriter, r *http.Request) {
	s.checkStatus(w, r, chi.URLParam(r, "jobID"))
}

func (s *Server) handleCheckStatusQuery(w http.ResponseWriter, r *http.Request) {
	s.checkStatus(w, r, r.URL.Query().Get("job_id"))
}

func (s *Server) checkStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	principal := principalFrom(r.Context())
	report, err := s.research.CheckStatus(r.Context(), jobID, principal.UserID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	job := report.Job
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":        job.ID,
		"status":        string(job.Status),
		"query":         job.Query,
		"current_step":  job.CurrentStep,
		"created_at":    model.FormatTimestamp(job.CreatedAt),
		"completed_at":  model.FormatTimestamp(job.CompletedAt),
		"steps":         stepsJSON(report.Steps),
		"has_result":    job.Result != "",
		"has_error":     job.ErrorMessage != "",
		"error_message": job.ErrorMessage,
		"thread_id":     job.ThreadID,
		"run_id":        job.RunID,
		"messages":      report.Messages,
	})
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	principal := principalFrom(r.Context())
	report, err := s.research.GetResult(r.Context(), jobID, principal.UserID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	job := report.Job
	body := map[string]any{
		"job_id":       job.ID,
		"status":       string(job.Status),
		"query":        job.Query,
		"created_at":   model.FormatTimestamp(job.CreatedAt),
		"completed_at": model.FormatTimestamp(job.CompletedAt),
		"steps":        stepsJSON(report.Steps),
		"citations":    report.Citations,
	}
	switch job.Status {
	case model.JobStatusCompleted:
		body["result"] = job.Result
		body["success"] = true
	case model.JobStatusFailed:
		body["error"] = job.ErrorMessage
		body["success"] = false
	default:
		body["current_step"] = job.CurrentStep
		body["success"] = false
		body["message"] = fmt.Sprintf("Job is still %s", job.Status)
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	principal := principalFrom(r.Context())
	q := r.URL.Query()

	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	// Without an explicit user_id filter the caller sees their own jobs.
	targetUser := q.Get("user_id")
	if targetUser == "" {
		targetUser = principal.UserID
	}
	status := model.JobStatus(q.Get("status"))

	listing, err := s.research.List(r.Context(), targetUser, status, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	jobs := make([]map[string]any, 0, len(listing.Jobs))
	for _, job := range listing.Jobs {
		jobs = append(jobs, jobJSON(job))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"stats": listing.Stats,
		"filters": map[string]any{
			"user_id": targetUser,
			"status":  string(status),
			"limit":   limit,
		},
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	principal := principalFrom(r.Context())
	if err := s.research.Delete(r.Context(), jobID, principal.UserID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Job %s deleted", jobID),
	})
}

func jobJSON(job *model.ResearchJob) map[string]any {
	created := model.FormatTimestamp(job.CreatedAt)
	return map[string]any{
		"id":            job.ID,
		"user_id":       job.UserID,
		"query":         job.Query,
		"status":        string(job.Status),
		"created_at":    created,
		"start_time":    model.EnsureZ(created),
		"completed_at":  model.FormatTimestamp(job.CompletedAt),
		"current_step":  job.CurrentStep,
		"result":        job.Result,
		"error_message": job.ErrorMessage,
		"thread_id":     job.ThreadID,
		"run_id":        job.RunID,
		"agent_id":      job.AgentID,
	}
}

func stepsJSON(steps []*model.JobStep) []map[string]any {
	out := make([]map[string]any, 0, len(steps))
	for _, step := range steps {
		out = append(out, map[string]any{
			"id":           step.ID,
			"job_id":       step.JobID,
			"step_name":    step.StepName,
			"step_details": step.StepDetails,
			"timestamp":    model.FormatTimestamp(step.Timestamp),
		})
	}
	return out
}
