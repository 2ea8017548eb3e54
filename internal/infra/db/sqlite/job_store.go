package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"deep-research-service/internal/domain"
	"deep-research-service/internal/domain/model"
	"deep-research-service/internal/domain/ports/repository"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var _ repository.ResearchJobRepository = (*JobStore)(nil)

// JobStore is the embedded file-backed job storage backend. Timestamps are
// stored as ISO-8601 text with an explicit UTC designator; values written by
// older deployments may lack the designator and are normalized on read.
type JobStore struct {
	db *sql.DB
}

// NewJobStore opens (and creates if needed) the database file at path.
func NewJobStore(path string) (*JobStore, error) {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	s := &JobStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return s, nil
}

func (s *JobStore) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS research_jobs (
	id TEXT PRIMARY KEY,
	user_id TEXT DEFAULT 'anonymous',
	query TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TEXT,
	completed_at TEXT,
	current_step TEXT,
	result TEXT,
	error_message TEXT,
	thread_id TEXT,
	run_id TEXT,
	agent_id TEXT
);
CREATE TABLE IF NOT EXISTS job_steps (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id TEXT,
	step_name TEXT,
	step_details TEXT,
	timestamp TEXT
);
CREATE INDEX IF NOT EXISTS idx_jobs_user_created ON research_jobs (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_steps_job ON job_steps (job_id);
`
	_, err := s.db.Exec(schema)
	return err
}

func (s *JobStore) CreateJob(ctx context.Context, query, userID string) (string, error) {
	if userID == "" {
		userID = model.AnonymousUserID
	}
	jobID := uuid.NewString()
	createdAt := model.FormatTimestamp(model.UTCNow())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO research_jobs (id, user_id, query, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		jobID, userID, query, string(model.JobStatusCreated), createdAt)
	if err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}
	return jobID, nil
}

func (s *JobStore) GetJob(ctx context.Context, jobID string) (*model.ResearchJob, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, user_id, query, status, created_at, completed_at, current_step,
       result, error_message, thread_id, run_id, agent_id
FROM research_jobs WHERE id = ?`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return job, err
}

func (s *JobStore) GetJobs(ctx context.Context, filter repository.JobFilter) ([]*model.ResearchJob, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	q := `
SELECT id, user_id, query, status, created_at, completed_at, current_step,
       result, error_message, thread_id, run_id, agent_id
FROM research_jobs`
	var args []any
	var cond []string
	if filter.UserID != "" {
		cond = append(cond, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		cond = append(cond, "status = ?")
		args = append(args, string(filter.Status))
	}
	for i, c := range cond {
		if i == 0 {
			q += " WHERE " + c
		} else {
			q += " AND " + c
		}
	}
	q += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var out []*model.ResearchJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// UpdateJobStatus merges the partial update inside one transaction so a nil
// handle never clobbers a handle attached by an earlier writer.
func (s *JobStore) UpdateJobStatus(ctx context.Context, jobID string, upd repository.StatusUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var prevStep, prevThread, prevRun, prevAgent sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT current_step, thread_id, run_id, agent_id FROM research_jobs WHERE id = ?`, jobID).
		Scan(&prevStep, &prevThread, &prevRun, &prevAgent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read job for update: %w", err)
	}

	step := coalesce(upd.CurrentStep, prevStep)
	thread := coalesce(upd.ThreadID, prevThread)
	run := coalesce(upd.RunID, prevRun)
	agent := coalesce(upd.AgentID, prevAgent)

	if upd.Status.Terminal() {
		completedAt := model.FormatTimestamp(model.UTCNow())
		_, err = tx.ExecContext(ctx, `
UPDATE research_jobs SET status=?, current_step=?, completed_at=?, thread_id=?, run_id=?, agent_id=?
WHERE id = ?`, string(upd.Status), step, completedAt, thread, run, agent, jobID)
	} else {
		_, err = tx.ExecContext(ctx, `
UPDATE research_jobs SET status=?, current_step=?, thread_id=?, run_id=?, agent_id=?
WHERE id = ?`, string(upd.Status), step, thread, run, agent, jobID)
	}
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return tx.Commit()
}

func (s *JobStore) UpdateJobResult(ctx context.Context, jobID, result string) error {
	completedAt := model.FormatTimestamp(model.UTCNow())
	_, err := s.db.ExecContext(ctx,
		`UPDATE research_jobs SET result=?, status='completed', completed_at=? WHERE id=?`,
		result, completedAt, jobID)
	if err != nil {
		return fmt.Errorf("update job result: %w", err)
	}
	return nil
}

func (s *JobStore) UpdateJobError(ctx context.Context, jobID, errorMessage string) error {
	completedAt := model.FormatTimestamp(model.UTCNow())
	_, err := s.db.ExecContext(ctx,
		`UPDATE research_jobs SET error_message=?, status='failed', completed_at=? WHERE id=?`,
		errorMessage, completedAt, jobID)
	if err != nil {
		return fmt.Errorf("update job error: %w", err)
	}
	return nil
}

func (s *JobStore) AddJobStep(ctx context.Context, jobID, stepName, stepDetails string) error {
	ts := model.FormatTimestamp(model.UTCNow())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_steps (job_id, step_name, step_details, timestamp) VALUES (?, ?, ?, ?)`,
		jobID, stepName, stepDetails, ts)
	if err != nil {
		return fmt.Errorf("insert job step: %w", err)
	}
	return nil
}

func (s *JobStore) GetJobSteps(ctx context.Context, jobID string) ([]*model.JobStep, error) {
	// Second-precision timestamps collide often; id breaks ties in insertion order.
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, step_name, step_details, timestamp FROM job_steps
WHERE job_id = ? ORDER BY timestamp ASC, id ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query job steps: %w", err)
	}
	defer rows.Close()

	steps := []*model.JobStep{}
	for rows.Next() {
		var step model.JobStep
		var id int64
		var details, ts sql.NullString
		if err := rows.Scan(&id, &step.JobID, &step.StepName, &details, &ts); err != nil {
			return nil, fmt.Errorf("scan job step: %w", err)
		}
		step.ID = fmt.Sprintf("%d", id)
		step.StepDetails = details.String
		step.Timestamp = model.ParseTimestamp(ts.String)
		steps = append(steps, &step)
	}
	return steps, rows.Err()
}

func (s *JobStore) DeleteJob(ctx context.Context, jobID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM job_steps WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("delete job steps: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM research_jobs WHERE id = ?`, jobID); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return tx.Commit()
}

func (s *JobStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.ResearchJob, error) {
	var job model.ResearchJob
	var status string
	var createdAt, completedAt, currentStep, result, errMsg, threadID, runID, agentID sql.NullString
	err := row.Scan(&job.ID, &job.UserID, &job.Query, &status, &createdAt, &completedAt,
		&currentStep, &result, &errMsg, &threadID, &runID, &agentID)
	if err != nil {
		return nil, err
	}
	job.Status = model.JobStatus(status)
	job.CreatedAt = model.ParseTimestamp(createdAt.String)
	job.CompletedAt = model.ParseTimestamp(completedAt.String)
	job.CurrentStep = currentStep.String
	job.Result = result.String
	job.ErrorMessage = errMsg.String
	job.ThreadID = threadID.String
	job.RunID = runID.String
	job.AgentID = agentID.String
	return &job, nil
}

func coalesce(next *string, prev sql.NullString) any {
	if next != nil {
		return *next
	}
	if prev.Valid {
		return prev.String
	}
	return nil
}
