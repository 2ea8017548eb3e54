package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"deep-research-service/internal/config"
	"deep-research-service/internal/domain"
	"deep-research-service/internal/domain/model"
	"deep-research-service/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var _ repository.ResearchJobRepository = (*JobStore)(nil)

// JobStore is the networked document-store backend. Each job is a JSON
// document under one key; creation-time sorted sets index the documents for
// newest-first listing. Partial updates use optimistic WATCH-based
// read-modify-write, retried on write conflicts.
type JobStore struct {
	cli *redis.Client
}

const txRetries = 5

// NewJobStore connects and pings the server; callers treat any error as a
// signal to fall back to the next backend in the chain.
func NewJobStore(ctx context.Context, cfg config.RedisConfig) (*JobStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr not configured")
	}
	cli := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		cli.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &JobStore{cli: cli}, nil
}

// jobDoc is the persisted document shape; field names are stable across
// storage backends.
type jobDoc struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	Query        string `json:"query"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at,omitempty"`
	CompletedAt  string `json:"completed_at,omitempty"`
	CurrentStep  string `json:"current_step,omitempty"`
	Result       string `json:"result,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	ThreadID     string `json:"thread_id,omitempty"`
	RunID        string `json:"run_id,omitempty"`
	AgentID      string `json:"agent_id,omitempty"`
}

type stepDoc struct {
	ID          string `json:"id"`
	JobID       string `json:"job_id"`
	StepName    string `json:"step_name"`
	StepDetails string `json:"step_details,omitempty"`
	Timestamp   string `json:"timestamp"`
}

func jobKey(id string) string     { return "research:job:" + id }
func stepsKey(id string) string   { return "research:job:" + id + ":steps" }
func userIdxKey(uid string) string { return "research:jobs:user:" + uid }

const allIdxKey = "research:jobs:created"

func (s *JobStore) CreateJob(ctx context.Context, query, userID string) (string, error) {
	if userID == "" {
		userID = model.AnonymousUserID
	}
	now := model.UTCNow()
	doc := jobDoc{
		ID:        uuid.NewString(),
		UserID:    userID,
		Query:     query,
		Status:    string(model.JobStatusCreated),
		CreatedAt: model.FormatTimestamp(now),
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal job doc: %w", err)
	}
	score := float64(now.Unix())
	_, err = s.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, jobKey(doc.ID), raw, 0)
		pipe.ZAdd(ctx, allIdxKey, &redis.Z{Score: score, Member: doc.ID})
		pipe.ZAdd(ctx, userIdxKey(userID), &redis.Z{Score: score, Member: doc.ID})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("store job doc: %w", err)
	}
	return doc.ID, nil
}

func (s *JobStore) GetJob(ctx context.Context, jobID string) (*model.ResearchJob, error) {
	raw, err := s.cli.Get(ctx, jobKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read job doc: %w", err)
	}
	var doc jobDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode job doc: %w", err)
	}
	return docToModel(&doc), nil
}

func (s *JobStore) GetJobs(ctx context.Context, filter repository.JobFilter) ([]*model.ResearchJob, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	idx := allIdxKey
	if filter.UserID != "" {
		idx = userIdxKey(filter.UserID)
	}
	ids, err := s.cli.ZRevRange(ctx, idx, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read job index: %w", err)
	}
	out := make([]*model.ResearchJob, 0, limit)
	for _, id := range ids {
		if len(out) >= limit {
			break
		}
		raw, err := s.cli.Get(ctx, jobKey(id)).Result()
		if errors.Is(err, redis.Nil) {
			continue // index entry survived a racing delete
		}
		if err != nil {
			return nil, fmt.Errorf("read job doc: %w", err)
		}
		var doc jobDoc
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			continue
		}
		if filter.Status != "" && doc.Status != string(filter.Status) {
			continue
		}
		out = append(out, docToModel(&doc))
	}
	return out, nil
}

// mutateDoc applies fn to the stored document under optimistic concurrency.
// A missing document is a silent no-op, matching the storage contract.
func (s *JobStore) mutateDoc(ctx context.Context, jobID string, fn func(*jobDoc)) error {
	key := jobKey(jobID)
	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var doc jobDoc
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return fmt.Errorf("decode job doc: %w", err)
		}
		fn(&doc)
		updated, err := json.Marshal(&doc)
		if err != nil {
			return fmt.Errorf("marshal job doc: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		return err
	}
	var err error
	for i := 0; i < txRetries; i++ {
		err = s.cli.Watch(ctx, txn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("job doc update conflicted %d times: %w", txRetries, err)
}

func (s *JobStore) UpdateJobStatus(ctx context.Context, jobID string, upd repository.StatusUpdate) error {
	return s.mutateDoc(ctx, jobID, func(doc *jobDoc) {
		doc.Status = string(upd.Status)
		if upd.CurrentStep != nil {
			doc.CurrentStep = *upd.CurrentStep
		}
		if upd.ThreadID != nil {
			doc.ThreadID = *upd.ThreadID
		}
		if upd.RunID != nil {
			doc.RunID = *upd.RunID
		}
		if upd.AgentID != nil {
			doc.AgentID = *upd.AgentID
		}
		if upd.Status.Terminal() {
			doc.CompletedAt = model.FormatTimestamp(model.UTCNow())
		}
	})
}

func (s *JobStore) UpdateJobResult(ctx context.Context, jobID, result string) error {
	return s.mutateDoc(ctx, jobID, func(doc *jobDoc) {
		doc.Result = result
		doc.Status = string(model.JobStatusCompleted)
		doc.CompletedAt = model.FormatTimestamp(model.UTCNow())
	})
}

func (s *JobStore) UpdateJobError(ctx context.Context, jobID, errorMessage string) error {
	return s.mutateDoc(ctx, jobID, func(doc *jobDoc) {
		doc.ErrorMessage = errorMessage
		doc.Status = string(model.JobStatusFailed)
		doc.CompletedAt = model.FormatTimestamp(model.UTCNow())
	})
}

func (s *JobStore) AddJobStep(ctx context.Context, jobID, stepName, stepDetails string) error {
	doc := stepDoc{
		ID:          uuid.NewString(),
		JobID:       jobID,
		StepName:    stepName,
		StepDetails: stepDetails,
		Timestamp:   model.FormatTimestamp(model.UTCNow()),
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal step doc: %w", err)
	}
	// List order is insertion order, which also sorts second-precision
	// timestamps with the contract's tie-break.
	if err := s.cli.RPush(ctx, stepsKey(jobID), raw).Err(); err != nil {
		return fmt.Errorf("append job step: %w", err)
	}
	return nil
}

func (s *JobStore) GetJobSteps(ctx context.Context, jobID string) ([]*model.JobStep, error) {
	raws, err := s.cli.LRange(ctx, stepsKey(jobID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read job steps: %w", err)
	}
	steps := make([]*model.JobStep, 0, len(raws))
	for _, raw := range raws {
		var doc stepDoc
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			continue
		}
		steps = append(steps, &model.JobStep{
			ID:          doc.ID,
			JobID:       doc.JobID,
			StepName:    doc.StepName,
			StepDetails: doc.StepDetails,
			Timestamp:   model.ParseTimestamp(doc.Timestamp),
		})
	}
	return steps, nil
}

func (s *JobStore) DeleteJob(ctx context.Context, jobID string) error {
	job, err := s.GetJob(ctx, jobID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, jobKey(jobID), stepsKey(jobID))
		pipe.ZRem(ctx, allIdxKey, jobID)
		pipe.ZRem(ctx, userIdxKey(job.UserID), jobID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete job docs: %w", err)
	}
	return nil
}

func (s *JobStore) Close() error { return s.cli.Close() }

func docToModel(doc *jobDoc) *model.ResearchJob {
	return &model.ResearchJob{
		ID:           doc.ID,
		UserID:       doc.UserID,
		Query:        doc.Query,
		Status:       model.JobStatus(doc.Status),
		CreatedAt:    model.ParseTimestamp(doc.CreatedAt),
		CompletedAt:  model.ParseTimestamp(doc.CompletedAt),
		CurrentStep:  doc.CurrentStep,
		Result:       doc.Result,
		ErrorMessage: doc.ErrorMessage,
		ThreadID:     doc.ThreadID,
		RunID:        doc.RunID,
		AgentID:      doc.AgentID,
	}
}
