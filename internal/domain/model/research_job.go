package model

import (
	"strings"
	"time"
)

type JobStatus string

const (
	JobStatusCreated    JobStatus = "created"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed out of s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// AnonymousUserID is the owner sentinel for jobs created without a resolved principal.
const AnonymousUserID = "anonymous"

// ResearchJob tracks one delegated research request from creation to terminal state.
// ThreadID, RunID and AgentID are opaque handles into the external agent service;
// once set they are never overwritten by a partial update.
type ResearchJob struct {
	ID           string
	UserID       string
	Query        string
	Status       JobStatus
	CreatedAt    time.Time
	CompletedAt  time.Time // zero until the job reaches a terminal status
	CurrentStep  string
	Result       string
	ErrorMessage string
	ThreadID     string
	RunID        string
	AgentID      string
}

// Delegated reports whether the job carries the handles required to poll
// the external run.
func (j *ResearchJob) Delegated() bool {
	return j.ThreadID != "" && j.RunID != ""
}

// JobStep is one append-only event in a job's timeline.
type JobStep struct {
	ID          string
	JobID       string
	StepName    string
	StepDetails string
	Timestamp   time.Time
}

// Well-known step tags.
const (
	StepAgentInit      = "agent_init"
	StepRunCreated     = "run_created"
	StepCitation       = "citation"
	StepError          = "error"
	StepRequiresAction = "requires_action"
)

// UTCNow returns the current time in UTC truncated to second precision,
// matching how job timestamps are persisted.
func UTCNow() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

const timestampLayout = "2006-01-02T15:04:05Z07:00"

// FormatTimestamp serializes t as ISO-8601 with an explicit UTC designator.
// Zero times serialize as the empty string.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Truncate(time.Second).Format(timestampLayout)
}

// ParseTimestamp reads a stored timestamp. Naive values written by older
// deployments lack the UTC designator; they are normalized by appending one
// rather than being reformatted.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if !strings.HasSuffix(s, "Z") && !hasOffset(s) {
		s += "Z"
	}
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// EnsureZ normalizes a serialized timestamp for output, appending the UTC
// designator when a legacy naive value is encountered.
func EnsureZ(s string) string {
	if s == "" {
		return s
	}
	if strings.HasSuffix(s, "Z") || hasOffset(s) {
		return s
	}
	return s + "Z"
}

func hasOffset(s string) bool {
	// An explicit numeric offset looks like ...T15:04:05+09:00.
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		rest := s[i+1:]
		return strings.ContainsAny(rest, "+") || strings.Count(rest, "-") > 0
	}
	return false
}
