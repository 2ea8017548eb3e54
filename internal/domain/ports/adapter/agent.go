package adapter

import (
	"context"
	"encoding/json"
)

// RunStatus values reported by the external agent service.
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusFailed         RunStatus = "failed"
	RunStatusExpired        RunStatus = "expired"
)

// Terminal reports whether the run can no longer change state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusExpired
}

type Agent struct {
	ID string `json:"id"`
}

type Thread struct {
	ID string `json:"id"`
}

type Run struct {
	ID       string    `json:"id"`
	ThreadID string    `json:"thread_id"`
	Status   RunStatus `json:"status"`
	AgentID  string    `json:"assistant_id"`
}

// Message is one entry in a thread. Annotations may appear at the top level
// or nested inside text content parts depending on the provider's payload
// version; both are decoded.
type Message struct {
	ID          string         `json:"id"`
	Role        string         `json:"role"`
	CreatedAt   int64          `json:"created_at"`
	Content     MessageContent `json:"content"`
	Annotations []Annotation   `json:"annotations,omitempty"`
}

// MessageContent is either plain text or an ordered list of typed parts.
// The provider serializes both shapes under the same field.
type MessageContent struct {
	Text  string
	Parts []ContentPart
}

func (c *MessageContent) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		c.Text = s
		c.Parts = nil
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(b, &parts); err == nil {
		c.Text = ""
		c.Parts = parts
		return nil
	}
	// Unrecognized content shape: skip rather than fail the whole message.
	*c = MessageContent{}
	return nil
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

type ContentPart struct {
	Type string       `json:"type"`
	Text *TextContent `json:"text,omitempty"`
}

type TextContent struct {
	Value       string       `json:"value"`
	Annotations []Annotation `json:"annotations,omitempty"`
}

// Annotation kinds carried in message content.
const (
	AnnotationURLCitation  = "url_citation"
	AnnotationFileCitation = "file_citation"
)

// Annotation is a tagged union of the citation kinds this service understands.
// Unknown kinds decode with both citation pointers nil and are skipped.
type Annotation struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	URLCitation  *URLCitation  `json:"url_citation,omitempty"`
	FileCitation *FileCitation `json:"file_citation,omitempty"`
}

type URLCitation struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// UnmarshalJSON tolerates the provider's habit of string-encoding the nested
// citation object. A failed inner decode yields an empty record, never an error.
func (u *URLCitation) UnmarshalJSON(b []byte) error {
	type plain URLCitation
	var p plain
	if err := json.Unmarshal(b, &p); err == nil {
		*u = URLCitation(p)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		var inner plain
		if err := json.Unmarshal([]byte(s), &inner); err == nil {
			*u = URLCitation(inner)
			return nil
		}
	}
	*u = URLCitation{}
	return nil
}

type FileCitation struct {
	FileID string `json:"file_id"`
	Quote  string `json:"quote"`
}

func (f *FileCitation) UnmarshalJSON(b []byte) error {
	type plain FileCitation
	var p plain
	if err := json.Unmarshal(b, &p); err == nil {
		*f = FileCitation(p)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		var inner plain
		if err := json.Unmarshal([]byte(s), &inner); err == nil {
			*f = FileCitation(inner)
			return nil
		}
	}
	*f = FileCitation{}
	return nil
}

// AgentSpec describes the research agent to create for a single job.
type AgentSpec struct {
	Model             string
	Name              string
	Instructions      string
	DeepResearchModel string
	BingConnectionID  string
}

// AgentServiceAdapter is the port for the external long-running-operation
// provider. Implementations own all transport concerns including timeouts.
type AgentServiceAdapter interface {
	ResolveConnectionID(ctx context.Context, resourceName string) (string, error)
	CreateAgent(ctx context.Context, spec AgentSpec) (*Agent, error)
	CreateThread(ctx context.Context) (*Thread, error)
	CreateMessage(ctx context.Context, threadID, role, content string) error
	CreateRun(ctx context.Context, threadID, agentID string) (*Run, error)
	GetRun(ctx context.Context, threadID, runID string) (*Run, error)
	// ListMessages returns the thread's messages most-recent-first.
	ListMessages(ctx context.Context, threadID string) ([]Message, error)
}
