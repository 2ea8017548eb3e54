package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"deep-research-service/internal/config"
	"deep-research-service/internal/domain/ports/adapter"

	"github.com/go-resty/resty/v2"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.AgentServiceAdapter = (*RESTAdapter)(nil)

// RESTAdapter talks to the agent execution service over its REST API.
// Timeout policy for the long-running operations lives here, not in the
// lifecycle core.
type RESTAdapter struct {
	client     *resty.Client
	apiVersion string
}

func NewRESTAdapter(cfg config.AgentConfig) (*RESTAdapter, error) {
	if cfg.ProjectEndpoint == "" {
		return nil, errors.New("agent project endpoint empty")
	}
	client := resty.New().
		SetBaseURL(cfg.ProjectEndpoint).
		SetTimeout(60 * time.Second).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("api-key", cfg.APIKey)
	}
	return &RESTAdapter{client: client, apiVersion: cfg.APIVersion}, nil
}

func (a *RESTAdapter) request(ctx context.Context) *resty.Request {
	return a.client.R().SetContext(ctx).SetQueryParam("api-version", a.apiVersion)
}

func checkResp(resp *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%s: http %d: %s", op, resp.StatusCode(), resp.String())
	}
	return nil
}

func (a *RESTAdapter) ResolveConnectionID(ctx context.Context, resourceName string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	resp, err := a.request(ctx).
		SetResult(&out).
		Get("/connections/" + resourceName)
	if err := checkResp(resp, err, "resolve connection"); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("connection %q has no id", resourceName)
	}
	return out.ID, nil
}

func (a *RESTAdapter) CreateAgent(ctx context.Context, spec adapter.AgentSpec) (*adapter.Agent, error) {
	body := map[string]any{
		"model":        spec.Model,
		"name":         spec.Name,
		"instructions": spec.Instructions,
		"tools": []map[string]any{{
			"type": "deep_research",
			"deep_research": map[string]any{
				"model": spec.DeepResearchModel,
				"bing_grounding_connections": []map[string]string{
					{"connection_id": spec.BingConnectionID},
				},
			},
		}},
	}
	var out adapter.Agent
	resp, err := a.request(ctx).SetBody(body).SetResult(&out).Post("/assistants")
	if err := checkResp(resp, err, "create agent"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *RESTAdapter) CreateThread(ctx context.Context) (*adapter.Thread, error) {
	var out adapter.Thread
	resp, err := a.request(ctx).SetBody(map[string]any{}).SetResult(&out).Post("/threads")
	if err := checkResp(resp, err, "create thread"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *RESTAdapter) CreateMessage(ctx context.Context, threadID, role, content string) error {
	body := map[string]string{"role": role, "content": content}
	resp, err := a.request(ctx).SetBody(body).Post("/threads/" + threadID + "/messages")
	return checkResp(resp, err, "create message")
}

func (a *RESTAdapter) CreateRun(ctx context.Context, threadID, agentID string) (*adapter.Run, error) {
	body := map[string]any{
		"assistant_id": agentID,
		"tool_choice":  map[string]string{"type": "deep_research"},
	}
	var out adapter.Run
	resp, err := a.request(ctx).SetBody(body).SetResult(&out).Post("/threads/" + threadID + "/runs")
	if err := checkResp(resp, err, "create run"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *RESTAdapter) GetRun(ctx context.Context, threadID, runID string) (*adapter.Run, error) {
	var out adapter.Run
	resp, err := a.request(ctx).SetResult(&out).
		Get("/threads/" + threadID + "/runs/" + runID)
	if err := checkResp(resp, err, "get run"); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMessages requests descending order explicitly so the first assistant
// message is always the most recent one.
func (a *RESTAdapter) ListMessages(ctx context.Context, threadID string) ([]adapter.Message, error) {
	var out struct {
		Data []adapter.Message `json:"data"`
	}
	resp, err := a.request(ctx).
		SetQueryParam("order", "desc").
		SetResult(&out).
		Get("/threads/" + threadID + "/messages")
	if err := checkResp(resp, err, "list messages"); err != nil {
		return nil, err
	}
	return out.Data, nil
}
