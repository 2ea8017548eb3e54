package agent

import (
	"context"
	"errors"

	"deep-research-service/internal/domain/ports/adapter"
)

var _ adapter.AgentServiceAdapter = (*NoopAdapter)(nil)

// ErrNotConfigured is returned by every NoopAdapter operation.
var ErrNotConfigured = errors.New("agent service not configured")

// NoopAdapter stands in when no provider endpoint is configured, e.g. local
// development. Job creation still works; delegation fails and finalizes the
// job as failed, which is the documented single-attempt behavior.
type NoopAdapter struct{}

func NewNoopAdapter() *NoopAdapter { return &NoopAdapter{} }

func (NoopAdapter) ResolveConnectionID(context.Context, string) (string, error) {
	return "", ErrNotConfigured
}

func (NoopAdapter) CreateAgent(context.Context, adapter.AgentSpec) (*adapter.Agent, error) {
	return nil, ErrNotConfigured
}

func (NoopAdapter) CreateThread(context.Context) (*adapter.Thread, error) {
	return nil, ErrNotConfigured
}

func (NoopAdapter) CreateMessage(context.Context, string, string, string) error {
	return ErrNotConfigured
}

func (NoopAdapter) CreateRun(context.Context, string, string) (*adapter.Run, error) {
	return nil, ErrNotConfigured
}

func (NoopAdapter) GetRun(context.Context, string, string) (*adapter.Run, error) {
	return nil, ErrNotConfigured
}

func (NoopAdapter) ListMessages(context.Context, string) ([]adapter.Message, error) {
	return nil, ErrNotConfigured
}
