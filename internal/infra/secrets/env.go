package secrets

import (
	"context"
	"fmt"
	"os"
)

type envStore struct{}

// NewEnvStore returns a Store backed by the process environment.
func NewEnvStore() Store { return &envStore{} }

func (*envStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := os.LookupEnv(key); ok {
		return v, nil
	}
	return "", fmt.Errorf("environment variable not set: %s", key)
}
