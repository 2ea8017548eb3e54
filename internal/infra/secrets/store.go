package secrets

import (
	"context"
	"fmt"
)

// Store is one source of configuration secrets.
type Store interface {
	// Get returns the value for key, or an error when the key is absent.
	Get(ctx context.Context, key string) (string, error)
}

// Config selects the secret provider. Provider values: vault | env | memory.
type Config struct {
	Provider string `yaml:"provider"`
	Vault    VaultConfig
}

// NewStore creates the configured Store.
func NewStore(cfg Config) (Store, error) {
	switch cfg.Provider {
	case "", "env":
		return NewEnvStore(), nil
	case "memory":
		return NewMemoryStore(), nil
	case "vault":
		return NewVaultStore(cfg.Vault)
	default:
		return nil, fmt.Errorf("unsupported secret provider %q", cfg.Provider)
	}
}

// Lookup resolves configuration keys through an ordered chain of stores,
// typically a secret store first with the process environment as fallback.
type Lookup struct {
	stores []Store
}

func NewLookup(stores ...Store) *Lookup {
	return &Lookup{stores: stores}
}

// Get returns the first value found for key, or def when no store has it.
// Store failures are treated the same as absence: configuration lookup
// must never take the process down.
func (l *Lookup) Get(ctx context.Context, key, def string) string {
	for _, s := range l.stores {
		if v, err := s.Get(ctx, key); err == nil && v != "" {
			return v
		}
	}
	return def
}
