package secrets

import (
	"context"
	"fmt"
	"strings"

	vault "github.com/hashicorp/vault/api"
)

// VaultConfig configures the HashiCorp Vault secret store.
type VaultConfig struct {
	Address    string `yaml:"address"`
	Token      string `yaml:"token"`
	PathPrefix string `yaml:"path_prefix"`
}

type vaultStore struct {
	client     *vault.Client
	pathPrefix string
}

// NewVaultStore creates a Vault-backed Store. The connection is verified
// eagerly so the Lookup chain can fall back to the environment at startup
// instead of on first use.
func NewVaultStore(cfg VaultConfig) (Store, error) {
	vc := vault.DefaultConfig()
	if cfg.Address != "" {
		vc.Address = cfg.Address
	}
	client, err := vault.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	if _, err := client.Sys().Health(); err != nil {
		return nil, fmt.Errorf("connect to vault: %w", err)
	}
	prefix := cfg.PathPrefix
	if prefix == "" {
		prefix = "secret"
	}
	return &vaultStore{client: client, pathPrefix: prefix}, nil
}

func (v *vaultStore) Get(ctx context.Context, key string) (string, error) {
	val, err := v.read(ctx, key)
	if err == nil {
		return val, nil
	}
	// Secret stores commonly forbid underscores; retry with the dashed form.
	dashed := strings.ReplaceAll(key, "_", "-")
	if dashed != key {
		if val, err2 := v.read(ctx, dashed); err2 == nil {
			return val, nil
		}
	}
	return "", err
}

func (v *vaultStore) read(ctx context.Context, key string) (string, error) {
	secret, err := v.client.Logical().ReadWithContext(ctx, v.pathPrefix+"/"+key)
	if err != nil {
		return "", fmt.Errorf("read secret from vault: %w", err)
	}
	if secret == nil {
		return "", fmt.Errorf("secret not found: %s", key)
	}
	if data, ok := secret.Data["value"].(string); ok {
		return data, nil
	}
	for _, val := range secret.Data {
		if str, ok := val.(string); ok {
			return str, nil
		}
	}
	return "", fmt.Errorf("secret value not found: %s", key)
}
