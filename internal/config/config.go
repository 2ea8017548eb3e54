// File: internal/config/config.go
package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"deep-research-service/internal/infra/secrets"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type StorageConfig struct {
	Provider   string      `yaml:"provider"` // redis | sqlite
	SQLitePath string      `yaml:"sqlite_path"`
	Redis      RedisConfig `yaml:"redis"`
}

type AgentConfig struct {
	ProjectEndpoint   string `yaml:"project_endpoint"`
	APIKey            string `yaml:"api_key"`
	APIVersion        string `yaml:"api_version"`
	ModelDeployment   string `yaml:"model_deployment"`
	DeepResearchModel string `yaml:"deep_research_model"`
	BingResourceName  string `yaml:"bing_resource_name"`
}

type ReconcileConfig struct {
	Enabled  *bool         `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Batch    int           `yaml:"batch"`
}

type AuthConfig struct {
	AllowAnonymous *bool  `yaml:"allow_anonymous"`
	APIKey         string `yaml:"api_key"`
}

type SecretsConfig struct {
	Provider string              `yaml:"provider"` // env | vault | memory
	Vault    secrets.VaultConfig `yaml:"vault"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Storage   StorageConfig   `yaml:"storage"`
	Agent     AgentConfig     `yaml:"agent"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Auth      AuthConfig      `yaml:"auth"`
	Secrets   SecretsConfig   `yaml:"secrets"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML config file and applies defaults. A missing file
// is not an error: deployments driven purely by secrets/environment run with
// the defaults and the Overlay pass below.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// defaults
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Storage.Provider == "" {
		cfg.Storage.Provider = "sqlite"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "research_jobs.db"
	}
	if cfg.Agent.APIVersion == "" {
		cfg.Agent.APIVersion = "2025-05-01"
	}
	if cfg.Agent.ModelDeployment == "" {
		cfg.Agent.ModelDeployment = "gpt-4o"
	}
	if cfg.Agent.DeepResearchModel == "" {
		cfg.Agent.DeepResearchModel = "latest"
	}
	if cfg.Reconcile.Interval <= 0 {
		cfg.Reconcile.Interval = 30 * time.Second
	}
	if cfg.Reconcile.Batch <= 0 {
		cfg.Reconcile.Batch = 50
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

// Overlay resolves sensitive or deployment-specific values through the
// secret/env lookup chain. File values win only when the lookup has nothing.
func (c *Config) Overlay(ctx context.Context, lookup *secrets.Lookup) {
	c.Storage.Provider = strings.ToLower(lookup.Get(ctx, "DATABASE_PROVIDER", c.Storage.Provider))
	c.Storage.SQLitePath = lookup.Get(ctx, "SQLITE_DB_PATH", c.Storage.SQLitePath)
	c.Storage.Redis.Addr = lookup.Get(ctx, "REDIS_ADDR", c.Storage.Redis.Addr)
	c.Storage.Redis.Password = lookup.Get(ctx, "REDIS_PASSWORD", c.Storage.Redis.Password)

	c.Agent.ProjectEndpoint = lookup.Get(ctx, "PROJECT_ENDPOINT", c.Agent.ProjectEndpoint)
	c.Agent.APIKey = lookup.Get(ctx, "AGENT_API_KEY", c.Agent.APIKey)
	c.Agent.ModelDeployment = lookup.Get(ctx, "MODEL_DEPLOYMENT_NAME", c.Agent.ModelDeployment)
	c.Agent.DeepResearchModel = lookup.Get(ctx, "DEEP_RESEARCH_MODEL_DEPLOYMENT_NAME", c.Agent.DeepResearchModel)
	c.Agent.BingResourceName = lookup.Get(ctx, "BING_RESOURCE_NAME", c.Agent.BingResourceName)

	c.Auth.APIKey = lookup.Get(ctx, "API_KEY", c.Auth.APIKey)
	if v := lookup.Get(ctx, "ALLOW_ANONYMOUS", ""); v != "" {
		allowed := !isFalse(v)
		c.Auth.AllowAnonymous = &allowed
	}
}

// ReconcileEnabled defaults to true when unset.
func (c *Config) ReconcileEnabled() bool {
	if c.Reconcile.Enabled == nil {
		return true
	}
	return *c.Reconcile.Enabled
}

// AllowAnonymous defaults to true when unset, matching the original service.
func (c *Config) AllowAnonymous() bool {
	if c.Auth.AllowAnonymous == nil {
		return true
	}
	return *c.Auth.AllowAnonymous
}

func isFalse(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "0", "false", "no":
		return true
	}
	return false
}
