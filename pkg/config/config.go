// Package config provides unified configuration for the polygate gateway.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (POLYGATE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import (
	"fmt"
	"time"

	"github.com/polygate-dev/polygate/pkg/provider"
)

// Config holds all configuration for the polygate gateway.
type Config struct {
	Server ServerConfig `yaml:"server"`

	// Model is the default model in "client:name" form. When empty it
	// falls back to the first model of the first configured client.
	Model string `yaml:"model"`

	Clients       []provider.ClientConfig `yaml:"clients"`
	Auth          AuthConfig              `yaml:"auth"`
	Usage         UsageConfig             `yaml:"usage"`
	Observability ObservabilityConfig     `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Addr accepts a full host:port, a bare port, or a bare IP; the
	// gateway normalizes it. Default: "127.0.0.1:8000".
	Addr string `yaml:"addr"`

	ReadTimeout time.Duration `yaml:"read_timeout"` // default: 30s
}

// AuthConfig holds inbound authentication settings.
type AuthConfig struct {
	Type    string         `yaml:"type"`     // "none", "apikey", or "jwt", default: "none"
	APIKeys []APIKeyConfig `yaml:"api_keys"` // key entries for type=apikey
	JWT     JWTConfig      `yaml:"jwt"`      // settings for type=jwt
}

// APIKeyConfig describes a single inbound API key entry.
type APIKeyConfig struct {
	Key     string `yaml:"key"`
	KeyFile string `yaml:"key_file"` // _file variant for key
	Subject string `yaml:"subject"`
}

// JWTConfig holds bearer-JWT validation settings.
type JWTConfig struct {
	Secret     string `yaml:"secret"`
	SecretFile string `yaml:"secret_file"` // _file variant for secret
	Issuer     string `yaml:"issuer"`      // optional, checked when set
	Audience   string `yaml:"audience"`    // optional, checked when set
}

// UsageConfig holds completion usage ledger settings.
type UsageConfig struct {
	Store    string         `yaml:"store"`    // "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"` // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"` // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:        "127.0.0.1:8000",
			ReadTimeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Usage: UsageConfig{
			Store:   "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// DefaultModelID returns the configured default model id, falling back to
// the first model of the first client that declares one.
func (c *Config) DefaultModelID() string {
	if c.Model != "" {
		return c.Model
	}
	for _, cc := range c.Clients {
		if len(cc.Models) > 0 {
			return provider.NewModel(cc.ClientName(), cc.Models[0].Name).ID()
		}
	}
	return ""
}

// ResolveModel finds the client serving the given model id and returns a
// cloned client config plus a deep model copy, so callers can apply
// request-scoped overrides without touching shared state.
//
// The id may be the full "client:name" form or a bare model name, in
// which case the first client declaring that model wins.
func (c *Config) ResolveModel(id string) (provider.ClientConfig, provider.Model, error) {
	clientName, modelName := provider.SplitID(id)

	for _, cc := range c.Clients {
		if clientName != "" && cc.ClientName() != clientName {
			continue
		}
		for _, mc := range cc.Models {
			if mc.Name != modelName {
				continue
			}
			model := provider.Model{
				Client:          cc.ClientName(),
				Name:            mc.Name,
				MaxInputTokens:  mc.MaxInputTokens,
				MaxOutputTokens: mc.MaxOutputTokens,
			}
			return cc.Clone(), model.Clone(), nil
		}
	}
	return provider.ClientConfig{}, provider.Model{}, fmt.Errorf("invalid model '%s'", id)
}
