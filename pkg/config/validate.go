package config

import (
	"errors"
	"fmt"

	"github.com/polygate-dev/polygate/pkg/provider/factory"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Clients) == 0 {
		errs = append(errs, fmt.Errorf("at least one client must be configured"))
	}

	seen := make(map[string]bool)
	for i, cc := range c.Clients {
		if cc.Type == "" {
			errs = append(errs, fmt.Errorf("clients[%d].type is required", i))
			continue
		}
		if !knownClientType(cc.Type) {
			errs = append(errs, fmt.Errorf("clients[%d].type %q is not a supported client type", i, cc.Type))
		}
		name := cc.ClientName()
		if seen[name] {
			errs = append(errs, fmt.Errorf("clients[%d]: duplicate client name %q", i, name))
		}
		seen[name] = true
		if len(cc.Models) == 0 {
			errs = append(errs, fmt.Errorf("clients[%d] (%s): at least one model is required", i, name))
		}
		for j, mc := range cc.Models {
			if mc.Name == "" {
				errs = append(errs, fmt.Errorf("clients[%d].models[%d].name is required", i, j))
			}
		}
	}

	// The default model, explicit or implied, must resolve to a client.
	if len(errs) == 0 {
		if id := c.DefaultModelID(); id == "" {
			errs = append(errs, fmt.Errorf("no default model available"))
		} else if _, _, err := c.ResolveModel(id); err != nil {
			errs = append(errs, fmt.Errorf("model %q does not match any configured client", id))
		}
	}

	switch c.Auth.Type {
	case "none", "apikey", "jwt":
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}
	if c.Auth.Type == "apikey" && len(c.Auth.APIKeys) == 0 {
		errs = append(errs, fmt.Errorf("auth.api_keys is required when auth.type is \"apikey\""))
	}
	if c.Auth.Type == "jwt" && c.Auth.JWT.Secret == "" && c.Auth.JWT.SecretFile == "" {
		errs = append(errs, fmt.Errorf("auth.jwt.secret or auth.jwt.secret_file is required when auth.type is \"jwt\""))
	}

	switch c.Usage.Store {
	case "none", "memory", "postgres":
	default:
		errs = append(errs, fmt.Errorf("usage.store must be \"none\", \"memory\", or \"postgres\", got %q", c.Usage.Store))
	}
	if c.Usage.Store == "postgres" {
		if c.Usage.Postgres.DSN == "" && c.Usage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("usage.postgres.dsn or usage.postgres.dsn_file is required when usage.store is \"postgres\""))
		}
	}

	return errors.Join(errs...)
}

func knownClientType(t string) bool {
	for _, kind := range factory.Kinds() {
		if t == kind {
			return true
		}
	}
	return false
}
