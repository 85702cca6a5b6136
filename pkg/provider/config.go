package provider

import "fmt"

// ModelConfig declares one model a configured client can serve, with its
// optional runtime limits.
type ModelConfig struct {
	Name            string `yaml:"name"`
	MaxInputTokens  *int   `yaml:"max_input_tokens,omitempty"`
	MaxOutputTokens *int   `yaml:"max_output_tokens,omitempty"`
}

// ClientConfig holds the static credentials and endpoint of one configured
// client. Type selects exactly one client implementation; the remaining
// fields are vendor-specific and validated by that implementation's
// constructor, which fails fast naming any missing mandatory field.
type ClientConfig struct {
	Type string `yaml:"type"`

	// Name distinguishes multiple instances of the same client type
	// (e.g. two openai-compatible platforms). Defaults to Type.
	Name string `yaml:"name,omitempty"`

	APIKey     string `yaml:"api_key,omitempty"`
	APIKeyFile string `yaml:"api_key_file,omitempty"`
	APIBase    string `yaml:"api_base,omitempty"`
	APIVersion string `yaml:"api_version,omitempty"` // azure-openai

	// Bedrock.
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	Region          string `yaml:"region,omitempty"`

	// Cloudflare Workers AI.
	AccountID string `yaml:"account_id,omitempty"`

	// VertexAI.
	Project  string `yaml:"project,omitempty"`
	Location string `yaml:"location,omitempty"`

	// Pre-issued bearer token (vertexai, ernie). Credential refresh is
	// the configuration layer's job, not the gateway's.
	AccessToken     string `yaml:"access_token,omitempty"`
	AccessTokenFile string `yaml:"access_token_file,omitempty"`

	Models []ModelConfig `yaml:"models,omitempty"`
}

// ClientName returns the configured instance name, defaulting to the type tag.
func (c ClientConfig) ClientName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Type
}

// Clone returns a deep copy so per-request snapshots never share mutable
// state with the process-wide configuration.
func (c ClientConfig) Clone() ClientConfig {
	out := c
	if c.Models != nil {
		out.Models = make([]ModelConfig, len(c.Models))
		for i, m := range c.Models {
			mc := m
			if m.MaxInputTokens != nil {
				v := *m.MaxInputTokens
				mc.MaxInputTokens = &v
			}
			if m.MaxOutputTokens != nil {
				v := *m.MaxOutputTokens
				mc.MaxOutputTokens = &v
			}
			out.Models[i] = mc
		}
	}
	return out
}

// MissingFieldError reports a mandatory configuration field absent for the
// named client. Client constructors return it before any network call.
func MissingFieldError(client, field string) error {
	return fmt.Errorf("%s: missing required configuration field %q", client, field)
}
