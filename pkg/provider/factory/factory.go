// Package factory constructs provider clients from configuration.
package factory

import (
	"fmt"

	"github.com/polygate-dev/polygate/pkg/provider"
	"github.com/polygate-dev/polygate/pkg/provider/azure"
	"github.com/polygate-dev/polygate/pkg/provider/bedrock"
	"github.com/polygate-dev/polygate/pkg/provider/claude"
	"github.com/polygate-dev/polygate/pkg/provider/cloudflare"
	"github.com/polygate-dev/polygate/pkg/provider/cohere"
	"github.com/polygate-dev/polygate/pkg/provider/compat"
	"github.com/polygate-dev/polygate/pkg/provider/ernie"
	"github.com/polygate-dev/polygate/pkg/provider/gemini"
	"github.com/polygate-dev/polygate/pkg/provider/ollama"
	"github.com/polygate-dev/polygate/pkg/provider/openai"
	"github.com/polygate-dev/polygate/pkg/provider/qianwen"
	"github.com/polygate-dev/polygate/pkg/provider/replicate"
	"github.com/polygate-dev/polygate/pkg/provider/vertexai"
)

// New builds the client selected by cfg.Type, bound to model. The model
// is a request-scoped copy; constructors never mutate shared state.
func New(cfg provider.ClientConfig, model provider.Model) (provider.Client, error) {
	switch cfg.Type {
	case openai.Kind:
		return openai.New(cfg, model)
	case compat.Kind:
		return compat.New(cfg, model)
	case azure.Kind:
		return azure.New(cfg, model)
	case gemini.Kind:
		return gemini.New(cfg, model)
	case vertexai.Kind:
		return vertexai.New(cfg, model)
	case claude.Kind:
		return claude.New(cfg, model)
	case cohere.Kind:
		return cohere.New(cfg, model)
	case ollama.Kind:
		return ollama.New(cfg, model)
	case bedrock.Kind:
		return bedrock.New(cfg, model)
	case cloudflare.Kind:
		return cloudflare.New(cfg, model)
	case replicate.Kind:
		return replicate.New(cfg, model)
	case ernie.Kind:
		return ernie.New(cfg, model)
	case qianwen.Kind:
		return qianwen.New(cfg, model)
	}
	return nil, fmt.Errorf("unknown client type %q", cfg.Type)
}

// Kinds lists the supported client type tags.
func Kinds() []string {
	return []string{
		openai.Kind, compat.Kind, azure.Kind, gemini.Kind, vertexai.Kind,
		claude.Kind, cohere.Kind, ollama.Kind, bedrock.Kind, cloudflare.Kind,
		replicate.Kind, ernie.Kind, qianwen.Kind,
	}
}
