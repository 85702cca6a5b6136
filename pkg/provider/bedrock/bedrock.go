// Package bedrock implements the AWS Bedrock client on the Converse and
// ConverseStream APIs of the AWS SDK. Credentials come from the client
// configuration as a static pair, not from the ambient AWS environment.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/polygate-dev/polygate/pkg/provider"
)

// Kind is the configuration type tag selecting this client.
const Kind = "bedrock"

// runtime is the subset of *bedrockruntime.Client the client calls,
// narrowed so tests can substitute a fake.
type runtime interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Client calls Bedrock's Converse APIs.
type Client struct {
	name    string
	model   provider.Model
	runtime runtime
}

// New validates the configuration, builds the SDK client with static
// credentials, and binds it to model.
func New(cfg provider.ClientConfig, model provider.Model) (*Client, error) {
	if cfg.AccessKeyID == "" {
		return nil, provider.MissingFieldError(cfg.ClientName(), "access_key_id")
	}
	if cfg.SecretAccessKey == "" {
		return nil, provider.MissingFieldError(cfg.ClientName(), "secret_access_key")
	}
	if cfg.Region == "" {
		return nil, provider.MissingFieldError(cfg.ClientName(), "region")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: loading aws config: %w", cfg.ClientName(), err)
	}

	return &Client{
		name:    cfg.ClientName(),
		model:   model,
		runtime: bedrockruntime.NewFromConfig(awsCfg),
	}, nil
}

func (c *Client) Name() string { return c.name }

func (c *Client) Model() *provider.Model { return &c.model }

// encodeMessages maps the canonical conversation onto Converse content
// blocks, lifting system messages into system blocks.
func encodeMessages(msgs []provider.Message) ([]brtypes.Message, []brtypes.SystemContentBlock) {
	var conversation []brtypes.Message
	var system []brtypes.SystemContentBlock
	for _, m := range msgs {
		switch m.Role {
		case "system":
			system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Content})
		case "assistant":
			conversation = append(conversation, brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
			})
		default:
			conversation = append(conversation, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
			})
		}
	}
	return conversation, system
}

func (c *Client) inferenceConfig(req provider.Request) *brtypes.InferenceConfiguration {
	if req.Temperature == nil && req.TopP == nil && c.model.MaxOutputTokens == nil {
		return nil
	}
	var cfg brtypes.InferenceConfiguration
	if req.Temperature != nil {
		cfg.Temperature = aws.Float32(float32(*req.Temperature))
	}
	if req.TopP != nil {
		cfg.TopP = aws.Float32(float32(*req.TopP))
	}
	if c.model.MaxOutputTokens != nil {
		cfg.MaxTokens = aws.Int32(int32(*c.model.MaxOutputTokens))
	}
	return &cfg
}

func (c *Client) Send(ctx context.Context, req provider.Request) (string, provider.Details, error) {
	conversation, system := encodeMessages(req.Messages)

	out, err := c.runtime.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         aws.String(c.model.Name),
		Messages:        conversation,
		System:          system,
		InferenceConfig: c.inferenceConfig(req),
	})
	if err != nil {
		return "", provider.Details{}, fmt.Errorf("%s: %w", c.name, err)
	}

	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", provider.Details{}, fmt.Errorf("%s: response carried no message", c.name)
	}
	var text strings.Builder
	for _, block := range msg.Value.Content {
		if t, ok := block.(*brtypes.ContentBlockMemberText); ok {
			text.WriteString(t.Value)
		}
	}

	var details provider.Details
	if out.Usage != nil {
		details.InputTokens = int(aws.ToInt32(out.Usage.InputTokens))
		details.OutputTokens = int(aws.ToInt32(out.Usage.OutputTokens))
	}
	return text.String(), details, nil
}

func (c *Client) SendStreaming(ctx context.Context, req provider.Request, h *provider.Handler) error {
	conversation, system := encodeMessages(req.Messages)

	out, err := c.runtime.ConverseStream(ctx, &bedrockruntime.ConverseStreamInput{
		ModelId:         aws.String(c.model.Name),
		Messages:        conversation,
		System:          system,
		InferenceConfig: c.inferenceConfig(req),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}

	stream := out.GetStream()
	defer stream.Close()

	for event := range stream.Events() {
		if h.Abort().Aborted() {
			return nil
		}

		switch ev := event.(type) {
		case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
			delta, ok := ev.Value.Delta.(*brtypes.ContentBlockDeltaMemberText)
			if !ok {
				continue
			}
			if err := h.Text(delta.Value); err != nil {
				if errors.Is(err, provider.ErrAborted) {
					return nil
				}
				return fmt.Errorf("%s: %w", c.name, err)
			}
		case *brtypes.ConverseStreamOutputMemberMessageStop:
			h.Done()
		}
	}

	if err := stream.Err(); err != nil && !h.Abort().Aborted() {
		return fmt.Errorf("%s: %w", c.name, err)
	}

	h.Done()
	return nil
}
