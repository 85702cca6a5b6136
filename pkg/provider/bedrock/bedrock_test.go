package bedrock

import (
	"context"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/polygate-dev/polygate/pkg/provider"
)

type fakeRuntime struct {
	converseIn  *bedrockruntime.ConverseInput
	converseOut *bedrockruntime.ConverseOutput
	converseErr error
}

func (f *fakeRuntime) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.converseIn = params
	return f.converseOut, f.converseErr
}

func (f *fakeRuntime) ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error) {
	return nil, nil
}

func TestNewValidatesConfig(t *testing.T) {
	model := provider.NewModel(Kind, "anthropic.claude-3-sonnet")
	tests := []struct {
		name    string
		cfg     provider.ClientConfig
		missing string
	}{
		{"no access key", provider.ClientConfig{Type: Kind, SecretAccessKey: "s", Region: "us-east-1"}, "access_key_id"},
		{"no secret", provider.ClientConfig{Type: Kind, AccessKeyID: "a", Region: "us-east-1"}, "secret_access_key"},
		{"no region", provider.ClientConfig{Type: Kind, AccessKeyID: "a", SecretAccessKey: "s"}, "region"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, model)
			if err == nil || !strings.Contains(err.Error(), tt.missing) {
				t.Errorf("err = %v, want it to name %q", err, tt.missing)
			}
		})
	}
}

func TestEncodeMessages(t *testing.T) {
	conversation, system := encodeMessages([]provider.Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	})
	if len(system) != 1 {
		t.Fatalf("system blocks = %d", len(system))
	}
	if got := system[0].(*brtypes.SystemContentBlockMemberText).Value; got != "be terse" {
		t.Errorf("system = %q", got)
	}
	if len(conversation) != 2 {
		t.Fatalf("conversation = %d messages", len(conversation))
	}
	if conversation[0].Role != brtypes.ConversationRoleUser ||
		conversation[1].Role != brtypes.ConversationRoleAssistant {
		t.Errorf("roles = %v, %v", conversation[0].Role, conversation[1].Role)
	}
}

func TestSend(t *testing.T) {
	fake := &fakeRuntime{
		converseOut: &bedrockruntime.ConverseOutput{
			Output: &brtypes.ConverseOutputMemberMessage{
				Value: brtypes.Message{
					Role: brtypes.ConversationRoleAssistant,
					Content: []brtypes.ContentBlock{
						&brtypes.ContentBlockMemberText{Value: "hello"},
					},
				},
			},
			Usage: &brtypes.TokenUsage{
				InputTokens:  aws.Int32(7),
				OutputTokens: aws.Int32(2),
			},
		},
	}
	maxTokens := 256
	model := provider.NewModel(Kind, "anthropic.claude-3-sonnet")
	model.SetMaxOutputTokens(&maxTokens)
	c := &Client{name: Kind, model: model, runtime: fake}

	temp := 0.5
	text, details, err := c.Send(context.Background(), provider.Request{
		Messages:    []provider.Message{{Role: "user", Content: "hi"}},
		Temperature: &temp,
	})
	if err != nil {
		t.Fatal(err)
	}
	if text != "hello" {
		t.Errorf("text = %q", text)
	}
	if details.InputTokens != 7 || details.OutputTokens != 2 {
		t.Errorf("details = %+v", details)
	}
	if got := aws.ToString(fake.converseIn.ModelId); got != "anthropic.claude-3-sonnet" {
		t.Errorf("model id = %q", got)
	}
	cfg := fake.converseIn.InferenceConfig
	if cfg == nil || aws.ToInt32(cfg.MaxTokens) != 256 || aws.ToFloat32(cfg.Temperature) != 0.5 {
		t.Errorf("inference config = %+v", cfg)
	}
}

func TestSendNoMessageInOutput(t *testing.T) {
	fake := &fakeRuntime{converseOut: &bedrockruntime.ConverseOutput{}}
	c := &Client{name: Kind, model: provider.NewModel(Kind, "m"), runtime: fake}

	_, _, err := c.Send(context.Background(), provider.Request{
		Messages: []provider.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil || !strings.Contains(err.Error(), "no message") {
		t.Errorf("err = %v", err)
	}
}

func TestInferenceConfigOmittedWhenUnset(t *testing.T) {
	c := &Client{name: Kind, model: provider.NewModel(Kind, "m")}
	if cfg := c.inferenceConfig(provider.Request{}); cfg != nil {
		t.Errorf("config = %+v, want nil", cfg)
	}
}
