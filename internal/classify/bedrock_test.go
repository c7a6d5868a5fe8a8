package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConverseAPI struct {
	out  *bedrockruntime.ConverseOutput
	err  error
	last *bedrockruntime.ConverseInput
}

func (f *fakeConverseAPI) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.last = params
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

func converseTextOutput(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Role: brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: text},
				},
			},
		},
	}
}

func TestBedrockProviderGenerate(t *testing.T) {
	api := &fakeConverseAPI{out: converseTextOutput(`{"intent":"confirm","confidence":"high"}`)}
	provider, err := NewBedrockProvider(api, "anthropic.claude-3-haiku")
	require.NoError(t, err)

	text, err := provider.Generate(context.Background(), "system prompt", "Transcript:\nyes I'll be there")
	require.NoError(t, err)
	assert.JSONEq(t, `{"intent":"confirm","confidence":"high"}`, text)

	require.NotNil(t, api.last)
	assert.Equal(t, "anthropic.claude-3-haiku", *api.last.ModelId)
	require.Len(t, api.last.System, 1)
	require.Len(t, api.last.Messages, 1)
	assert.Equal(t, brtypes.ConversationRoleUser, api.last.Messages[0].Role)
}

func TestBedrockProviderPropagatesAPIError(t *testing.T) {
	api := &fakeConverseAPI{err: errors.New("throttled")}
	provider, err := NewBedrockProvider(api, "model-id")
	require.NoError(t, err)

	_, err = provider.Generate(context.Background(), "sys", "user")
	assert.Error(t, err)
}

func TestBedrockProviderEmptyResponse(t *testing.T) {
	api := &fakeConverseAPI{out: converseTextOutput("   ")}
	provider, err := NewBedrockProvider(api, "model-id")
	require.NoError(t, err)

	_, err = provider.Generate(context.Background(), "sys", "user")
	assert.Error(t, err)
}

func TestNewBedrockProviderValidation(t *testing.T) {
	_, err := NewBedrockProvider(nil, "model-id")
	assert.Error(t, err)

	_, err = NewBedrockProvider(&fakeConverseAPI{}, "  ")
	assert.Error(t, err)
}

func TestBuildProviderPrefersBedrock(t *testing.T) {
	provider, name, reason := BuildProvider(context.Background(), ProviderSelectionConfig{
		Preference:     ProviderAuto,
		BedrockAPI:     &fakeConverseAPI{},
		BedrockModelID: "model-id",
	}, nil)

	require.NotNil(t, provider)
	assert.Equal(t, ProviderBedrock, name)
	assert.Empty(t, reason)
}

func TestBuildProviderNothingConfigured(t *testing.T) {
	provider, name, reason := BuildProvider(context.Background(), ProviderSelectionConfig{Preference: ProviderAuto}, nil)

	assert.Nil(t, provider)
	assert.Empty(t, name)
	assert.Contains(t, reason, "no classifier backend available")
}

func TestBuildProviderExplicitPreferenceUnavailable(t *testing.T) {
	provider, _, reason := BuildProvider(context.Background(), ProviderSelectionConfig{Preference: ProviderGemini}, nil)

	assert.Nil(t, provider)
	assert.Contains(t, reason, "gemini")
}
