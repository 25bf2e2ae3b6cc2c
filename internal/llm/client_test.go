package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdb/engram/internal/config"
)

func TestNewClientNone(t *testing.T) {
	for _, provider := range []string{"", "none"} {
		client, err := NewClient(config.LLMConfig{Provider: provider})
		require.NoError(t, err)
		assert.Nil(t, client)
	}
}

func TestNewClientAnthropic(t *testing.T) {
	cfg := config.LLMConfig{Provider: "anthropic", AnthropicKey: "test-key"}
	client, err := NewClient(cfg)
	require.NoError(t, err)
	assert.IsType(t, &Anthropic{}, client)
}

func TestNewClientAnthropicMissingKey(t *testing.T) {
	_, err := NewClient(config.LLMConfig{Provider: "anthropic"})
	assert.Error(t, err)
}

func TestNewClientOllama(t *testing.T) {
	cfg := config.LLMConfig{Provider: "ollama", OllamaModel: "llama3.2"}
	client, err := NewClient(cfg)
	require.NoError(t, err)
	assert.IsType(t, &Ollama{}, client)
}

func TestNewClientUnknown(t *testing.T) {
	_, err := NewClient(config.LLMConfig{Provider: "gpt"})
	assert.Error(t, err)
}

func TestDecidePromptCarriesBothTexts(t *testing.T) {
	prompt := DecidePrompt("X=2", "X=1", "fact")
	assert.Contains(t, prompt, "X=2")
	assert.Contains(t, prompt, "X=1")
	assert.Contains(t, prompt, "fact")
	assert.Contains(t, prompt, `"decision"`)
}

func TestMergePromptCarriesBothTexts(t *testing.T) {
	prompt := MergePrompt("older text", "newer text")
	assert.Contains(t, prompt, "older text")
	assert.Contains(t, prompt, "newer text")
}

func TestMockClient(t *testing.T) {
	mock := &MockClient{
		Response: &Response{Content: "test response", Provider: "mock"},
	}

	resp, err := mock.Complete(context.Background(), "test prompt")
	require.NoError(t, err)
	assert.Equal(t, "test response", resp.Content)
	require.Len(t, mock.Calls, 1)
	assert.Equal(t, "test prompt", mock.Calls[0])
}
