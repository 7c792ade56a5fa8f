package server

import (
	"context"
	"testing"

	"github.com/ndltd-tw/papergraph/pkg/ai"
	"github.com/ndltd-tw/papergraph/pkg/ai/anthropic"
	"github.com/ndltd-tw/papergraph/pkg/ai/ollama"
	"github.com/ndltd-tw/papergraph/pkg/ai/openai"
	"github.com/ndltd-tw/papergraph/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientFactory_MissingKey(t *testing.T) {
	factory := NewClientFactory(ProviderConfig{})

	for _, p := range []ai.Provider{ai.ProviderGoogle, ai.ProviderAnthropic, ai.ProviderOpenAI} {
		_, err := factory(context.Background(), p, "", "")
		assert.ErrorIs(t, err, common.ErrValidation, p)
		assert.Equal(t, "Genai-Api-Key", common.Subject(err))
	}
}

func TestClientFactory_Providers(t *testing.T) {
	factory := NewClientFactory(ProviderConfig{
		AnthropicAPIKey: "server-key",
		OllamaURL:       "http://ollama.internal:11434",
	})

	c, err := factory(context.Background(), ai.ProviderAnthropic, "claude-x", "")
	require.NoError(t, err)
	assert.IsType(t, &anthropic.AnthropicClient{}, c)

	c, err = factory(context.Background(), ai.ProviderOpenAI, "gpt-x", "request-key")
	require.NoError(t, err)
	assert.IsType(t, &openai.OpenAIClient{}, c)

	c, err = factory(context.Background(), ai.ProviderOllama, "llama3.1", "")
	require.NoError(t, err)
	assert.IsType(t, &ollama.OllamaClient{}, c)

	_, err = factory(context.Background(), ai.Provider("mistral"), "", "k")
	assert.ErrorIs(t, err, common.ErrUnsupportedOption)
}
