package server

import (
	"context"
	"fmt"

	"github.com/ndltd-tw/papergraph/pkg/ai"
	"github.com/ndltd-tw/papergraph/pkg/ai/anthropic"
	"github.com/ndltd-tw/papergraph/pkg/ai/google"
	"github.com/ndltd-tw/papergraph/pkg/ai/ollama"
	"github.com/ndltd-tw/papergraph/pkg/ai/openai"
	"github.com/ndltd-tw/papergraph/pkg/common"
	"github.com/ndltd-tw/papergraph/pkg/summary"
)

// ProviderConfig holds the server side keys and endpoints of the text
// providers. A key sent with the request takes precedence.
type ProviderConfig struct {
	GoogleAPIKey    string
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OllamaURL       string
	OllamaAPIKey    string
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func missingKey(provider ai.Provider) error {
	return common.NewValidationError("summary", "Genai-Api-Key", "no api key for "+provider.String())
}

// NewClientFactory creates one text client per summary request.
func NewClientFactory(cfg ProviderConfig) summary.ClientFactory {
	return func(ctx context.Context, provider ai.Provider, model, apiKey string) (ai.TextClient, error) {
		switch provider {
		case ai.ProviderGoogle:
			key := firstNonEmpty(apiKey, cfg.GoogleAPIKey)
			if key == "" {
				return nil, missingKey(provider)
			}
			return google.NewGeminiClient(ctx, google.NewGeminiClientParams{
				Model:  model,
				APIKey: key,
			})
		case ai.ProviderAnthropic:
			key := firstNonEmpty(apiKey, cfg.AnthropicAPIKey)
			if key == "" {
				return nil, missingKey(provider)
			}
			return anthropic.NewAnthropicClient(anthropic.NewAnthropicClientParams{
				Model:  model,
				APIKey: key,
			})
		case ai.ProviderOpenAI:
			key := firstNonEmpty(apiKey, cfg.OpenAIAPIKey)
			if key == "" {
				return nil, missingKey(provider)
			}
			return openai.NewOpenAIClient(openai.NewOpenAIClientParams{
				Model:   model,
				BaseURL: cfg.OpenAIBaseURL,
				APIKey:  key,
			})
		case ai.ProviderOllama:
			return ollama.NewOllamaClient(ollama.NewOllamaClientParams{
				Model:   model,
				BaseURL: cfg.OllamaURL,
				APIKey:  firstNonEmpty(apiKey, cfg.OllamaAPIKey),
			})
		}
		return nil, common.NewUnsupportedOptionError("summary", fmt.Sprint(provider))
	}
}
