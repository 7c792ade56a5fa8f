package openai

import (
	"errors"

	"github.com/ndltd-tw/papergraph/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIClient streams completions from the OpenAI chat completions API or
// any server implementing it.
//
// An OpenAIClient should be created using NewOpenAIClient.
type OpenAIClient struct {
	ai.MetricsRecorder

	model   string
	baseURL string

	Client *openai.Client
}

// NewOpenAIClientParams configures an OpenAIClient.
//
// BaseURL is optional and selects an OpenAI compatible endpoint.
type NewOpenAIClientParams struct {
	Model   string
	BaseURL string
	APIKey  string
}

var _ ai.TextClient = (*OpenAIClient)(nil)

func NewOpenAIClient(params NewOpenAIClientParams) (*OpenAIClient, error) {
	if params.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	options := []option.RequestOption{
		option.WithAPIKey(params.APIKey),
	}
	if params.BaseURL != "" {
		options = append(options, option.WithBaseURL(params.BaseURL))
	}
	client := openai.NewClient(options...)

	model := params.Model
	if model == "" {
		model = ai.DefaultModel(ai.ProviderOpenAI)
	}

	return &OpenAIClient{
		model:   model,
		baseURL: params.BaseURL,
		Client:  &client,
	}, nil
}
