package anthropic

import (
	"errors"
	"net/http"

	"github.com/ndltd-tw/papergraph/pkg/ai"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultMaxTokens = 2048

// AnthropicClient streams completions from the Anthropic Messages API.
//
// An AnthropicClient should be created using NewAnthropicClient.
type AnthropicClient struct {
	ai.MetricsRecorder

	model string

	Client *anthropic.Client
}

// NewAnthropicClientParams configures an AnthropicClient. BaseURL and
// HTTPClient are optional.
type NewAnthropicClientParams struct {
	Model      string
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

var _ ai.TextClient = (*AnthropicClient)(nil)

func NewAnthropicClient(params NewAnthropicClientParams) (*AnthropicClient, error) {
	if params.APIKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	options := []option.RequestOption{
		option.WithAPIKey(params.APIKey),
	}
	if params.BaseURL != "" {
		options = append(options, option.WithBaseURL(params.BaseURL))
	}
	if params.HTTPClient != nil {
		options = append(options, option.WithHTTPClient(params.HTTPClient))
	}
	client := anthropic.NewClient(options...)

	model := params.Model
	if model == "" {
		model = ai.DefaultModel(ai.ProviderAnthropic)
	}

	return &AnthropicClient{
		model:  model,
		Client: &client,
	}, nil
}
