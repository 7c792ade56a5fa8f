package ollama

import (
	"net/http"
	"net/url"

	"github.com/ndltd-tw/papergraph/pkg/ai"

	"github.com/ollama/ollama/api"
)

// OllamaClient streams completions from an Ollama server.
type OllamaClient struct {
	ai.MetricsRecorder

	model string

	Client *api.Client
}

// NewOllamaClientParams contains configuration options for creating a new OllamaClient.
// BaseURL defaults to the local Ollama server. APIKey is sent as a bearer
// token for servers behind an authenticating proxy.
type NewOllamaClientParams struct {
	Model   string
	BaseURL string
	APIKey  string
}

var _ ai.TextClient = (*OllamaClient)(nil)

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

func NewOllamaClient(params NewOllamaClientParams) (*OllamaClient, error) {
	raw := params.BaseURL
	if raw == "" {
		raw = "http://localhost:11434"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}

	httpClient := http.DefaultClient
	if params.APIKey != "" {
		httpClient = &http.Client{
			Transport: &headerTransport{
				headers: map[string]string{
					"Authorization": "Bearer " + params.APIKey,
				},
				rt: http.DefaultTransport,
			},
		}
	}

	model := params.Model
	if model == "" {
		model = ai.DefaultModel(ai.ProviderOllama)
	}

	return &OllamaClient{
		model:  model,
		Client: api.NewClient(u, httpClient),
	}, nil
}
