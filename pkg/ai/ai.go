package ai

import (
	"context"
	"strings"

	"github.com/ndltd-tw/papergraph/pkg/common"
)

// Provider names a text-completion backend.
type Provider string

const (
	ProviderGoogle    Provider = "google"
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderOllama    Provider = "ollama"
)

// Providers lists the supported providers.
var Providers = []Provider{ProviderGoogle, ProviderAnthropic, ProviderOpenAI, ProviderOllama}

var providerAliases = map[string]Provider{
	"google":    ProviderGoogle,
	"gemini":    ProviderGoogle,
	"anthropic": ProviderAnthropic,
	"claude":    ProviderAnthropic,
	"openai":    ProviderOpenAI,
	"ollama":    ProviderOllama,
}

// ParseProvider resolves a provider name. Matching ignores case and
// surrounding whitespace; unknown names fail with common.ErrUnsupportedOption.
func ParseProvider(name string) (Provider, error) {
	p, ok := providerAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", common.NewUnsupportedOptionError("llm_service", name)
	}
	return p, nil
}

func (p Provider) String() string {
	return string(p)
}

// DefaultModel returns the model used when a request names none.
func DefaultModel(p Provider) string {
	switch p {
	case ProviderGoogle:
		return "gemini-2.0-flash"
	case ProviderAnthropic:
		return "claude-3-5-sonnet-latest"
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderOllama:
		return "llama3.1"
	default:
		return ""
	}
}

// GenerateOptions holds configuration for AI generation requests.
type GenerateOptions struct {
	Model           string   // Model identifier to use for generation
	SystemPrompts   []string // System prompts prepended to the request
	Temperature     float64  // Sampling temperature (0.0-2.0)
	TopP            float64  // Nucleus sampling mass, 0 leaves the provider default
	MaxOutputTokens int      // Upper bound of generated tokens, 0 leaves the provider default
}

// ModelMetrics contains performance metrics from AI model operations.
type ModelMetrics struct {
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	TotalTokens    int     `json:"total_tokens"`
	DurationMs     int64   `json:"duration_ms"`
	TokenPerSecond float32 `json:"tokens_per_second"`
}

// Stream event types.
const (
	EventContent = "content"
	EventError   = "error"
)

// StreamEvent is one element of a completion stream. A stream carries any
// number of content events and ends either by closing the channel or with
// a single error event followed by close.
type StreamEvent struct {
	Type    string // "content" | "error"
	Content string // text chunk (when Type="content")
	Err     error  // failure (when Type="error")
}

// GenerateOption is a functional option for configuring AI generation requests.
type GenerateOption func(*GenerateOptions)

// WithModel returns a GenerateOption that sets the model to use for generation.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Model = model
	}
}

// WithSystemPrompts returns a GenerateOption that sets the system prompts
// to prepend to the generation request.
func WithSystemPrompts(prompts ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.SystemPrompts = prompts
	}
}

// WithTemperature returns a GenerateOption that sets the sampling temperature.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = temp
	}
}

func WithTopP(p float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.TopP = p
	}
}

func WithMaxOutputTokens(n int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxOutputTokens = n
	}
}

// ApplyOptions folds opts over defaults.
func ApplyOptions(defaults GenerateOptions, opts ...GenerateOption) GenerateOptions {
	for _, o := range opts {
		if o != nil {
			o(&defaults)
		}
	}
	return defaults
}

// TextClient streams text completions for a single prompt.
//
// GenerateStream fails immediately when the request cannot be started.
// Failures after the first byte are reported as an error event.
type TextClient interface {
	GenerateStream(ctx context.Context, prompt string, opts ...GenerateOption) (<-chan StreamEvent, error)

	ResetMetrics()
	GetMetrics() ModelMetrics
}

// Send delivers ev unless ctx is done first. It reports whether the event
// was delivered.
func Send(ctx context.Context, out chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
