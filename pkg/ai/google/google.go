package google

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ndltd-tw/papergraph/pkg/ai"

	"google.golang.org/genai"
)

// GeminiClient streams completions from the Gemini API.
type GeminiClient struct {
	ai.MetricsRecorder

	model string

	Client *genai.Client
}

type NewGeminiClientParams struct {
	Model  string
	APIKey string
}

var _ ai.TextClient = (*GeminiClient)(nil)

func NewGeminiClient(ctx context.Context, params NewGeminiClientParams) (*GeminiClient, error) {
	if params.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  params.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := strings.TrimPrefix(params.Model, "models/")
	if model == "" {
		model = ai.DefaultModel(ai.ProviderGoogle)
	}

	return &GeminiClient{model: model, Client: client}, nil
}

// safetySettings disables blocking for every adjustable harm category.
func safetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryDangerousContent,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategoryHarassment,
	}
	out := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		out = append(out, &genai.SafetySetting{Category: c, Threshold: genai.HarmBlockThresholdOff})
	}
	return out
}

func generationConfig(options ai.GenerateOptions) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		SafetySettings: safetySettings(),
		CandidateCount: 1,
		Temperature:    genai.Ptr(float32(options.Temperature)),
	}
	if options.TopP > 0 {
		cfg.TopP = genai.Ptr(float32(options.TopP))
	}
	if options.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(options.MaxOutputTokens)
	}
	if len(options.SystemPrompts) > 0 {
		parts := make([]*genai.Part, 0, len(options.SystemPrompts))
		for _, p := range options.SystemPrompts {
			parts = append(parts, genai.NewPartFromText(p))
		}
		cfg.SystemInstruction = &genai.Content{Parts: parts}
	}
	return cfg
}

// GenerateStream streams the answer to prompt. Sampling defaults to
// temperature 1.0, top_p 0.7 and at most 2048 output tokens.
func (c *GeminiClient) GenerateStream(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (<-chan ai.StreamEvent, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:           c.model,
		Temperature:     1.0,
		TopP:            0.7,
		MaxOutputTokens: 2048,
	}, opts...)

	cfg := generationConfig(options)
	out := make(chan ai.StreamEvent, 16)
	start := time.Now()

	go func() {
		defer close(out)

		var usage *genai.GenerateContentResponseUsageMetadata
		for chunk, err := range c.Client.Models.GenerateContentStream(ctx, options.Model, genai.Text(prompt), cfg) {
			if err != nil {
				if ctx.Err() == nil {
					ai.Send(ctx, out, ai.StreamEvent{Type: ai.EventError, Err: err})
				}
				return
			}
			if chunk.UsageMetadata != nil {
				usage = chunk.UsageMetadata
			}
			if text := chunkText(chunk); text != "" {
				if !ai.Send(ctx, out, ai.StreamEvent{Type: ai.EventContent, Content: text}) {
					return
				}
			}
		}

		m := ai.ModelMetrics{DurationMs: time.Since(start).Milliseconds()}
		if usage != nil {
			m.InputTokens = int(usage.PromptTokenCount)
			m.OutputTokens = int(usage.CandidatesTokenCount)
			m.TotalTokens = int(usage.TotalTokenCount)
		}
		c.AddMetrics(m)
	}()

	return out, nil
}

// chunkText joins the text parts of the first candidate.
func chunkText(chunk *genai.GenerateContentResponse) string {
	if chunk == nil || len(chunk.Candidates) == 0 || chunk.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range chunk.Candidates[0].Content.Parts {
		if p != nil && p.Text != "" && !p.Thought {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}
