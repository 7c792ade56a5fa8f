package ollama

import (
	"context"

	"github.com/ndltd-tw/papergraph/pkg/ai"
	"github.com/ndltd-tw/papergraph/pkg/logger"

	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"
)

// minContextWindow is Ollama's default context size. Longer prompts get a
// larger num_ctx so the input is not silently cut.
const minContextWindow = 4096

func (c *OllamaClient) request(prompt string, options ai.GenerateOptions) *api.ChatRequest {
	msgs := make([]api.Message, 0, len(options.SystemPrompts)+1)
	for _, sys := range options.SystemPrompts {
		msgs = append(msgs, api.Message{Role: "system", Content: sys})
	}
	msgs = append(msgs, api.Message{Role: "user", Content: prompt})

	stream := true
	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: msgs,
		Stream:   &stream,
		Options:  map[string]any{"temperature": options.Temperature},
	}
	if options.TopP > 0 {
		req.Options["top_p"] = options.TopP
	}
	if options.MaxOutputTokens > 0 {
		req.Options["num_predict"] = options.MaxOutputTokens
	}

	enc, err := tiktoken.GetEncoding("o200k_base")
	if err != nil {
		logger.Debug("Using default ollama context window", "err", err)
		return req
	}
	tokens := 200 + len(enc.Encode(prompt, nil, nil)) + max(options.MaxOutputTokens, 0)
	if tokens > minContextWindow {
		req.Options["num_ctx"] = tokens
	}
	return req
}

// GenerateStream sends prompt as a single user message and streams the
// answer chunk by chunk.
func (c *OllamaClient) GenerateStream(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (<-chan ai.StreamEvent, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.model,
		Temperature: 1.0,
	}, opts...)

	req := c.request(prompt, options)

	out := make(chan ai.StreamEvent, 16)

	go func() {
		defer close(out)

		err := c.Client.Chat(ctx, req, func(cr api.ChatResponse) error {
			if s := cr.Message.Content; s != "" {
				if !ai.Send(ctx, out, ai.StreamEvent{Type: ai.EventContent, Content: s}) {
					return ctx.Err()
				}
			}
			if cr.Done {
				c.AddMetrics(ai.ModelMetrics{
					InputTokens:  cr.Metrics.PromptEvalCount,
					OutputTokens: cr.Metrics.EvalCount,
					TotalTokens:  cr.Metrics.PromptEvalCount + cr.Metrics.EvalCount,
					DurationMs:   cr.TotalDuration.Milliseconds(),
				})
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			ai.Send(ctx, out, ai.StreamEvent{Type: ai.EventError, Err: err})
		}
	}()

	return out, nil
}
