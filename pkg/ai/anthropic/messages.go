package anthropic

import (
	"context"
	"fmt"
	"time"

	"github.com/ndltd-tw/papergraph/pkg/ai"

	"github.com/anthropics/anthropic-sdk-go"
)

func (c *AnthropicClient) params(prompt string, options ai.GenerateOptions) anthropic.MessageNewParams {
	body := anthropic.MessageNewParams{
		Model:     anthropic.Model(options.Model),
		MaxTokens: int64(options.MaxOutputTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if body.MaxTokens <= 0 {
		body.MaxTokens = defaultMaxTokens
	}
	for _, sys := range options.SystemPrompts {
		body.System = append(body.System, anthropic.TextBlockParam{Text: sys})
	}
	if options.Temperature > 0 {
		body.Temperature = anthropic.Float(options.Temperature)
	}
	if options.TopP > 0 {
		body.TopP = anthropic.Float(options.TopP)
	}
	return body
}

// GenerateStream sends prompt as a single user message and streams the
// answer. A rejected request is returned as an error before any event is
// produced; token usage is added to the client metrics once the stream ends.
func (c *AnthropicClient) GenerateStream(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (<-chan ai.StreamEvent, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:           c.model,
		MaxOutputTokens: defaultMaxTokens,
	}, opts...)

	start := time.Now()
	stream := c.Client.Messages.NewStreaming(ctx, c.params(prompt, options))
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}
	out := make(chan ai.StreamEvent, 10)

	go func() {
		defer close(out)
		defer stream.Close()

		message := anthropic.Message{}
		for stream.Next() {
			event := stream.Current()
			if err := message.Accumulate(event); err != nil {
				ai.Send(ctx, out, ai.StreamEvent{Type: ai.EventError, Err: err})
				return
			}

			delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			text, ok := delta.Delta.AsAny().(anthropic.TextDelta)
			if !ok || text.Text == "" {
				continue
			}
			if !ai.Send(ctx, out, ai.StreamEvent{Type: ai.EventContent, Content: text.Text}) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			if ctx.Err() == nil {
				ai.Send(ctx, out, ai.StreamEvent{Type: ai.EventError, Err: err})
			}
			return
		}

		c.AddMetrics(ai.ModelMetrics{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
			DurationMs:   time.Since(start).Milliseconds(),
		})
	}()

	return out, nil
}
