package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/ndltd-tw/papergraph/pkg/ai"

	"github.com/openai/openai-go/v3"
)

func (c *OpenAIClient) params(prompt string, options ai.GenerateOptions) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(options.SystemPrompts)+1)
	for _, message := range options.SystemPrompts {
		msgs = append(msgs, openai.SystemMessage(message))
	}
	msgs = append(msgs, openai.UserMessage(prompt))

	body := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(options.Model),
		Messages:    msgs,
		Temperature: openai.Float(options.Temperature),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if options.TopP > 0 {
		body.TopP = openai.Float(options.TopP)
	}
	if options.MaxOutputTokens > 0 {
		body.MaxCompletionTokens = openai.Int(int64(options.MaxOutputTokens))
	}
	return body
}

// GenerateStream sends prompt as a single user message and streams the
// answer. A rejected request is returned as an error before any event is
// produced; token usage is added to the client metrics once the stream ends.
func (c *OpenAIClient) GenerateStream(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (<-chan ai.StreamEvent, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.model,
		Temperature: 1.0,
	}, opts...)

	start := time.Now()
	stream := c.Client.Chat.Completions.NewStreaming(ctx, c.params(prompt, options))
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	out := make(chan ai.StreamEvent, 10)

	go func() {
		defer close(out)
		defer stream.Close()

		acc := openai.ChatCompletionAccumulator{}
		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)

			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			if !ai.Send(ctx, out, ai.StreamEvent{Type: ai.EventContent, Content: chunk.Choices[0].Delta.Content}) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			ai.Send(ctx, out, ai.StreamEvent{Type: ai.EventError, Err: err})
			return
		}

		c.AddMetrics(ai.ModelMetrics{
			InputTokens:  int(acc.Usage.PromptTokens),
			OutputTokens: int(acc.Usage.CompletionTokens),
			TotalTokens:  int(acc.Usage.TotalTokens),
			DurationMs:   time.Since(start).Milliseconds(),
		})
	}()

	return out, nil
}
