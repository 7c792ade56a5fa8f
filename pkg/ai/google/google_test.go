package google

import (
	"testing"

	"github.com/ndltd-tw/papergraph/pkg/ai"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestGenerationConfig(t *testing.T) {
	cfg := generationConfig(ai.ApplyOptions(ai.GenerateOptions{
		Temperature:     1.0,
		TopP:            0.7,
		MaxOutputTokens: 2048,
	}, ai.WithSystemPrompts("be brief")))

	require.NotNil(t, cfg.Temperature)
	assert.Equal(t, float32(1.0), *cfg.Temperature)
	require.NotNil(t, cfg.TopP)
	assert.Equal(t, float32(0.7), *cfg.TopP)
	assert.Equal(t, int32(2048), cfg.MaxOutputTokens)
	assert.Equal(t, int32(1), cfg.CandidateCount)

	require.Len(t, cfg.SafetySettings, 4)
	for _, s := range cfg.SafetySettings {
		assert.Equal(t, genai.HarmBlockThresholdOff, s.Threshold)
	}
	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "be brief", cfg.SystemInstruction.Parts[0].Text)
}

func TestChunkText(t *testing.T) {
	chunk := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "thinking...", Thought: true},
				{Text: "主要文章"},
				{Text: "比較"},
			}},
		}},
	}
	assert.Equal(t, "主要文章比較", chunkText(chunk))
	assert.Empty(t, chunkText(&genai.GenerateContentResponse{}))
	assert.Empty(t, chunkText(nil))
}

func TestNewGeminiClient_RequiresKey(t *testing.T) {
	_, err := NewGeminiClient(t.Context(), NewGeminiClientParams{})
	assert.Error(t, err)
}
