package summary

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Truncator shortens text to a token budget.
type Truncator interface {
	Truncate(text string, maxTokens int) string
}

// TiktokenTruncator counts tokens with a tiktoken encoding.
type TiktokenTruncator struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenTruncator loads the named encoding, e.g. "o200k_base".
func NewTiktokenTruncator(encoding string) (*TiktokenTruncator, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s encoding: %w", encoding, err)
	}
	return &TiktokenTruncator{enc: enc}, nil
}

func (t *TiktokenTruncator) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	tokens := t.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return t.enc.Decode(tokens[:maxTokens])
}
