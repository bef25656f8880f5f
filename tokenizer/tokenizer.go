// Package tokenizer counts tokens for budgeting LLM calls and metrics.
package tokenizer

import (
	"github.com/pkoukk/tiktoken-go"
)

// Counter reports how many model tokens a piece of text occupies.
type Counter interface {
	CountTokens(text string) int
}

type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

var _ Counter = (*Tiktoken)(nil)

// NewTiktoken resolves an encoding by model name, falling back to treating
// the name as an encoding name (e.g. "cl100k_base").
func NewTiktoken(name string) (*Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		enc, err = tiktoken.GetEncoding(name)
		if err != nil {
			return nil, err
		}
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *Tiktoken) CountTokens(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

func (t *Tiktoken) Decode(ids []int) string {
	return t.enc.Decode(ids)
}
