package tiktoken

import (
	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts tokens so the engine can keep accumulated transcripts
// within a prompt budget.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// New creates a tokenizer for the given model or encoding name.
func New(name string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		// try by encoding name
		enc, err = tiktoken.GetEncoding(name)
		if err != nil {
			return nil, err
		}
	}
	return &Tokenizer{enc: enc}, nil
}

// CountTokens returns the number of tokens in text.
func (t *Tokenizer) CountTokens(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}
