// Package tiktoken adapts the tiktoken-go encoder to the tokenizer contract,
// giving exact token counts for OpenAI model families.
package tiktoken

import (
	"github.com/pkoukk/tiktoken-go"

	tok "github.com/citeseek/citeseek/tokenizer"
)

var _ tok.Tokenizer = (*Tokenizer)(nil)

type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// New resolves an encoding by model name, falling back to encoding name.
func New(name string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		enc, err = tiktoken.GetEncoding(name)
		if err != nil {
			return nil, err
		}
	}
	return &Tokenizer{enc: enc}, nil
}

func (t *Tokenizer) CountTokens(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}
