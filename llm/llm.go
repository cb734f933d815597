// Package llm defines the provider contract consumed by the search core.
// Concrete providers live under contrib/provider and are selected by explicit
// configuration at startup, never by runtime string dispatch.
package llm

import (
	"context"
	"iter"

	"github.com/citeseek/citeseek/message"
)

// Client defines the interface for LLM providers
type Client interface {
	// Generate generates a response from the LLM
	Generate(ctx context.Context, messages []*message.Message) (*message.Message, error)

	// SetTemperature updates the temperature setting for generation
	SetTemperature(temp float64)

	// SetMaxTokens updates the maximum tokens limit for generation
	SetMaxTokens(max int64)

	// SetModel updates the model to use for generation
	SetModel(model string)
}

// StreamClient is implemented by providers that support token streaming.
// The sequence yields partial assistant messages; the final message carries
// Completed=true with the full accumulated content.
type StreamClient interface {
	Client

	// GenerateStream generates a response with token streaming
	GenerateStream(ctx context.Context, messages []*message.Message) iter.Seq2[*message.Message, error]
}
