// Package gemini adapts the official Google Generative AI SDK to the
// llm.Client contract.
package gemini

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	cserrors "github.com/citeseek/citeseek/errors"
	"github.com/citeseek/citeseek/message"
)

// Config holds Gemini provider configuration
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int32
	Temperature float32
}

// DefaultConfig returns default Gemini configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       "gemini-1.5-flash",
		MaxTokens:   2048,
		Temperature: 0.7,
	}
}

// Provider implements llm.Client and llm.StreamClient for Google Gemini.
type Provider struct {
	config *Config
	client *genai.Client
}

// New creates a new Gemini provider. The context covers client setup only.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig("")
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key not configured")
	}
	if config.Model == "" {
		config.Model = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}

	return &Provider{config: config, client: client}, nil
}

// Close releases the underlying API client.
func (p *Provider) Close() error {
	return p.client.Close()
}

// model builds a configured handle. System messages become the system
// instruction; Gemini has no system role in the content list.
func (p *Provider) model(messages []*message.Message) (*genai.GenerativeModel, []*genai.Content, genai.Part) {
	model := p.client.GenerativeModel(p.config.Model)
	if p.config.Temperature > 0 {
		model.SetTemperature(p.config.Temperature)
	}
	if p.config.MaxTokens > 0 {
		model.SetMaxOutputTokens(p.config.MaxTokens)
	}

	var system []string
	var contents []*genai.Content
	for _, msg := range messages {
		switch msg.Role {
		case message.RoleSystem:
			system = append(system, msg.Text())
		case message.RoleUser:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(msg.Text())},
			})
		case message.RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  "model",
				Parts: []genai.Part{genai.Text(msg.Text())},
			})
		}
	}
	if len(system) > 0 {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(strings.Join(system, "\n"))},
		}
	}

	if len(contents) == 0 {
		return model, nil, genai.Text("")
	}
	last := contents[len(contents)-1]
	history := contents[:len(contents)-1]
	prompt := last.Parts[0]
	return model, history, prompt
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}

// Generate implements llm.Client.
func (p *Provider) Generate(ctx context.Context, messages []*message.Message) (*message.Message, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("messages cannot be empty")
	}

	model, history, prompt := p.model(messages)
	chat := model.StartChat()
	chat.History = history

	resp, err := chat.SendMessage(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w: %v", cserrors.ErrProviderUnavailable, err)
	}

	responseMsg := message.NewMessage(message.RoleAssistant, responseText(resp))
	responseMsg.Completed = true
	return responseMsg, nil
}

// SetTemperature updates the temperature setting
func (p *Provider) SetTemperature(temp float64) {
	p.config.Temperature = float32(temp)
}

// SetMaxTokens updates the max tokens setting
func (p *Provider) SetMaxTokens(max int64) {
	p.config.MaxTokens = int32(max)
}

// SetModel updates the model
func (p *Provider) SetModel(model string) {
	p.config.Model = model
}

// GenerateStream implements llm.StreamClient.
func (p *Provider) GenerateStream(ctx context.Context, messages []*message.Message) iter.Seq2[*message.Message, error] {
	return func(yield func(*message.Message, error) bool) {
		if len(messages) == 0 {
			yield(nil, fmt.Errorf("messages cannot be empty"))
			return
		}

		model, history, prompt := p.model(messages)
		chat := model.StartChat()
		chat.History = history

		stream := chat.SendMessageStream(ctx, prompt)

		var full strings.Builder
		for {
			resp, err := stream.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				yield(nil, fmt.Errorf("Gemini streaming error: %w: %v", cserrors.ErrProviderUnavailable, err))
				return
			}
			text := responseText(resp)
			if text == "" {
				continue
			}
			full.WriteString(text)
			if !yield(message.NewMessage(message.RoleAssistant, text), nil) {
				return
			}
		}

		finalMsg := message.NewMessage(message.RoleAssistant, full.String())
		finalMsg.Completed = true
		yield(finalMsg, nil)
	}
}
