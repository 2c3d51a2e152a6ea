// Package chat implements the avatar's text conversation engine: plain chat
// replies grounded by document retrieval and live sensor capabilities, plus
// the debate-summary generator. Completions run against any OpenAI-compatible
// endpoint through github.com/mozilla-ai/any-llm-go.
package chat

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"
)

// Message is one chat message handed to a Completer.
type Message struct {
	Role    string // "system", "user", or "assistant"
	Content string
}

// Completer produces one completion for a message sequence.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, messages []Message) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}

// Compile-time assertion that AnyLLM satisfies Completer.
var _ Completer = (*AnyLLM)(nil)

// AnyLLM is a Completer backed by an any-llm-go provider. A custom base URL
// points it at OpenAI-compatible gateways such as the GWDG hosted models.
type AnyLLM struct {
	backend anyllmlib.Provider
	model   string
}

// NewAnyLLM creates an AnyLLM completer for the named provider backend.
//
// providerName is one of: "openai", "mistral", "ollama", "groq". model is the
// model identifier at that provider. apiKey and baseURL may be empty, in which
// case the backend falls back to its environment variables and default
// endpoint.
func NewAnyLLM(providerName, model, apiKey, baseURL string) (*AnyLLM, error) {
	if model == "" {
		return nil, fmt.Errorf("chat: model must not be empty")
	}

	var opts []anyllmlib.Option
	if apiKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(baseURL))
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("chat: create %q backend: %w", providerName, err)
	}
	return &AnyLLM{backend: backend, model: model}, nil
}

// createBackend creates the underlying any-llm-go provider for the given
// provider name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai", "":
		return anyllmoai.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "groq":
		return groq.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, mistral, ollama, groq", providerName)
	}
}

// Complete implements Completer.
func (c *AnyLLM) Complete(ctx context.Context, messages []Message) (string, error) {
	params := anyllmlib.CompletionParams{Model: c.model}
	for _, m := range messages {
		params.Messages = append(params.Messages, anyllmlib.Message{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := c.backend.Completion(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat: empty choices in response")
	}
	return resp.Choices[0].Message.ContentString(), nil
}
