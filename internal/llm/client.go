// Package llm provides LLM client interfaces and implementations.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
	// JSONMode asks the provider to answer with a single JSON object.
	JSONMode bool
}

// ChatMessage represents a chat message for LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models() []string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

var (
	// ErrNoAPIKey is returned when no provider credentials are configured.
	ErrNoAPIKey = errors.New("no LLM API key configured")
	// ErrEmptyCompletion is returned when the provider answers without text.
	ErrEmptyCompletion = errors.New("provider returned no content")
	// ErrUnknownProvider is returned by NewClient for unsupported providers.
	ErrUnknownProvider = errors.New("unknown LLM provider")
	// ErrUnknownModel is returned when a configured model is not offered by the provider.
	ErrUnknownModel = errors.New("unknown LLM model")
)

// ProviderError wraps a failed provider call. StatusCode is zero when the
// request never got an HTTP response.
type ProviderError struct {
	Provider   Provider
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewClient creates a new LLM client based on provider.
func NewClient(provider Provider, apiKey string) (Client, error) {
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey)
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
}

// FromKeys picks a provider from the available API keys, preferring the
// requested default when its key is present.
func FromKeys(preferred Provider, anthropicKey, openAIKey string) (Client, error) {
	switch {
	case preferred == ProviderOpenAI && openAIKey != "":
		return NewClient(ProviderOpenAI, openAIKey)
	case anthropicKey != "":
		return NewClient(ProviderAnthropic, anthropicKey)
	case openAIKey != "":
		return NewClient(ProviderOpenAI, openAIKey)
	default:
		return nil, ErrNoAPIKey
	}
}

// ResolveModel checks a configured model name against the models c offers.
// An empty name selects the provider default and resolves to "".
func ResolveModel(c Client, name string) (string, error) {
	if name == "" {
		return "", nil
	}
	for _, m := range c.Models() {
		if m == name {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %s does not serve %s", ErrUnknownModel, c.Name(), name)
}
