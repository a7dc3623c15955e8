package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromKeys(t *testing.T) {
	_, err := FromKeys(ProviderAnthropic, "", "")
	assert.ErrorIs(t, err, ErrNoAPIKey)

	c, err := FromKeys(ProviderAnthropic, "a-key", "o-key")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", c.Name())

	c, err = FromKeys(ProviderOpenAI, "a-key", "o-key")
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())

	c, err = FromKeys(ProviderAnthropic, "", "o-key")
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())
}

func TestConstructorsRequireKey(t *testing.T) {
	_, err := NewAnthropicClient("")
	assert.Error(t, err)

	_, err = NewOpenAIClient("")
	assert.Error(t, err)

	c, err := NewClient(ProviderOpenAI, "o-key")
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())

	_, err = NewClient("mistral", "m-key")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestResolveModel(t *testing.T) {
	c, err := NewClient(ProviderAnthropic, "a-key")
	require.NoError(t, err)

	model, err := ResolveModel(c, "")
	require.NoError(t, err)
	assert.Empty(t, model)

	model, err = ResolveModel(c, c.Models()[0])
	require.NoError(t, err)
	assert.Equal(t, c.Models()[0], model)

	_, err = ResolveModel(c, "gpt-4o")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestProviderError(t *testing.T) {
	err := &ProviderError{Provider: ProviderOpenAI, StatusCode: 503, Err: errors.New("overloaded")}
	assert.Equal(t, "openai: status 503: overloaded", err.Error())

	err = &ProviderError{Provider: ProviderAnthropic, Err: ErrEmptyCompletion}
	assert.Equal(t, "anthropic: provider returned no content", err.Error())
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestOpenAIJSONMode(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"summary\":\"ok\"}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
		}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("o-key", srv.URL+"/v1")
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), &CompletionRequest{
		Messages: []ChatMessage{{Role: "user", Content: "summarize"}},
		JSONMode: true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"ok"}`, resp.Content)
	assert.Equal(t, 12, resp.TokensIn)
	assert.Equal(t, 4, resp.TokensOut)

	assert.Equal(t, "gpt-4o-mini", body["model"])
	format, ok := body["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_object", format["type"])
}

func TestOpenAIErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "slow down", "type": "rate_limit"}}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("o-key", srv.URL+"/v1")
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), &CompletionRequest{
		Messages: []ChatMessage{{Role: "user", Content: "hi"}},
	})

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, http.StatusTooManyRequests, provErr.StatusCode)
}

func TestAnthropicJSONPrefill(t *testing.T) {
	var body struct {
		Messages []struct {
			Role    string `json:"role"`
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-20241022",
			"content": [{"type": "text", "text": "\"onboardingPrompt\": \"Hello\"}"}],
			"stop_reason": "end_turn",
			"stop_sequence": null,
			"usage": {"input_tokens": 20, "output_tokens": 6}
		}`))
	}))
	defer srv.Close()

	c, err := NewAnthropicClient("a-key", option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), &CompletionRequest{
		Messages: []ChatMessage{{Role: "user", Content: "greet"}},
		JSONMode: true,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"onboardingPrompt": "Hello"}`, resp.Content)

	require.Len(t, body.Messages, 2)
	assert.Equal(t, "assistant", body.Messages[1].Role)
	assert.Equal(t, "{", body.Messages[1].Content[0].Text)
}

func TestAnthropicRejectsUnknownRole(t *testing.T) {
	c, err := NewAnthropicClient("a-key")
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), &CompletionRequest{
		Messages: []ChatMessage{{Role: "system", Content: "x"}},
	})
	assert.Error(t, err)
}
