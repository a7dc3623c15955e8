package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askatlas/navigation-assistant/internal/llm"
	"github.com/askatlas/navigation-assistant/internal/model"
	"github.com/askatlas/navigation-assistant/pkg/logger"
)

// stubClient implements llm.Client for testing.
type stubClient struct {
	completeFunc func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error)
	calls        []*llm.CompletionRequest
}

func (c *stubClient) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	c.calls = append(c.calls, req)
	if c.completeFunc != nil {
		return c.completeFunc(ctx, req)
	}
	return &llm.CompletionResponse{Content: `{}`, Model: "stub"}, nil
}

func (c *stubClient) Name() string     { return "stub" }
func (c *stubClient) Models() []string { return []string{"stub"} }

var _ llm.Client = (*stubClient)(nil)

func replying(content string) *stubClient {
	return &stubClient{
		completeFunc: func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Content: content, Model: "stub"}, nil
		},
	}
}

func newTestInvoker(t *testing.T, client llm.Client) *Invoker {
	t.Helper()
	reg, err := DefaultRegistry()
	require.NoError(t, err)
	return NewInvoker(client, reg, logger.NewNop())
}

func TestDefaultRegistry(t *testing.T) {
	reg, err := DefaultRegistry()
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{OnboardingFlow, HistorySummaryFlow}, reg.Names())
}

func TestGenerateOnboardingPrompt(t *testing.T) {
	client := replying(`{"onboardingPrompt": "Hi! Ask me for directions."}`)
	inv := newTestInvoker(t, client)

	text, err := inv.GenerateOnboardingPrompt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Hi! Ask me for directions.", text)

	require.Len(t, client.calls, 1)
	req := client.calls[0]
	assert.True(t, req.JSONMode)
	require.Len(t, req.Messages, 1)
	prompt := req.Messages[0].Content
	assert.Contains(t, prompt, "maximum 100 words")
	assert.Contains(t, prompt, "'Go Home'")
	assert.Contains(t, prompt, "'Go to Work'")
	assert.Contains(t, prompt, "account settings")
	assert.Contains(t, prompt, `"onboardingPrompt"`)
}

func TestOnboardingAcceptsFencedJSON(t *testing.T) {
	inv := newTestInvoker(t, replying("```json\n{\"onboardingPrompt\": \"Welcome aboard\"}\n```"))

	text, err := inv.GenerateOnboardingPrompt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Welcome aboard", text)
}

func TestOnboardingInvalidOutput(t *testing.T) {
	cases := map[string]string{
		"missing field": `{"greeting": "hello"}`,
		"wrong type":    `{"onboardingPrompt": 42}`,
		"empty string":  `{"onboardingPrompt": ""}`,
		"not json":      `Welcome to the app!`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			inv := newTestInvoker(t, replying(content))

			text, err := inv.GenerateOnboardingPrompt(context.Background())
			assert.Empty(t, text)

			var outErr *InvalidOutputError
			require.ErrorAs(t, err, &outErr)
			assert.Equal(t, OnboardingFlow, outErr.Flow)
		})
	}
}

func TestProviderFailureIsGenerationError(t *testing.T) {
	boom := errors.New("connection reset")
	client := &stubClient{
		completeFunc: func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return nil, boom
		},
	}
	inv := newTestInvoker(t, client)

	_, err := inv.GenerateOnboardingPrompt(context.Background())

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.ErrorIs(t, err, boom)
}

func TestNilProviderIsGenerationError(t *testing.T) {
	inv := newTestInvoker(t, nil)

	_, err := inv.GenerateOnboardingPrompt(context.Background())

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestSummarizeRendersEveryEntryInOrder(t *testing.T) {
	client := replying(`{"summary": "You visit the Park often."}`)
	inv := newTestInvoker(t, client)

	history := []model.NavigationHistoryEntry{
		{Timestamp: "t1", Location: "Park"},
		{Timestamp: "t2", Location: "Park"},
		{Timestamp: "t3", Location: "Office"},
	}

	summary, err := inv.SummarizeNavigationHistory(context.Background(), history)
	require.NoError(t, err)
	assert.Equal(t, "You visit the Park often.", summary)

	require.Len(t, client.calls, 1)
	prompt := client.calls[0].Messages[0].Content

	lines := []string{
		"- Timestamp: t1, Location: Park",
		"- Timestamp: t2, Location: Park",
		"- Timestamp: t3, Location: Office",
	}
	last := -1
	for _, line := range lines {
		idx := strings.Index(prompt, line)
		require.GreaterOrEqual(t, idx, 0, "missing %q", line)
		assert.Greater(t, idx, last, "%q out of order", line)
		last = idx
	}
	assert.Equal(t, 3, strings.Count(prompt, "- Timestamp:"))
}

func TestSummarizeRejectsEmptyHistory(t *testing.T) {
	client := replying(`{"summary": "nothing"}`)
	inv := newTestInvoker(t, client)

	for _, history := range [][]model.NavigationHistoryEntry{nil, {}} {
		_, err := inv.SummarizeNavigationHistory(context.Background(), history)

		var inErr *InvalidInputError
		require.ErrorAs(t, err, &inErr)
	}
	assert.Empty(t, client.calls, "provider must not be called for invalid input")
}

func TestInvokeRejectsMalformedRecords(t *testing.T) {
	client := replying(`{"summary": "nothing"}`)
	inv := newTestInvoker(t, client)

	_, err := inv.Invoke(context.Background(), HistorySummaryFlow, []map[string]any{
		{"timestamp": "t1"},
	})

	var inErr *InvalidInputError
	require.ErrorAs(t, err, &inErr)
	assert.Empty(t, client.calls)
}

func TestInvokeUnknownFlow(t *testing.T) {
	inv := newTestInvoker(t, replying(`{}`))

	_, err := inv.Invoke(context.Background(), "planRoute", nil)
	assert.ErrorIs(t, err, ErrUnknownFlow)
}

func TestParseRegistryErrors(t *testing.T) {
	_, err := ParseRegistry([]byte("flows: [ {"))
	assert.Error(t, err)

	_, err = ParseRegistry([]byte(`
flows:
  - name: noTemplate
    input_schema: {type: object}
    output_schema: {type: object}
`))
	assert.Error(t, err)

	_, err = ParseRegistry([]byte(`
flows:
  - name: twice
    input_schema: {type: object}
    output_schema: {type: object}
    template: hi
  - name: twice
    input_schema: {type: object}
    output_schema: {type: object}
    template: hi
`))
	assert.Error(t, err)
}

func TestExtractJSONObject(t *testing.T) {
	got, err := ExtractJSONObject("Sure! Here it is: {\n  \"summary\": \"ok\"\n} Hope that helps.")
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"ok"}`, string(got))

	_, err = ExtractJSONObject("no braces at all")
	assert.Error(t, err)

	_, err = ExtractJSONObject("{not: json}")
	assert.Error(t, err)
}

func TestProviderOptionsApplyModelAndTokenCap(t *testing.T) {
	client := replying(`{"onboardingPrompt": "Hello"}`)
	reg, err := DefaultRegistry()
	require.NoError(t, err)

	opts, err := ProviderOptions(client, "stub", 256)
	require.NoError(t, err)

	inv := NewInvoker(client, reg, logger.NewNop(), opts...)
	_, err = inv.GenerateOnboardingPrompt(context.Background())
	require.NoError(t, err)

	require.Len(t, client.calls, 1)
	assert.Equal(t, "stub", client.calls[0].Model)
	assert.Equal(t, 256, client.calls[0].MaxTokens)
}

func TestProviderOptionsDropUnknownModel(t *testing.T) {
	client := replying(`{"onboardingPrompt": "Hello"}`)
	reg, err := DefaultRegistry()
	require.NoError(t, err)

	opts, err := ProviderOptions(client, "gpt-9", 0)
	assert.ErrorIs(t, err, llm.ErrUnknownModel)

	inv := NewInvoker(client, reg, logger.NewNop(), opts...)
	_, err = inv.GenerateOnboardingPrompt(context.Background())
	require.NoError(t, err)

	require.Len(t, client.calls, 1)
	assert.Empty(t, client.calls[0].Model)
	assert.Equal(t, 1024, client.calls[0].MaxTokens)
}
