package flow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/askatlas/navigation-assistant/internal/llm"
	"github.com/askatlas/navigation-assistant/internal/model"
	"github.com/askatlas/navigation-assistant/pkg/logger"
	"github.com/askatlas/navigation-assistant/pkg/metrics"
)

const tracerName = "github.com/askatlas/navigation-assistant/internal/flow"

// Invoker runs flows against an LLM provider. It keeps no state between calls.
type Invoker struct {
	provider  llm.Client
	registry  *Registry
	model     string
	maxTokens int
	logger    *logger.Logger
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithModel overrides the provider's default model.
func WithModel(model string) Option {
	return func(i *Invoker) { i.model = model }
}

// WithMaxTokens caps the provider response length.
func WithMaxTokens(n int) Option {
	return func(i *Invoker) { i.maxTokens = n }
}

// ProviderOptions builds the options for a configured model and token cap.
// An unknown model is reported and left out so the provider default applies.
func ProviderOptions(provider llm.Client, model string, maxTokens int) ([]Option, error) {
	var opts []Option
	if maxTokens > 0 {
		opts = append(opts, WithMaxTokens(maxTokens))
	}
	if provider == nil || model == "" {
		return opts, nil
	}

	resolved, err := llm.ResolveModel(provider, model)
	if err != nil {
		return opts, err
	}
	return append(opts, WithModel(resolved)), nil
}

// NewInvoker creates an invoker. A nil provider makes every call fail with a
// GenerationError.
func NewInvoker(provider llm.Client, registry *Registry, log *logger.Logger, opts ...Option) *Invoker {
	i := &Invoker{
		provider:  provider,
		registry:  registry,
		maxTokens: 1024,
		logger:    log,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Invoke validates input, performs one provider call and returns the
// validated output record.
func (i *Invoker) Invoke(ctx context.Context, name string, input any) (map[string]any, error) {
	f, ok := i.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFlow, name)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "flow.invoke")
	span.SetAttributes(attribute.String("flow.name", name))
	defer span.End()

	start := time.Now()
	out, err := i.invoke(ctx, f, input)

	outcome := outcomeOf(err)
	metrics.RecordFlow(name, outcome, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		i.logger.Warn("flow invocation failed",
			zap.String("flow", name),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
		return nil, err
	}

	i.logger.Debug("flow invocation succeeded",
		zap.String("flow", name),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}

func (i *Invoker) invoke(ctx context.Context, f *Flow, input any) (map[string]any, error) {
	if input == nil {
		input = map[string]any{}
	}

	raw, err := json.Marshal(input)
	if err != nil {
		return nil, &InvalidInputError{Flow: f.Name, Err: err}
	}
	if err := f.ValidateInput(raw); err != nil {
		return nil, &InvalidInputError{Flow: f.Name, Err: err}
	}

	// Templates see the JSON view of the input so field names match the schema.
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &InvalidInputError{Flow: f.Name, Err: err}
	}

	prompt, err := f.Prompt(doc)
	if err != nil {
		return nil, &InvalidInputError{Flow: f.Name, Err: fmt.Errorf("render template: %w", err)}
	}

	if i.provider == nil {
		return nil, &GenerationError{Flow: f.Name, Err: ErrNoProvider}
	}

	resp, err := i.provider.Complete(ctx, &llm.CompletionRequest{
		Model:     i.model,
		Messages:  []llm.ChatMessage{{Role: string(model.RoleUser), Content: prompt}},
		MaxTokens: i.maxTokens,
		JSONMode:  true,
	})
	if err != nil {
		return nil, &GenerationError{Flow: f.Name, Err: err}
	}
	metrics.RecordTokens(resp.Model, resp.TokensIn, resp.TokensOut)

	candidate, err := ExtractJSONObject(resp.Content)
	if err != nil {
		return nil, &InvalidOutputError{Flow: f.Name, Err: err}
	}
	if err := f.ValidateOutput(candidate); err != nil {
		return nil, &InvalidOutputError{Flow: f.Name, Err: err}
	}

	var out map[string]any
	if err := json.Unmarshal(candidate, &out); err != nil {
		return nil, &InvalidOutputError{Flow: f.Name, Err: err}
	}

	return out, nil
}

// GenerateOnboardingPrompt produces the greeting shown when a session starts.
func (i *Invoker) GenerateOnboardingPrompt(ctx context.Context) (string, error) {
	out, err := i.Invoke(ctx, OnboardingFlow, map[string]any{})
	if err != nil {
		return "", err
	}
	return stringField(OnboardingFlow, out, "onboardingPrompt")
}

// SummarizeNavigationHistory summarizes visits, preserving their order in the prompt.
func (i *Invoker) SummarizeNavigationHistory(ctx context.Context, history []model.NavigationHistoryEntry) (string, error) {
	if history == nil {
		history = []model.NavigationHistoryEntry{}
	}
	out, err := i.Invoke(ctx, HistorySummaryFlow, history)
	if err != nil {
		return "", err
	}
	return stringField(HistorySummaryFlow, out, "summary")
}

func stringField(flow string, out map[string]any, field string) (string, error) {
	s, ok := out[field].(string)
	if !ok {
		return "", &InvalidOutputError{Flow: flow, Err: fmt.Errorf("field %s is not a string", field)}
	}
	return s, nil
}

// ExtractJSONObject pulls the first JSON object out of model text, tolerating
// markdown code fences and surrounding prose.
func ExtractJSONObject(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, errors.New("no JSON object found in response")
	}

	candidate := []byte(text[start : end+1])
	if !json.Valid(candidate) {
		return nil, errors.New("invalid JSON in response")
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, candidate); err != nil {
		return nil, err
	}
	return compact.Bytes(), nil
}

func outcomeOf(err error) string {
	var (
		inErr  *InvalidInputError
		outErr *InvalidOutputError
		genErr *GenerationError
	)
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &inErr):
		return "invalid_input"
	case errors.As(err, &outErr):
		return "invalid_output"
	case errors.As(err, &genErr):
		return "generation_error"
	default:
		return "error"
	}
}
