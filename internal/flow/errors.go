package flow

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownFlow is returned when no flow is registered under a name.
	ErrUnknownFlow = errors.New("unknown flow")

	// ErrNoProvider is wrapped in a GenerationError when no LLM client is configured.
	ErrNoProvider = errors.New("no generation provider configured")
)

// InvalidInputError reports input that does not satisfy a flow's input schema.
type InvalidInputError struct {
	Flow string
	Err  error
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("flow %s: invalid input: %v", e.Flow, e.Err)
}

func (e *InvalidInputError) Unwrap() error { return e.Err }

// InvalidOutputError reports a provider result that does not satisfy a flow's
// output schema.
type InvalidOutputError struct {
	Flow string
	Err  error
}

func (e *InvalidOutputError) Error() string {
	return fmt.Sprintf("flow %s: invalid output: %v", e.Flow, e.Err)
}

func (e *InvalidOutputError) Unwrap() error { return e.Err }

// GenerationError reports a transport or provider failure.
type GenerationError struct {
	Flow string
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("flow %s: generation failed: %v", e.Flow, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
