package session

import (
	"context"
	"time"
)

// DefaultResponseDelay is the simulated latency of the echo responder.
const DefaultResponseDelay = 2 * time.Second

// Responder produces the assistant reply for one submitted text.
type Responder interface {
	Respond(ctx context.Context, text string) (string, error)
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(ctx context.Context, text string) (string, error)

// Respond calls f.
func (f ResponderFunc) Respond(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

// EchoResponder acknowledges the request after a fixed delay. It stands in
// for the navigation tools until they exist.
type EchoResponder struct {
	Delay time.Duration
}

// NewEchoResponder creates an echo responder with the given latency.
func NewEchoResponder(delay time.Duration) *EchoResponder {
	return &EchoResponder{Delay: delay}
}

// Respond waits for the delay and echoes text back.
func (r *EchoResponder) Respond(ctx context.Context, text string) (string, error) {
	if r.Delay > 0 {
		timer := time.NewTimer(r.Delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return EchoReply(text), nil
}

// EchoReply is the deterministic acknowledgement for text.
func EchoReply(text string) string {
	return `I've received your request: "` + text + `". The AI navigation tools are currently under development. Thanks for using AskAtlas!`
}
