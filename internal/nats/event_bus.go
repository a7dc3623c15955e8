package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/askatlas/navigation-assistant/internal/events"
	"github.com/askatlas/navigation-assistant/internal/model"
	"github.com/askatlas/navigation-assistant/pkg/logger"
)

// SubjectPrefix is the prefix for all session subjects.
const SubjectPrefix = "askatlas.session"

// EventSubject returns the subject carrying events for a session.
func EventSubject(sessionID string) string {
	return fmt.Sprintf("%s.%s.events", SubjectPrefix, sessionID)
}

// SessionFromSubject extracts the session ID from an event subject.
func SessionFromSubject(subject string) (string, bool) {
	rest, ok := strings.CutPrefix(subject, SubjectPrefix+".")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, ".events")
	if !ok || id == "" || strings.Contains(id, ".") {
		return "", false
	}
	return id, true
}

// EventBus carries session events as JSON over core NATS subjects. Sessions
// live in the process that created them; the broker only moves their events
// from the publishing session to that process's stream subscribers.
type EventBus struct {
	client *Client
	logger *logger.Logger

	mu     sync.Mutex
	subs   map[*nats.Subscription]struct{}
	closed bool
}

var _ events.Bus = (*EventBus)(nil)

// NewEventBus creates a bus over an established connection.
func NewEventBus(client *Client, log *logger.Logger) *EventBus {
	return &EventBus{
		client: client,
		logger: log,
		subs:   make(map[*nats.Subscription]struct{}),
	}
}

// Publish sends event on its session subject.
func (b *EventBus) Publish(ctx context.Context, event model.SessionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.client.Conn().Publish(EventSubject(event.SessionID), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe delivers events for sessionID to h. NATS runs each
// subscription's callbacks on one goroutine, so order is kept.
func (b *EventBus) Subscribe(sessionID string, h events.Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, events.ErrClosed
	}

	sub, err := b.client.Conn().Subscribe(EventSubject(sessionID), func(msg *nats.Msg) {
		event, err := decodeMessage(msg.Subject, msg.Data)
		if err != nil {
			b.logger.Warn("dropping malformed session event",
				zap.String("subject", msg.Subject),
				zap.Error(err),
			)
			return
		}
		h(event)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	b.subs[sub] = struct{}{}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[sub]; !ok {
			return
		}
		delete(b.subs, sub)
		if err := sub.Unsubscribe(); err != nil {
			b.logger.Debug("unsubscribe failed", zap.Error(err))
		}
	}, nil
}

// Close removes every subscription. The connection stays open.
func (b *EventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = make(map[*nats.Subscription]struct{})
	return nil
}

// decodeMessage parses an event and checks that it belongs to the session
// named by its subject.
func decodeMessage(subject string, data []byte) (model.SessionEvent, error) {
	id, ok := SessionFromSubject(subject)
	if !ok {
		return model.SessionEvent{}, fmt.Errorf("unexpected subject %q", subject)
	}
	event, err := DecodeEvent(data)
	if err != nil {
		return event, err
	}
	if event.SessionID != id {
		return event, fmt.Errorf("event for session %s published on %s", event.SessionID, subject)
	}
	return event, nil
}

// DecodeEvent parses a published session event.
func DecodeEvent(data []byte) (model.SessionEvent, error) {
	var event model.SessionEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return event, err
	}
	if event.SessionID == "" || event.Type == "" {
		return event, fmt.Errorf("event is missing session_id or type")
	}
	return event, nil
}
