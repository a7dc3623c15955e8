// Package events fans session events out to stream subscribers.
package events

import (
	"context"
	"errors"
	"sync"

	"github.com/askatlas/navigation-assistant/internal/model"
)

// ErrClosed is returned by a bus after Close.
var ErrClosed = errors.New("event bus closed")

// Handler receives events for one session.
type Handler func(model.SessionEvent)

// Bus delivers session events to subscribers of that session.
type Bus interface {
	Publish(ctx context.Context, event model.SessionEvent) error
	Subscribe(sessionID string, h Handler) (unsubscribe func(), err error)
	Close() error
}

// LocalBus is an in-process Bus. Handlers run synchronously on the
// publishing goroutine, so per-session order is preserved.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[string]map[int]Handler
	nextID int
	closed bool
}

// NewLocalBus creates an empty in-process bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string]map[int]Handler)}
}

// Publish delivers event to every subscriber of its session.
func (b *LocalBus) Publish(ctx context.Context, event model.SessionEvent) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	handlers := make([]Handler, 0, len(b.subs[event.SessionID]))
	for _, h := range b.subs[event.SessionID] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
	return nil
}

// Subscribe registers h for events of sessionID.
func (b *LocalBus) Subscribe(sessionID string, h Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	id := b.nextID
	b.nextID++
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[int]Handler)
	}
	b.subs[sessionID][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[sessionID], id)
		if len(b.subs[sessionID]) == 0 {
			delete(b.subs, sessionID)
		}
	}, nil
}

// Close drops all subscribers.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[string]map[int]Handler)
	return nil
}
