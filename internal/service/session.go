// Package service provides business logic for the navigation assistant.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/askatlas/navigation-assistant/internal/events"
	"github.com/askatlas/navigation-assistant/internal/model"
	"github.com/askatlas/navigation-assistant/internal/session"
	"github.com/askatlas/navigation-assistant/pkg/logger"
	"github.com/askatlas/navigation-assistant/pkg/metrics"
)

// ErrSessionNotFound is returned for unknown sessions and sessions owned by
// another user.
var ErrSessionNotFound = errors.New("session not found")

// SessionOptions tunes sessions created by the service.
type SessionOptions struct {
	PendingTimeout    time.Duration
	OnboardingTimeout time.Duration
}

type sessionEntry struct {
	session     *session.Session
	userID      string
	unsubscribe func()
}

// SessionService owns live conversation sessions and forwards their events
// to the bus.
type SessionService struct {
	onboarding session.OnboardingSource
	responder  session.Responder
	bus        events.Bus
	opts       SessionOptions
	logger     *logger.Logger

	// In-memory only; sessions end with the process
	sessions map[string]*sessionEntry
	mu       sync.RWMutex
}

// NewSessionService creates a session service.
func NewSessionService(
	onboarding session.OnboardingSource,
	responder session.Responder,
	bus events.Bus,
	opts SessionOptions,
	log *logger.Logger,
) *SessionService {
	if opts.OnboardingTimeout <= 0 {
		opts.OnboardingTimeout = 30 * time.Second
	}
	return &SessionService{
		onboarding: onboarding,
		responder:  responder,
		bus:        bus,
		opts:       opts,
		logger:     log,
		sessions:   make(map[string]*sessionEntry),
	}
}

// Create starts a session for userID. The greeting is produced in the
// background; the returned snapshot is usually still initializing.
func (s *SessionService) Create(ctx context.Context, userID string) (model.SessionSnapshot, error) {
	sess := session.New("", session.Config{
		Onboarding:     s.onboarding,
		Responder:      s.responder,
		PendingTimeout: s.opts.PendingTimeout,
		Logger:         s.logger,
	})

	entry := &sessionEntry{session: sess, userID: userID}
	entry.unsubscribe = sess.Subscribe(func(ev model.SessionEvent) {
		if err := s.bus.Publish(context.Background(), ev); err != nil {
			s.logger.Warn("failed to publish session event",
				zap.String("session_id", ev.SessionID),
				zap.String("type", string(ev.Type)),
				zap.Error(err),
			)
		}
	})

	s.mu.Lock()
	s.sessions[sess.ID()] = entry
	s.mu.Unlock()
	metrics.SessionsActive.Inc()

	s.logger.Info("session created",
		zap.String("session_id", sess.ID()),
		zap.String("user_id", userID),
	)

	go func() {
		startCtx, cancel := context.WithTimeout(context.Background(), s.opts.OnboardingTimeout)
		defer cancel()
		if err := sess.Start(startCtx); err != nil && !errors.Is(err, session.ErrClosed) {
			s.logger.Error("session start failed", zap.String("session_id", sess.ID()), zap.Error(err))
		}
	}()

	return s.snapshot(entry), nil
}

func (s *SessionService) get(userID, sessionID string) (*sessionEntry, error) {
	s.mu.RLock()
	entry, exists := s.sessions[sessionID]
	s.mu.RUnlock()

	if !exists || entry.userID != userID {
		return nil, ErrSessionNotFound
	}
	return entry, nil
}

func (s *SessionService) snapshot(entry *sessionEntry) model.SessionSnapshot {
	snap := entry.session.Snapshot()
	snap.UserID = entry.userID
	return snap
}

// Get returns a snapshot of a session.
func (s *SessionService) Get(ctx context.Context, userID, sessionID string) (model.SessionSnapshot, error) {
	entry, err := s.get(userID, sessionID)
	if err != nil {
		return model.SessionSnapshot{}, err
	}
	return s.snapshot(entry), nil
}

// WaitReady blocks until the session accepts input or ctx ends.
func (s *SessionService) WaitReady(ctx context.Context, userID, sessionID string) error {
	entry, err := s.get(userID, sessionID)
	if err != nil {
		return err
	}
	return entry.session.WaitReady(ctx)
}

// Submit forwards user input to a session and returns the resulting state.
func (s *SessionService) Submit(ctx context.Context, userID, sessionID, text string) (session.State, error) {
	entry, err := s.get(userID, sessionID)
	if err != nil {
		return "", err
	}
	if err := entry.session.Submit(text); err != nil {
		return entry.session.State(), err
	}
	return entry.session.State(), nil
}

// QuickAction triggers a predefined request on a session.
func (s *SessionService) QuickAction(ctx context.Context, userID, sessionID string, action session.QuickAction) (session.State, error) {
	entry, err := s.get(userID, sessionID)
	if err != nil {
		return "", err
	}
	if err := entry.session.QuickAction(action); err != nil {
		return entry.session.State(), err
	}
	return entry.session.State(), nil
}

// Watch subscribes h to a session's events and returns the snapshot taken
// after subscribing. Events already reflected in the snapshot may be
// delivered again; viewers apply them by index.
func (s *SessionService) Watch(ctx context.Context, userID, sessionID string, h events.Handler) (model.SessionSnapshot, func(), error) {
	entry, err := s.get(userID, sessionID)
	if err != nil {
		return model.SessionSnapshot{}, nil, err
	}

	unsubscribe, err := s.bus.Subscribe(sessionID, h)
	if err != nil {
		return model.SessionSnapshot{}, nil, err
	}
	return s.snapshot(entry), unsubscribe, nil
}

// Close ends a session and forgets it.
func (s *SessionService) Close(ctx context.Context, userID, sessionID string) error {
	entry, err := s.get(userID, sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.sessions[sessionID] != entry {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	s.closeEntry(entry)
	s.logger.Info("session deleted", zap.String("session_id", sessionID))
	return nil
}

func (s *SessionService) closeEntry(entry *sessionEntry) {
	entry.session.Close()
	entry.unsubscribe()
	metrics.SessionsActive.Dec()
}

// Count returns the number of live sessions.
func (s *SessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Shutdown closes every live session.
func (s *SessionService) Shutdown() {
	s.mu.Lock()
	entries := s.sessions
	s.sessions = make(map[string]*sessionEntry)
	s.mu.Unlock()

	for _, entry := range entries {
		s.closeEntry(entry)
	}
}
