// Package session implements the conversation state machine: one onboarding
// greeting, then strictly alternating user turns and assistant replies.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/askatlas/navigation-assistant/internal/model"
	"github.com/askatlas/navigation-assistant/pkg/logger"
	"github.com/askatlas/navigation-assistant/pkg/metrics"
)

// State is the lifecycle position of a session.
type State string

const (
	StateInitializing     State = "initializing"
	StateReady            State = "ready"
	StateAwaitingResponse State = "awaiting_response"
)

// Fixed texts used when a reply cannot be produced.
const (
	FallbackGreeting = "Welcome to AskAtlas! How can I help you navigate today?"
	FallbackReply    = "Sorry, I couldn't complete that request right now. Please try again."
)

// DefaultPendingTimeout bounds how long a placeholder may stay pending.
const DefaultPendingTimeout = 30 * time.Second

var (
	ErrEmptyInput         = errors.New("input is empty")
	ErrAwaitingResponse   = errors.New("a response is already pending")
	ErrNotReady           = errors.New("session is still initializing")
	ErrAlreadyStarted     = errors.New("session already started")
	ErrUnknownQuickAction = errors.New("unknown quick action")
	ErrClosed             = errors.New("session is closed")
)

var errNoOnboarding = errors.New("no onboarding source configured")

// QuickAction is a predefined shortcut that submits a canned request.
type QuickAction string

const (
	QuickActionGoHome   QuickAction = "go-home"
	QuickActionGoToWork QuickAction = "go-to-work"
)

var quickActionText = map[QuickAction]string{
	QuickActionGoHome:   "Directions to Home",
	QuickActionGoToWork: "Directions to Work",
}

// Text returns the request text submitted for a.
func (a QuickAction) Text() (string, bool) {
	text, ok := quickActionText[a]
	return text, ok
}

// OnboardingSource produces the greeting shown when a session starts.
type OnboardingSource interface {
	GenerateOnboardingPrompt(ctx context.Context) (string, error)
}

// Listener receives session events. Listeners run synchronously in mutation
// order and must not call mutating session methods.
type Listener func(model.SessionEvent)

// Config configures a Session. Zero values select defaults.
type Config struct {
	Onboarding     OnboardingSource
	Responder      Responder
	PendingTimeout time.Duration
	Logger         *logger.Logger
	NewID          func() string
	Now            func() time.Time
}

// Session is one conversation. It is safe for concurrent use.
type Session struct {
	id         string
	onboarding OnboardingSource
	responder  Responder
	timeout    time.Duration
	logger     *logger.Logger
	newID      func() string
	now        func() time.Time
	createdAt  time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	state        State
	started      bool
	closed       bool
	messages     []model.Message
	ready        chan struct{}
	listeners    map[int]Listener
	nextListener int

	// emitMu keeps listener dispatch in mutation order.
	emitMu sync.Mutex
}

// New creates a session in the initializing state. Call Start to greet.
func New(id string, cfg Config) *Session {
	if cfg.Responder == nil {
		cfg.Responder = NewEchoResponder(DefaultResponseDelay)
	}
	if cfg.PendingTimeout <= 0 {
		cfg.PendingTimeout = DefaultPendingTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.Must(uuid.NewV7()).String() }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if id == "" {
		id = cfg.NewID()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:         id,
		onboarding: cfg.Onboarding,
		responder:  cfg.Responder,
		timeout:    cfg.PendingTimeout,
		logger:     cfg.Logger.With(zap.String("session_id", id)),
		newID:      cfg.NewID,
		now:        cfg.Now,
		createdAt:  cfg.Now(),
		ctx:        ctx,
		cancel:     cancel,
		state:      StateInitializing,
		ready:      make(chan struct{}),
		listeners:  make(map[int]Listener),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Start requests the onboarding greeting and moves the session to ready.
// Onboarding failures never surface: the fixed greeting is used instead.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	text, err := "", errNoOnboarding
	if s.onboarding != nil {
		text, err = s.onboarding.GenerateOnboardingPrompt(ctx)
	}
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("onboarding prompt is empty")
	}
	if err != nil {
		s.logger.Warn("onboarding failed, using fallback greeting", zap.Error(err))
		metrics.FallbacksTotal.WithLabelValues("onboarding").Inc()
		text = FallbackGreeting
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	greeting := s.appendLocked(model.RoleAssistant, text, model.StatusComplete)
	events := []model.SessionEvent{
		s.eventLocked(model.EventMessageAppended, &greeting, len(s.messages)-1),
		s.transitionLocked(StateReady),
	}
	s.unlockAndEmit(events, s.ready)

	s.logger.Info("session ready")
	return nil
}

// Submit appends the user's text plus a pending assistant placeholder and
// resolves the placeholder in the background. Whitespace-only input, a busy
// session and an uninitialized session are rejected without any change.
func (s *Session) Submit(text string) error {
	if strings.TrimSpace(text) == "" {
		return s.reject(ErrEmptyInput)
	}

	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return s.reject(ErrClosed)
	case s.state == StateInitializing:
		s.mu.Unlock()
		return s.reject(ErrNotReady)
	case s.state == StateAwaitingResponse:
		s.mu.Unlock()
		return s.reject(ErrAwaitingResponse)
	}

	user := s.appendLocked(model.RoleUser, text, model.StatusComplete)
	userIdx := len(s.messages) - 1
	pending := s.appendLocked(model.RoleAssistant, "", model.StatusPending)
	pendingIdx := len(s.messages) - 1
	s.ready = make(chan struct{})

	events := []model.SessionEvent{
		s.eventLocked(model.EventMessageAppended, &user, userIdx),
		s.eventLocked(model.EventMessageAppended, &pending, pendingIdx),
		s.transitionLocked(StateAwaitingResponse),
	}
	s.unlockAndEmit(events, nil)

	go s.resolve(text)
	return nil
}

// QuickAction submits the canned request for action.
func (s *Session) QuickAction(action QuickAction) error {
	text, ok := action.Text()
	if !ok {
		return s.reject(ErrUnknownQuickAction)
	}
	return s.Submit(text)
}

type reply struct {
	text string
	err  error
}

func (s *Session) resolve(text string) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	done := make(chan reply, 1)
	go func() {
		out, err := s.responder.Respond(ctx, text)
		done <- reply{text: out, err: err}
	}()

	var r reply
	select {
	case r = <-done:
	case <-ctx.Done():
		r.err = ctx.Err()
	}

	if r.err != nil {
		if errors.Is(r.err, context.Canceled) && s.ctx.Err() != nil {
			return
		}
		s.logger.Warn("response failed, using fallback reply", zap.Error(r.err))
		metrics.FallbacksTotal.WithLabelValues("response").Inc()
		r.text = FallbackReply
	}

	s.mu.Lock()
	last := len(s.messages) - 1
	if s.closed || s.state != StateAwaitingResponse || last < 0 || !s.messages[last].IsPending() {
		s.mu.Unlock()
		return
	}

	msg := s.newMessage(model.RoleAssistant, r.text, model.StatusComplete)
	s.messages[last] = msg
	metrics.MessagesTotal.WithLabelValues(string(model.RoleAssistant)).Inc()

	events := []model.SessionEvent{
		s.eventLocked(model.EventMessageReplaced, &msg, last),
		s.transitionLocked(StateReady),
	}
	s.unlockAndEmit(events, s.ready)
}

// Subscribe registers l and returns a function that removes it.
func (s *Session) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = l
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a copy of the message sequence.
func (s *Session) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Message(nil), s.messages...)
}

// Snapshot returns a consistent copy of the session.
func (s *Session) Snapshot() model.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.SessionSnapshot{
		ID:        s.id,
		State:     string(s.state),
		Messages:  append([]model.Message{}, s.messages...),
		ScrollTo:  len(s.messages) - 1,
		CreatedAt: s.createdAt,
	}
}

// WaitReady blocks until the session is ready for input.
func (s *Session) WaitReady(ctx context.Context) error {
	s.mu.Lock()
	ch := s.ready
	s.mu.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close stops outstanding work and notifies listeners. Further calls are no-ops.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancel()
	if s.state != StateReady {
		close(s.ready)
	}
	events := []model.SessionEvent{s.eventLocked(model.EventSessionClosed, nil, len(s.messages)-1)}
	s.unlockAndEmit(events, nil)

	s.logger.Info("session closed")
}

func (s *Session) reject(err error) error {
	metrics.SubmitsRejectedTotal.WithLabelValues(rejectReason(err)).Inc()
	s.logger.Debug("submit rejected", zap.Error(err))
	return err
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrEmptyInput):
		return "empty"
	case errors.Is(err, ErrAwaitingResponse):
		return "awaiting_response"
	case errors.Is(err, ErrNotReady):
		return "initializing"
	case errors.Is(err, ErrUnknownQuickAction):
		return "unknown_action"
	case errors.Is(err, ErrClosed):
		return "closed"
	default:
		return "other"
	}
}

func (s *Session) newMessage(role model.Role, content string, status model.MessageStatus) model.Message {
	return model.Message{
		ID:        s.newID(),
		Role:      role,
		Content:   content,
		Status:    status,
		CreatedAt: s.now(),
	}
}

func (s *Session) appendLocked(role model.Role, content string, status model.MessageStatus) model.Message {
	msg := s.newMessage(role, content, status)
	s.messages = append(s.messages, msg)
	if status == model.StatusComplete {
		metrics.MessagesTotal.WithLabelValues(string(role)).Inc()
	}
	return msg
}

func (s *Session) transitionLocked(to State) model.SessionEvent {
	s.state = to
	return s.eventLocked(model.EventStateChanged, nil, len(s.messages)-1)
}

func (s *Session) eventLocked(typ model.EventType, msg *model.Message, index int) model.SessionEvent {
	return model.SessionEvent{
		Type:      typ,
		SessionID: s.id,
		Message:   msg,
		Index:     index,
		State:     string(s.state),
		ScrollTo:  len(s.messages) - 1,
		CreatedAt: s.now(),
	}
}

// unlockAndEmit must be called with mu held. It hands the lock over to
// emitMu so events from consecutive mutations reach listeners in order.
// A non-nil ready channel is closed once listeners have seen the events.
func (s *Session) unlockAndEmit(events []model.SessionEvent, ready chan struct{}) {
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}

	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()

	for _, ev := range events {
		for _, l := range listeners {
			l(ev)
		}
	}
	if ready != nil {
		close(ready)
	}
}
