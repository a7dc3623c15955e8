package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askatlas/navigation-assistant/internal/config"
	"github.com/askatlas/navigation-assistant/internal/events"
	"github.com/askatlas/navigation-assistant/internal/flow"
	"github.com/askatlas/navigation-assistant/internal/llm"
	"github.com/askatlas/navigation-assistant/internal/middleware"
	"github.com/askatlas/navigation-assistant/internal/model"
	"github.com/askatlas/navigation-assistant/internal/service"
	"github.com/askatlas/navigation-assistant/internal/session"
	"github.com/askatlas/navigation-assistant/pkg/logger"
)

const testSecret = "handler-test-secret"

// stubLLM implements llm.Client for testing.
type stubLLM struct {
	completeFunc func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error)
}

func (c *stubLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return c.completeFunc(ctx, req)
}

func (c *stubLLM) Name() string     { return "stub" }
func (c *stubLLM) Models() []string { return []string{"stub"} }

// testLLM answers the onboarding flow and the summary flow.
func testLLM() *stubLLM {
	return &stubLLM{completeFunc: func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		prompt := req.Messages[0].Content
		switch {
		case strings.Contains(prompt, "Timestamp: fail"):
			return nil, errors.New("provider unavailable")
		case strings.Contains(prompt, "Timestamp:"):
			return &llm.CompletionResponse{Content: `{"summary":"You mostly visit the Park."}`, Model: "stub"}, nil
		default:
			return &llm.CompletionResponse{Content: `{"onboardingPrompt":"Hi! Where would you like to go?"}`, Model: "stub"}, nil
		}
	}}
}

type testServer struct {
	handler http.Handler
	release chan string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.NewNop()

	registry, err := flow.DefaultRegistry()
	require.NoError(t, err)
	invoker := flow.NewInvoker(testLLM(), registry, log)

	release := make(chan string, 1)
	responder := session.ResponderFunc(func(ctx context.Context, text string) (string, error) {
		select {
		case reply := <-release:
			return reply, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})

	sessions := service.NewSessionService(invoker, responder, events.NewLocalBus(),
		service.SessionOptions{PendingTimeout: 5 * time.Second, OnboardingTimeout: time.Second}, log)
	t.Cleanup(sessions.Shutdown)

	cfg := &config.Config{
		AllowedOrigins:    []string{"http://*"},
		JWTSecret:         testSecret,
		JWTExpiration:     time.Hour,
		RateLimitRequests: 1000,
		RateLimitWindow:   time.Minute,
	}

	return &testServer{
		handler: NewRouter(Deps{
			Config:     cfg,
			Logger:     log,
			Sessions:   sessions,
			Accounts:   service.NewAccountService(log),
			Navigation: service.NewNavigationService(invoker),
			Heartbeat:  time.Hour,
		}),
		release: release,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) createSession(t *testing.T, token string) model.SessionSnapshot {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/sessions?wait=true", nil, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var snap model.SessionSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	return snap
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/ready", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "local", body["bus"])
}

func TestGuestLoginAndAccount(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/auth/guest", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[model.GuestLoginResponse](t, rec)
	assert.NotEmpty(t, login.Token)
	assert.Equal(t, model.GuestUser(), login.User)

	rec = s.do(t, http.MethodGet, "/api/v1/account", nil, login.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	acct := decode[model.AccountResponse](t, rec)
	assert.Equal(t, model.GuestUserEmail, acct.User.Email)

	rec = s.do(t, http.MethodPut, "/api/v1/account/settings", model.AccountSettings{
		HomeAddress: "1 Main Street",
		WorkAddress: "200 Market Street",
	}, login.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	saved := decode[model.SettingsSavedResponse](t, rec)
	assert.Equal(t, "Settings Saved!", saved.Title)
	assert.Equal(t, "Your home and work addresses have been updated.", saved.Description)

	rec = s.do(t, http.MethodPut, "/api/v1/account/settings", model.AccountSettings{HomeAddress: "abc"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/account", nil, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionConversation(t *testing.T) {
	s := newTestServer(t)
	snap := s.createSession(t, "")

	assert.Equal(t, string(session.StateReady), snap.State)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "Hi! Where would you like to go?", snap.Messages[0].Content)

	base := "/api/v1/sessions/" + snap.ID

	rec := s.do(t, http.MethodPost, base+"/messages", model.SendMessageRequest{Content: "   "}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, base+"/messages", model.SendMessageRequest{Content: "Find a gas station"}, "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	accepted := decode[model.SubmitResponse](t, rec)
	assert.True(t, accepted.Accepted)
	assert.Equal(t, string(session.StateAwaitingResponse), accepted.State)

	rec = s.do(t, http.MethodPost, base+"/quick-actions/go-home", nil, "")
	require.Equal(t, http.StatusConflict, rec.Code)
	conflict := decode[errorResponse](t, rec)
	assert.Equal(t, string(session.StateAwaitingResponse), conflict.State)

	rec = s.do(t, http.MethodGet, base+"/messages", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[model.ListMessagesResponse](t, rec)
	require.Len(t, list.Messages, 3)
	assert.True(t, list.Messages[2].IsPending())
	assert.Equal(t, 2, list.ScrollTo)

	s.release <- "There is one on 5th Avenue."
	require.Eventually(t, func() bool {
		rec := s.do(t, http.MethodGet, base, nil, "")
		return decode[model.SessionSnapshot](t, rec).State == string(session.StateReady)
	}, 2*time.Second, 10*time.Millisecond)

	rec = s.do(t, http.MethodGet, base+"/messages", nil, "")
	list = decode[model.ListMessagesResponse](t, rec)
	require.Len(t, list.Messages, 3)
	assert.Equal(t, "There is one on 5th Avenue.", list.Messages[2].Content)

	rec = s.do(t, http.MethodPost, base+"/quick-actions/go-to-mars", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodDelete, base, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodGet, base, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionOwnership(t *testing.T) {
	s := newTestServer(t)
	snap := s.createSession(t, "")

	other, err := middleware.IssueToken(testSecret, model.User{ID: "someone-else"}, time.Hour)
	require.NoError(t, err)

	rec := s.do(t, http.MethodGet, "/api/v1/sessions/"+snap.ID, nil, other)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/sessions/not-a-uuid", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNavigationSummary(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/navigation/summary", model.SummarizeHistoryRequest{
		History: []model.NavigationHistoryEntry{
			{Timestamp: "t1", Location: "Park"},
			{Timestamp: "t2", Location: "Park"},
		},
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "You mostly visit the Park.", decode[model.SummarizeHistoryResponse](t, rec).Summary)

	rec = s.do(t, http.MethodPost, "/api/v1/navigation/summary", model.SummarizeHistoryRequest{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/navigation/summary", model.SummarizeHistoryRequest{
		History: []model.NavigationHistoryEntry{{Timestamp: "fail", Location: "Park"}},
	}, "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestStreamSendsSnapshotThenEvents(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	snap := s.createSession(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/sessions/"+snap.ID+"/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	next := func() (string, string) {
		t.Helper()
		var event, data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && event != "":
				return event, data
			}
		}
	}

	event, data := next()
	require.Equal(t, "snapshot", event)
	var got model.SessionSnapshot
	require.NoError(t, json.Unmarshal([]byte(data), &got))
	assert.Len(t, got.Messages, 1)

	rec := s.do(t, http.MethodPost, "/api/v1/sessions/"+snap.ID+"/quick-actions/go-to-work", nil, "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var types []model.EventType
	for len(types) < 3 {
		event, data := next()
		require.Equal(t, "session_event", event)
		var ev model.SessionEvent
		require.NoError(t, json.Unmarshal([]byte(data), &ev))
		types = append(types, ev.Type)
	}
	assert.Equal(t, []model.EventType{
		model.EventMessageAppended,
		model.EventMessageAppended,
		model.EventStateChanged,
	}, types)
}

func TestWebSocketSubmit(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	snap := s.createSession(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/sessions/" + snap.ID + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var frame WSFrame
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	require.Equal(t, FrameSnapshot, frame.Type)
	require.NotNil(t, frame.Snapshot)
	assert.Len(t, frame.Snapshot.Messages, 1)

	require.NoError(t, wsjson.Write(ctx, conn, WSCommand{Type: FrameSubmit, Content: "Nearest pharmacy"}))
	s.release <- "Two blocks west."

	var (
		accepted bool
		replaced *model.Message
	)
	for !accepted || replaced == nil {
		var f WSFrame
		require.NoError(t, wsjson.Read(ctx, conn, &f))
		switch f.Type {
		case FrameAccepted:
			accepted = true
		case FrameSessionEvent:
			if f.Event.Type == model.EventMessageReplaced {
				replaced = f.Event.Message
			}
		case FrameError:
			t.Fatalf("unexpected error frame: %s", f.Error)
		}
	}
	assert.Equal(t, "Two blocks west.", replaced.Content)

	require.NoError(t, wsjson.Write(ctx, conn, WSCommand{Type: FrameQuickAction, Action: "go-to-mars"}))
	for {
		var f WSFrame
		require.NoError(t, wsjson.Read(ctx, conn, &f))
		if f.Type == FrameError {
			assert.Contains(t, f.Error, "unknown quick action")
			break
		}
	}

	conn.Close(websocket.StatusNormalClosure, "")
}
