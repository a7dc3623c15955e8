package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/askatlas/navigation-assistant/internal/middleware"
	"github.com/askatlas/navigation-assistant/internal/model"
	"github.com/askatlas/navigation-assistant/internal/service"
	"github.com/askatlas/navigation-assistant/internal/session"
	"github.com/askatlas/navigation-assistant/pkg/logger"
	"github.com/askatlas/navigation-assistant/pkg/metrics"
)

const wsWriteTimeout = 10 * time.Second

// Frame types sent and received over the WebSocket.
const (
	FrameSnapshot     = "snapshot"
	FrameSessionEvent = "session_event"
	FrameAccepted     = "accepted"
	FrameError        = "error"
	FrameSubmit       = "submit"
	FrameQuickAction  = "quick_action"
)

// WSCommand is a client frame.
type WSCommand struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Action  string `json:"action,omitempty"`
}

// WSFrame is a server frame.
type WSFrame struct {
	Type     string                 `json:"type"`
	Snapshot *model.SessionSnapshot `json:"snapshot,omitempty"`
	Event    *model.SessionEvent    `json:"event,omitempty"`
	State    string                 `json:"state,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// WSHandler serves a bidirectional session connection.
type WSHandler struct {
	sessions       *service.SessionService
	originPatterns []string
	logger         *logger.Logger
}

// NewWSHandler creates a WebSocket handler. allowedOrigins uses the CORS
// form (scheme://host); schemes are stripped for origin checks.
func NewWSHandler(sessions *service.SessionService, allowedOrigins []string, log *logger.Logger) *WSHandler {
	patterns := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if i := strings.Index(origin, "://"); i >= 0 {
			origin = origin[i+3:]
		}
		patterns = append(patterns, origin)
	}
	return &WSHandler{
		sessions:       sessions,
		originPatterns: patterns,
		logger:         log,
	}
}

// Serve handles GET /api/v1/sessions/{id}/ws
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	userID := middleware.GetUserID(ctx)

	// Fail before upgrading so unknown sessions get a plain 404.
	if _, err := h.sessions.Get(ctx, userID, id); err != nil {
		writeSessionError(w, err, "")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	metrics.IncrementStreamConnections("ws")
	defer metrics.DecrementStreamConnections("ws")

	log := h.logger.With(zap.String("session_id", id))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := newEventQueue()
	snap, unsubscribe, err := h.sessions.Watch(ctx, userID, id, queue.push)
	if err != nil {
		conn.Close(websocket.StatusPolicyViolation, "session not found")
		return
	}
	defer unsubscribe()

	if err := h.write(ctx, conn, WSFrame{Type: FrameSnapshot, Snapshot: &snap}); err != nil {
		return
	}

	go h.readCommands(ctx, cancel, conn, userID, id, log)

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return

		case <-queue.overflow:
			conn.Close(websocket.StatusTryAgainLater, "too many pending events")
			return

		case ev := <-queue.events:
			if err := h.write(ctx, conn, WSFrame{Type: FrameSessionEvent, Event: &ev}); err != nil {
				log.Debug("websocket write failed", zap.Error(err))
				return
			}
			if ev.Type == model.EventSessionClosed {
				conn.Close(websocket.StatusNormalClosure, "session closed")
				return
			}
		}
	}
}

func (h *WSHandler) readCommands(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, userID, id string, log *logger.Logger) {
	defer cancel()

	for {
		var cmd WSCommand
		if err := wsjson.Read(ctx, conn, &cmd); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				log.Debug("websocket read failed", zap.Error(err))
			}
			return
		}

		var (
			state session.State
			err   error
		)
		switch cmd.Type {
		case FrameSubmit:
			if err = middleware.ValidateMessageContent(cmd.Content); err == nil {
				state, err = h.sessions.Submit(ctx, userID, id, cmd.Content)
			}
		case FrameQuickAction:
			state, err = h.sessions.QuickAction(ctx, userID, id, session.QuickAction(cmd.Action))
		default:
			err = errors.New("unknown command type")
		}

		frame := WSFrame{Type: FrameAccepted, State: string(state)}
		if err != nil {
			frame = WSFrame{Type: FrameError, State: string(state), Error: err.Error()}
		}
		if err := h.write(ctx, conn, frame); err != nil {
			return
		}
	}
}

func (h *WSHandler) write(ctx context.Context, conn *websocket.Conn, frame WSFrame) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, frame)
}
