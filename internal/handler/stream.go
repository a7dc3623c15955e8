package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/askatlas/navigation-assistant/internal/middleware"
	"github.com/askatlas/navigation-assistant/internal/model"
	"github.com/askatlas/navigation-assistant/internal/service"
	"github.com/askatlas/navigation-assistant/pkg/logger"
	"github.com/askatlas/navigation-assistant/pkg/metrics"
)

// Stream tuning.
const (
	DefaultHeartbeatInterval = 30 * time.Second
	streamBuffer             = 64
)

// StreamHandler handles SSE streaming endpoints.
type StreamHandler struct {
	sessions  *service.SessionService
	heartbeat time.Duration
	logger    *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(sessions *service.SessionService, heartbeat time.Duration, log *logger.Logger) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}
	return &StreamHandler{
		sessions:  sessions,
		heartbeat: heartbeat,
		logger:    log,
	}
}

// eventQueue buffers bus events for one stream. A stream that falls behind
// is ended so the client reconnects and receives a fresh snapshot.
type eventQueue struct {
	events   chan model.SessionEvent
	overflow chan struct{}
	once     sync.Once
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events:   make(chan model.SessionEvent, streamBuffer),
		overflow: make(chan struct{}),
	}
}

func (q *eventQueue) push(ev model.SessionEvent) {
	select {
	case q.events <- ev:
	default:
		q.once.Do(func() { close(q.overflow) })
	}
}

// Stream handles GET /api/v1/sessions/{id}/stream
// Sends a snapshot first, then every session event, with periodic heartbeats.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	queue := newEventQueue()
	snap, unsubscribe, err := h.sessions.Watch(ctx, middleware.GetUserID(ctx), id, queue.push)
	if err != nil {
		writeSessionError(w, err, "")
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)

	metrics.IncrementStreamConnections("sse")
	defer metrics.DecrementStreamConnections("sse")

	log := h.logger.With(zap.String("session_id", id))

	if err := sendSSEEvent(w, flusher, "snapshot", snap); err != nil {
		log.Warn("failed to send snapshot", zap.Error(err))
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("SSE client disconnected")
			return

		case <-queue.overflow:
			log.Warn("SSE client too slow, closing stream")
			sendSSEEvent(w, flusher, "error", &model.ErrorEvent{
				Code:    "stream_overflow",
				Message: "Too many pending events; reconnect to resume",
			})
			return

		case ev := <-queue.events:
			if err := sendSSEEvent(w, flusher, "session_event", ev); err != nil {
				log.Warn("failed to send event", zap.Error(err))
				return
			}
			if ev.Type == model.EventSessionClosed {
				return
			}

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", &model.HeartbeatEvent{
				Timestamp: time.Now(),
			})
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}
