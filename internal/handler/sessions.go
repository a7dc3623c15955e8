// Package handler provides HTTP handlers for the API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/askatlas/navigation-assistant/internal/middleware"
	"github.com/askatlas/navigation-assistant/internal/model"
	"github.com/askatlas/navigation-assistant/internal/service"
	"github.com/askatlas/navigation-assistant/internal/session"
	"github.com/askatlas/navigation-assistant/pkg/logger"
)

// maxCreateWait caps how long POST /sessions?wait=true blocks for the greeting.
const maxCreateWait = 60 * time.Second

// SessionHandler handles session and message endpoints.
type SessionHandler struct {
	service *service.SessionService
	logger  *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(svc *service.SessionService, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		service: svc,
		logger:  log,
	}
}

// sessionID reads and validates the {id} URL parameter.
func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}

// Create handles POST /api/v1/sessions
// With ?wait=true the response is delayed until the greeting is present.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	snap, err := h.service.Create(ctx, userID)
	if err != nil {
		h.logger.Error("failed to create session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		waitCtx, cancel := context.WithTimeout(ctx, maxCreateWait)
		defer cancel()
		if err := h.service.WaitReady(waitCtx, userID, snap.ID); err == nil {
			if ready, err := h.service.Get(ctx, userID, snap.ID); err == nil {
				snap = ready
			}
		}
	}

	writeJSON(w, http.StatusCreated, snap)
}

// Get handles GET /api/v1/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	snap, err := h.service.Get(ctx, middleware.GetUserID(ctx), id)
	if err != nil {
		writeSessionError(w, err, "")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// Delete handles DELETE /api/v1/sessions/{id}
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	if err := h.service.Close(ctx, middleware.GetUserID(ctx), id); err != nil {
		writeSessionError(w, err, "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListMessages handles GET /api/v1/sessions/{id}/messages
func (h *SessionHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	snap, err := h.service.Get(ctx, middleware.GetUserID(ctx), id)
	if err != nil {
		writeSessionError(w, err, "")
		return
	}

	writeJSON(w, http.StatusOK, model.ListMessagesResponse{
		Messages: snap.Messages,
		State:    snap.State,
		ScrollTo: snap.ScrollTo,
	})
}

// SendMessage handles POST /api/v1/sessions/{id}/messages
func (h *SessionHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req model.SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	state, err := h.service.Submit(ctx, middleware.GetUserID(ctx), id, req.Content)
	h.respondSubmit(w, state, err)
}

// QuickAction handles POST /api/v1/sessions/{id}/quick-actions/{action}
func (h *SessionHandler) QuickAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	action := session.QuickAction(chi.URLParam(r, "action"))
	state, err := h.service.QuickAction(ctx, middleware.GetUserID(ctx), id, action)
	h.respondSubmit(w, state, err)
}

func (h *SessionHandler) respondSubmit(w http.ResponseWriter, state session.State, err error) {
	if err != nil {
		writeSessionError(w, err, state)
		return
	}

	writeJSON(w, http.StatusAccepted, model.SubmitResponse{
		Accepted: true,
		State:    string(state),
	})
}
