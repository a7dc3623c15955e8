package handler

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/askatlas/navigation-assistant/internal/middleware"
	"github.com/askatlas/navigation-assistant/internal/model"
	"github.com/askatlas/navigation-assistant/pkg/logger"
)

// AuthHandler issues tokens.
type AuthHandler struct {
	secret string
	ttl    time.Duration
	logger *logger.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(secret string, ttl time.Duration, log *logger.Logger) *AuthHandler {
	return &AuthHandler{secret: secret, ttl: ttl, logger: log}
}

// Guest handles POST /api/v1/auth/guest
func (h *AuthHandler) Guest(w http.ResponseWriter, r *http.Request) {
	user := model.GuestUser()

	token, err := middleware.IssueToken(h.secret, user, h.ttl)
	if err != nil {
		h.logger.Error("failed to issue guest token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, model.GuestLoginResponse{Token: token, User: user})
}
