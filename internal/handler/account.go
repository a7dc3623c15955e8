package handler

import (
	"net/http"

	"github.com/askatlas/navigation-assistant/internal/middleware"
	"github.com/askatlas/navigation-assistant/internal/model"
	"github.com/askatlas/navigation-assistant/internal/service"
)

// AccountHandler handles the account page endpoints.
type AccountHandler struct {
	service *service.AccountService
}

// NewAccountHandler creates a new account handler.
func NewAccountHandler(svc *service.AccountService) *AccountHandler {
	return &AccountHandler{service: svc}
}

// Get handles GET /api/v1/account
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	writeJSON(w, http.StatusOK, h.service.Get(ctx, middleware.GetUser(ctx)))
}

// SaveSettings handles PUT /api/v1/account/settings
func (h *AccountHandler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var settings model.AccountSettings
	if err := decodeJSON(w, r, &settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateSettings(settings); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, h.service.SaveSettings(ctx, middleware.GetUser(ctx), settings))
}
