package handler

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/askatlas/navigation-assistant/internal/flow"
	"github.com/askatlas/navigation-assistant/internal/middleware"
	"github.com/askatlas/navigation-assistant/internal/model"
	"github.com/askatlas/navigation-assistant/internal/service"
	"github.com/askatlas/navigation-assistant/pkg/logger"
)

// NavigationHandler exposes the navigation flows.
type NavigationHandler struct {
	service *service.NavigationService
	logger  *logger.Logger
}

// NewNavigationHandler creates a new navigation handler.
func NewNavigationHandler(svc *service.NavigationService, log *logger.Logger) *NavigationHandler {
	return &NavigationHandler{service: svc, logger: log}
}

// Summary handles POST /api/v1/navigation/summary
func (h *NavigationHandler) Summary(w http.ResponseWriter, r *http.Request) {
	var req model.SummarizeHistoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateHistory(req.History); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.service.Summarize(r.Context(), req)
	if err != nil {
		var inErr *flow.InvalidInputError
		if errors.As(err, &inErr) {
			writeError(w, http.StatusBadRequest, "history must contain at least one entry with timestamp and location")
			return
		}

		h.logger.Error("failed to summarize navigation history",
			zap.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, "failed to generate summary")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
