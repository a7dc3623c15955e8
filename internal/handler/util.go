package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/askatlas/navigation-assistant/internal/service"
	"github.com/askatlas/navigation-assistant/internal/session"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
	State string `json:"state,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// sessionErrorStatus maps session and service errors to HTTP status codes.
func sessionErrorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, session.ErrClosed):
		return http.StatusNotFound
	case errors.Is(err, session.ErrEmptyInput), errors.Is(err, session.ErrUnknownQuickAction):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrAwaitingResponse), errors.Is(err, session.ErrNotReady):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeSessionError(w http.ResponseWriter, err error, state session.State) {
	status := sessionErrorStatus(err)
	msg := err.Error()
	switch status {
	case http.StatusNotFound:
		msg = "session not found"
		state = ""
	case http.StatusInternalServerError:
		msg = "internal error"
		state = ""
	}
	writeJSON(w, status, errorResponse{Error: msg, State: string(state)})
}
