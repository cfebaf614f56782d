package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	deckerrors "github.com/deckhandhq/deckhand/internal/errors"
)

// APIError is the standard error response body.
type APIError struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// JSONResponse writes data as JSON with a 200 status.
func JSONResponse(w http.ResponseWriter, data any) {
	JSONResponseStatus(w, http.StatusOK, data)
}

// JSONResponseStatus writes data as JSON with the given status.
func JSONResponseStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// JSONError writes an error message as JSON with the given status.
func JSONError(w http.ResponseWriter, message string, status int) {
	JSONResponseStatus(w, status, APIError{Error: message})
}

// HandleError maps an error to an HTTP response. Structured errors
// carry their own status and code; anything else becomes a 500.
func HandleError(w http.ResponseWriter, err error) {
	var de *deckerrors.DeckError
	if errors.As(err, &de) {
		JSONResponseStatus(w, de.HTTPStatus(), APIError{
			Error:   de.What,
			Code:    string(de.Code),
			Details: de.Why,
		})
		return
	}
	JSONError(w, err.Error(), http.StatusInternalServerError)
}

// NoContent writes a 204 response with no body.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
