package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/deckhandhq/deckhand/internal/autonomous"
	deckerrors "github.com/deckhandhq/deckhand/internal/errors"
)

func (s *Server) handleListAutonomous(w http.ResponseWriter, r *http.Request) {
	active := s.autonomous.Active()
	if active == nil {
		active = []*autonomous.State{}
	}
	JSONResponse(w, map[string]any{"workflows": active, "count": len(active)})
}

func (s *Server) handleStartAutonomous(w http.ResponseWriter, r *http.Request) {
	var req autonomous.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	id, err := s.autonomous.StartAsync(r.Context(), req)
	if err != nil {
		// Malformed requests come back as plain errors; structured
		// errors carry their own status.
		var de *deckerrors.DeckError
		if errors.As(err, &de) {
			HandleError(w, err)
			return
		}
		JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	JSONResponseStatus(w, http.StatusAccepted, map[string]string{"workflow_id": id})
}

func (s *Server) handleGetAutonomous(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, ok := s.autonomous.Status(id)
	if !ok {
		JSONError(w, "autonomous workflow "+id+" not found", http.StatusNotFound)
		return
	}
	JSONResponse(w, st)
}
