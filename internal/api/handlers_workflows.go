package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/deckhandhq/deckhand/internal/engine"
)

type startWorkflowRequest struct {
	Type      string         `json:"type"`
	ProjectID string         `json:"project_id"`
	Data      map[string]any `json:"data"`
	// Execute controls whether the server drives the workflow to
	// completion in the background. When false the client steps it
	// through POST /api/workflows/{id}/step.
	Execute *bool `json:"execute"`
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	active := s.engine.Active()
	if active == nil {
		active = []*engine.Instance{}
	}
	JSONResponse(w, map[string]any{"workflows": active, "count": len(active)})
}

func (s *Server) handleStartWorkflow(w http.ResponseWriter, r *http.Request) {
	var req startWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		JSONError(w, "type is required", http.StatusBadRequest)
		return
	}
	if req.ProjectID != "" {
		proj, err := s.projects.GetProject(r.Context(), req.ProjectID)
		if err != nil {
			HandleError(w, err)
			return
		}
		if proj == nil {
			JSONError(w, "unknown project "+req.ProjectID, http.StatusBadRequest)
			return
		}
	}

	inst, err := s.engine.Start(r.Context(), engine.Config{
		Type:      req.Type,
		ProjectID: req.ProjectID,
		Data:      req.Data,
	})
	if err != nil {
		HandleError(w, err)
		return
	}

	if req.Execute == nil || *req.Execute {
		// The run outlives the HTTP request on purpose.
		go func() {
			if _, err := s.engine.ExecuteWorkflow(context.WithoutCancel(r.Context()), inst.ID); err != nil {
				s.logger.Warn("workflow execution failed",
					"workflow_id", inst.ID,
					"error", err)
			}
		}()
	}

	JSONResponseStatus(w, http.StatusAccepted, inst)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	inst, err := s.engine.Status(r.PathValue("id"))
	if err != nil {
		HandleError(w, err)
		return
	}
	JSONResponse(w, inst)
}

func (s *Server) handleStepWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, err := s.engine.ExecuteNextStep(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return
	}
	inst, err := s.engine.Status(id)
	if err != nil {
		HandleError(w, err)
		return
	}
	JSONResponse(w, map[string]any{"result": res, "workflow": inst})
}

func (s *Server) handleCancelWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.engine.Cancel(id) {
		JSONResponse(w, map[string]any{"cancelled": true, "id": id})
		return
	}

	// Distinguish an unknown workflow from one already finished.
	inst, err := s.engine.Status(id)
	if err != nil {
		HandleError(w, err)
		return
	}
	JSONError(w, "workflow "+id+" already finished with status "+string(inst.Status), http.StatusConflict)
}

func (s *Server) handleWorkflowTypes(w http.ResponseWriter, r *http.Request) {
	types := s.engine.Templates()
	if types == nil {
		types = []string{}
	}
	JSONResponse(w, map[string]any{"types": types, "count": len(types)})
}

func (s *Server) handleWorkflowTypeYAML(w http.ResponseWriter, r *http.Request) {
	data, err := s.engine.TemplateYAML(r.PathValue("type"))
	if err != nil {
		HandleError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Error("failed to write template response", "error", err)
	}
}
