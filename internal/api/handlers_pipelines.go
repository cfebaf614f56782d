package api

import (
	"net/http"

	deckerrors "github.com/deckhandhq/deckhand/internal/errors"
	"github.com/deckhandhq/deckhand/internal/pipeline"
)

func (s *Server) handleListPipelines(w http.ResponseWriter, r *http.Request) {
	var (
		pipelines []*pipeline.Pipeline
		err       error
	)
	if projectID := r.URL.Query().Get("project"); projectID != "" {
		pipelines, err = s.pipelines.ListByProject(r.Context(), projectID)
	} else {
		pipelines, err = s.pipelines.ListActive(r.Context())
	}
	if err != nil {
		HandleError(w, err)
		return
	}
	if pipelines == nil {
		pipelines = []*pipeline.Pipeline{}
	}
	JSONResponse(w, map[string]any{"pipelines": pipelines, "count": len(pipelines)})
}

func (s *Server) handleGetPipeline(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := s.pipelines.FindByID(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return
	}
	if p == nil {
		HandleError(w, deckerrors.ErrPipelineNotFound(id))
		return
	}
	JSONResponse(w, p)
}

func (s *Server) handleCancelPipeline(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.runner.Cancel(r.Context(), id); err != nil {
		HandleError(w, err)
		return
	}
	s.summary.Invalidate()
	JSONResponse(w, map[string]any{"cancelled": true, "id": id})
}
