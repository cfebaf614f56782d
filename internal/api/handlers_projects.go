package api

import (
	"encoding/json"
	"net/http"

	deckerrors "github.com/deckhandhq/deckhand/internal/errors"
	"github.com/deckhandhq/deckhand/internal/project"
)

type projectRequest struct {
	Name          string   `json:"name"`
	RepoURL       string   `json:"repo_url"`
	DefaultBranch string   `json:"default_branch"`
	Description   string   `json:"description"`
	AutoMerge     *bool    `json:"auto_merge"`
	SetupCommand  string   `json:"setup_command"`
	DeployCommand string   `json:"deploy_command"`
	HealthPath    string   `json:"health_path"`
	UISelectors   []string `json:"ui_selectors"`
}

// createProjectResponse carries the webhook secret exactly once, at
// registration time. It is never readable again through the API.
type createProjectResponse struct {
	*project.Project
	WebhookSecret string `json:"webhook_secret"`
	WebhookURL    string `json:"webhook_url"`
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.projects.ListProjects(r.Context())
	if err != nil {
		HandleError(w, err)
		return
	}
	if projects == nil {
		projects = []*project.Project{}
	}
	JSONResponse(w, map[string]any{"projects": projects, "count": len(projects)})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.RepoURL == "" {
		JSONError(w, "repo_url is required", http.StatusBadRequest)
		return
	}

	proj, err := project.New(req.Name, req.RepoURL)
	if err != nil {
		JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	applyProjectRequest(proj, req)
	if err := proj.Validate(); err != nil {
		JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	existing, err := s.projects.GetProjectByName(r.Context(), proj.Name)
	if err != nil {
		HandleError(w, err)
		return
	}
	if existing != nil {
		JSONError(w, "a project named "+proj.Name+" already exists", http.StatusConflict)
		return
	}

	if err := s.projects.SaveProject(r.Context(), proj); err != nil {
		HandleError(w, err)
		return
	}
	s.summary.Invalidate()

	s.logger.Info("project registered",
		"project_id", proj.ID,
		"name", proj.Name,
		"repo", proj.FullName())

	JSONResponseStatus(w, http.StatusCreated, createProjectResponse{
		Project:       proj,
		WebhookSecret: proj.WebhookSecret,
		WebhookURL:    "/api/webhooks/" + proj.ID,
	})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	proj, err := s.loadProject(w, r)
	if proj == nil || err != nil {
		return
	}
	JSONResponse(w, proj)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	proj, err := s.loadProject(w, r)
	if proj == nil || err != nil {
		return
	}

	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.RepoURL != "" && req.RepoURL != proj.RepoURL {
		JSONError(w, "repo_url cannot be changed", http.StatusBadRequest)
		return
	}
	if req.Name != "" {
		proj.Name = req.Name
	}
	applyProjectRequest(proj, req)
	proj.Touch()

	if err := proj.Validate(); err != nil {
		JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.projects.SaveProject(r.Context(), proj); err != nil {
		HandleError(w, err)
		return
	}
	s.summary.Invalidate()
	JSONResponse(w, proj)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	proj, err := s.loadProject(w, r)
	if proj == nil || err != nil {
		return
	}
	if err := s.projects.DeleteProjectCascade(r.Context(), proj.ID); err != nil {
		HandleError(w, err)
		return
	}
	s.summary.Invalidate()
	s.logger.Info("project removed", "project_id", proj.ID, "name", proj.Name)
	NoContent(w)
}

// loadProject resolves the {id} path value, writing the error response
// itself. Callers bail out on a nil project.
func (s *Server) loadProject(w http.ResponseWriter, r *http.Request) (*project.Project, error) {
	id := r.PathValue("id")
	proj, err := s.projects.GetProject(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return nil, err
	}
	if proj == nil {
		HandleError(w, deckerrors.ErrProjectNotFound(id))
		return nil, nil
	}
	return proj, nil
}

func applyProjectRequest(proj *project.Project, req projectRequest) {
	if req.DefaultBranch != "" {
		proj.DefaultBranch = req.DefaultBranch
	}
	if req.Description != "" {
		proj.Description = req.Description
	}
	if req.AutoMerge != nil {
		proj.AutoMerge = *req.AutoMerge
	}
	if req.SetupCommand != "" {
		proj.SetupCommand = req.SetupCommand
	}
	if req.DeployCommand != "" {
		proj.DeployCommand = req.DeployCommand
	}
	if req.HealthPath != "" {
		proj.HealthPath = req.HealthPath
	}
	if req.UISelectors != nil {
		proj.UISelectors = req.UISelectors
	}
}
