package httpx

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/domain"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/service/project"
)

func (r *Router) handleProjects(w http.ResponseWriter, req *http.Request) {
	info, ok := r.mustAuthInfo(w, req)
	if !ok {
		return
	}
	switch req.Method {
	case http.MethodGet:
		skip, limit, err := pageParams(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		result, err := r.projects.List(req.Context(), info.UserID, skip, limit)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case http.MethodPost:
		var payload project.CreateInput
		if err := decodeJSON(w, req, &payload, false, false); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		created, err := r.projects.Create(req.Context(), info.UserID, payload)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		r.writeProject(w, req, http.StatusCreated, *created)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleProjectSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(req.URL.Path, "/api/projects/"), "/")
	parts := strings.Split(trimmed, "/")
	projectID := parts[0]
	if projectID == "" {
		r.notFound(w)
		return
	}
	switch {
	case len(parts) == 1:
		r.handleProject(w, req, projectID)
	case len(parts) == 2 && parts[1] == "events":
		r.handleProjectEvents(w, req, projectID)
	case len(parts) == 3 && parts[1] == "workflow":
		r.handleWorkflow(w, req, projectID, parts[2])
	default:
		r.notFound(w)
	}
}

func (r *Router) handleProject(w http.ResponseWriter, req *http.Request, projectID string) {
	info, ok := r.mustAuthInfo(w, req)
	if !ok {
		return
	}
	switch req.Method {
	case http.MethodGet:
		found, err := r.projects.Get(req.Context(), projectID, info.UserID)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		r.writeProject(w, req, http.StatusOK, *found)
	case http.MethodPut:
		var patch domain.ProjectPatch
		if err := decodeJSON(w, req, &patch, true, true); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		updated, err := r.projects.Update(req.Context(), projectID, info.UserID, patch)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		r.writeProject(w, req, http.StatusOK, *updated)
	case http.MethodDelete:
		deleted, err := r.projects.Delete(req.Context(), projectID, info.UserID)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		if !deleted {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		writeMessage(w, http.StatusOK, "Project deleted successfully")
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleWorkflow(w http.ResponseWriter, req *http.Request, projectID, action string) {
	info, ok := r.mustAuthInfo(w, req)
	if !ok {
		return
	}
	if action == "status" {
		if req.Method != http.MethodGet {
			r.methodNotAllowed(w)
			return
		}
		status, err := r.projects.WorkflowStatus(req.Context(), projectID, info.UserID)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	transition, ok := domain.ParseTransition(action)
	if !ok {
		r.notFound(w)
		return
	}
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}

	if transition == domain.TransitionStart {
		var cfg project.WorkflowConfig
		if err := decodeJSON(w, req, &cfg, false, true); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		started, err := r.projects.StartWorkflow(req.Context(), projectID, info.UserID, cfg)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		if !started {
			r.recordTransition(string(transition), "rejected")
			writeError(w, http.StatusNotFound, "Project not found or workflow already running")
			return
		}
		r.recordTransition(string(transition), "applied")
		writeMessage(w, http.StatusOK, "Workflow started successfully")
		return
	}

	var payload struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(w, req, &payload, false, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	updated, err := r.projects.Transition(req.Context(), projectID, info.UserID, transition, payload.Reason)
	if err != nil {
		if errors.Is(err, project.ErrInvalidTransition) {
			r.recordTransition(string(transition), "rejected")
		}
		r.writeServiceError(w, req, err)
		return
	}
	r.recordTransition(string(transition), "applied")
	r.writeProject(w, req, http.StatusOK, *updated)
}

func (r *Router) handleTemplates(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	templates, err := r.projects.Templates(req.Context())
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": templates, "count": len(templates)})
}

func (r *Router) writeProject(w http.ResponseWriter, req *http.Request, status int, p domain.Project) {
	view, err := r.projects.Describe(req.Context(), p)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, status, view)
}

func pageParams(req *http.Request) (int, int, error) {
	query := req.URL.Query()
	skip, limit := 0, 0
	if raw := strings.TrimSpace(query.Get("skip")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, errors.New("skip must be an integer")
		}
		skip = parsed
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, errors.New("limit must be an integer")
		}
		limit = parsed
	}
	return skip, limit, nil
}
