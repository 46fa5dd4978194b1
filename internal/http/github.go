package httpx

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/service/installation"
)

func (r *Router) handleGitHubInstall(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	target, err := r.installations.InstallURL(strings.TrimSpace(req.URL.Query().Get("state")))
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	http.Redirect(w, req, target, http.StatusTemporaryRedirect)
}

// handleGitHubCallback forwards GitHub's post-install redirect to the frontend, which
// completes the link through /api/github/connect with the user's session.
func (r *Router) handleGitHubCallback(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	query := req.URL.Query()
	rawID := strings.TrimSpace(query.Get("installation_id"))
	if _, err := installation.ParseInstallationID(rawID); err != nil {
		r.logger.Warn("github callback without valid installation id", "installation_id", rawID)
		failure := url.Values{"error": {"github_auth_failed"}, "detail": {"missing_installation_id"}}
		http.Redirect(w, req, r.cfg.FrontendURL+"/projects/import?"+failure.Encode(), http.StatusTemporaryRedirect)
		return
	}
	r.logger.Info("github app installation callback", "installation_id", rawID, "setup_action", query.Get("setup_action"))
	http.Redirect(w, req, r.installations.CallbackURL(rawID, strings.TrimSpace(query.Get("setup_action"))), http.StatusTemporaryRedirect)
}

func (r *Router) handleGitHubConnect(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	info, ok := r.mustAuthInfo(w, req)
	if !ok {
		return
	}
	var payload struct {
		InstallationID json.Number `json:"installation_id"`
	}
	if err := decodeJSON(w, req, &payload, false, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	id, err := installation.ParseInstallationID(payload.InstallationID.String())
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	inst, err := r.installations.Connect(req.Context(), info.UserID, id)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "installation": inst})
}

func (r *Router) handleGitHubStatus(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := r.mustAuthInfo(w, req)
	if !ok {
		return
	}
	status, err := r.installations.Status(req.Context(), info.UserID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (r *Router) handleGitHubInstallation(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := r.mustAuthInfo(w, req)
	if !ok {
		return
	}
	inst, err := r.installations.Active(req.Context(), info.UserID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (r *Router) handleGitHubRepositories(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := r.mustAuthInfo(w, req)
	if !ok {
		return
	}
	repos, err := r.installations.Repositories(req.Context(), info.UserID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"repositories": repos, "count": len(repos)})
}

func (r *Router) handleImportRepository(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	info, ok := r.mustAuthInfo(w, req)
	if !ok {
		return
	}
	var payload struct {
		FullName string `json:"full_name"`
	}
	if err := decodeJSON(w, req, &payload, false, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	repo, err := r.installations.ImportRepository(req.Context(), info.UserID, payload.FullName)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, repo)
}

func (r *Router) handleImportedRepositories(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := r.mustAuthInfo(w, req)
	if !ok {
		return
	}
	repos, err := r.installations.Imported(req.Context(), info.UserID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"repositories": repos, "count": len(repos)})
}
