package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
)

func (r *Router) handleMe(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := r.mustAuthInfo(w, req)
	if !ok {
		return
	}
	user, err := r.users.Me(req.Context(), info.UserID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":          user,
		"gcp_connected": user.GCPConnected(),
	})
}

func (r *Router) handleOverview(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := r.mustAuthInfo(w, req)
	if !ok {
		return
	}
	overview, err := r.users.Overview(req.Context(), info.UserID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (r *Router) handleConnectGCP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPut {
		r.methodNotAllowed(w)
		return
	}
	info, ok := r.mustAuthInfo(w, req)
	if !ok {
		return
	}
	var payload struct {
		ProjectID         string          `json:"project_id"`
		ServiceAccountKey json.RawMessage `json:"service_account_key"`
	}
	if err := decodeJSON(w, req, &payload, false, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := r.users.ConnectGCP(req.Context(), info.UserID, payload.ProjectID, serviceAccountKey(payload.ServiceAccountKey))
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"gcp_connected":  user.GCPConnected(),
		"gcp_project_id": user.GCPProjectID,
	})
}

// serviceAccountKey accepts the key either as an embedded object or as a JSON-encoded string.
func serviceAccountKey(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return trimmed
}
