package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/domain"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/service/project"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/ws"
)

// handleProjectEvents streams project change events as Server-Sent Events, starting
// with a snapshot of the current state.
func (r *Router) handleProjectEvents(w http.ResponseWriter, req *http.Request, projectID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := r.mustAuthInfo(w, req)
	if !ok {
		return
	}
	if r.hub == nil {
		writeError(w, http.StatusInternalServerError, "event stream unavailable")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	current, err := r.projects.Get(req.Context(), projectID, info.UserID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}

	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	if snapshot, err := snapshotPayload(*current); err == nil {
		_ = client.Send(snapshot)
	}
	r.hub.Register(current.ID, client)
	defer func() {
		r.hub.Unregister(current.ID, client)
		client.Close()
	}()

	interval := r.heartbeat
	if interval <= 0 {
		interval = streamHeartbeat
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-client.Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

// handleProjectsWS upgrades to a websocket that receives change events for one project.
func (r *Router) handleProjectsWS(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := r.mustAuthInfo(w, req)
	if !ok {
		return
	}
	if r.hub == nil {
		writeError(w, http.StatusInternalServerError, "event stream unavailable")
		return
	}
	projectID := strings.TrimSpace(req.URL.Query().Get("project_id"))
	if projectID == "" {
		writeError(w, http.StatusBadRequest, "project_id query parameter required")
		return
	}
	current, err := r.projects.Get(req.Context(), projectID, info.UserID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err, "project_id", projectID)
		return
	}
	client := ws.NewClient(conn, r.logger)
	if snapshot, err := snapshotPayload(*current); err == nil {
		_ = client.Send(snapshot)
	}
	r.hub.Register(current.ID, client)
	go func() {
		defer func() {
			r.hub.Unregister(current.ID, client)
			client.Close()
		}()
		client.Wait()
	}()
}

func snapshotPayload(p domain.Project) ([]byte, error) {
	return json.Marshal(project.Event{
		Type:          "project.snapshot",
		ProjectID:     p.ID,
		Status:        p.Status,
		WorkflowPhase: p.WorkflowPhase,
		UpdatedAt:     p.UpdatedAt,
	})
}
