package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/service/project"
)

func TestProjectEventsStreamSnapshotAndUpdates(t *testing.T) {
	env := newTestEnv(t)
	env.router.heartbeat = 20 * time.Millisecond
	created := env.createProject(t, env.seedRepository(t, env.userID, 400), "Streamed")
	projectID, _ := created["id"].(string)

	req := httptest.NewRequest(http.MethodGet, "/api/projects/"+projectID+"/events", nil)
	ctx := context.WithValue(req.Context(), contextKeyAuth, authInfo{UserID: env.userID})
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	req = req.WithContext(ctx)

	recorder := newStreamRecorder()
	done := make(chan struct{})
	go func() {
		env.router.handleProjectEvents(recorder, req, projectID)
		close(done)
	}()

	waitFor(t, 2*time.Second, func() bool { return env.hub.Subscribers(projectID) == 1 })
	waitFor(t, 2*time.Second, func() bool { return strings.Contains(recorder.body(), ": ping") })

	started, err := env.projects.StartWorkflow(context.Background(), projectID, env.userID, project.WorkflowConfig{})
	if err != nil || !started {
		t.Fatalf("start workflow: %v %v", started, err)
	}
	waitFor(t, 2*time.Second, func() bool { return strings.Contains(recorder.body(), "project.start") })

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event stream handler did not exit after context cancel")
	}
	waitFor(t, 2*time.Second, func() bool { return env.hub.Subscribers(projectID) == 0 })

	if ct := recorder.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if recorder.flushCount() == 0 {
		t.Fatalf("expected flusher to be invoked")
	}
	payloads, err := extractSSEPayloads(recorder.body())
	if err != nil {
		t.Fatalf("extract sse payloads: %v", err)
	}
	if len(payloads) != 2 {
		t.Fatalf("expected snapshot and start events, got %d", len(payloads))
	}
	if payloads[0]["type"] != "project.snapshot" || payloads[0]["status"] != "initializing" {
		t.Fatalf("unexpected snapshot %v", payloads[0])
	}
	if payloads[1]["status"] != "analyzing" || payloads[1]["workflow_phase"] != "analysis" {
		t.Fatalf("unexpected start event %v", payloads[1])
	}
}

func TestProjectEventsStreamRejectsForeignProject(t *testing.T) {
	env := newTestEnv(t)
	created := env.createProject(t, env.seedRepository(t, env.userID, 401), "Private")
	projectID, _ := created["id"].(string)
	_, otherID := env.login(t, "user_ext_spy", "spy@example.com")

	req := httptest.NewRequest(http.MethodGet, "/api/projects/"+projectID+"/events", nil)
	req = req.WithContext(context.WithValue(req.Context(), contextKeyAuth, authInfo{UserID: otherID}))
	recorder := newStreamRecorder()
	env.router.handleProjectEvents(recorder, req, projectID)

	if recorder.statusCode() != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", recorder.statusCode())
	}
	if recorder.flushCount() != 0 {
		t.Fatalf("expected no flushes for hidden project")
	}
}

func TestProjectEventsStreamRequiresFlusher(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/projects/x/events", nil)
	req = req.WithContext(context.WithValue(req.Context(), contextKeyAuth, authInfo{UserID: env.userID}))
	w := newNoFlushRecorder()
	env.router.handleProjectEvents(w, req, "x")

	if w.statusCode() != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", w.statusCode())
	}
	if msg := parseError(t, w.body()); msg != "streaming not supported" {
		t.Fatalf("unexpected error message %q", msg)
	}
}

func TestProjectsWebsocketReceivesEvents(t *testing.T) {
	env := newTestEnv(t)
	created := env.createProject(t, env.seedRepository(t, env.userID, 402), "Socket")
	projectID, _ := created["id"].(string)

	server := httptest.NewServer(env.router)
	defer server.Close()

	target := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/projects?" + url.Values{
		"project_id": {projectID},
		"token":      {env.token},
	}.Encode()
	conn, resp, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected status 101, got %d", resp.StatusCode)
	}

	var snapshot project.Event
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snapshot.Type != "project.snapshot" || snapshot.ProjectID != projectID {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}

	waitFor(t, 2*time.Second, func() bool { return env.hub.Subscribers(projectID) == 1 })
	if _, err := env.projects.StartWorkflow(context.Background(), projectID, env.userID, project.WorkflowConfig{}); err != nil {
		t.Fatalf("start workflow: %v", err)
	}
	var event project.Event
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if event.Type != "project.start" || event.Status != "analyzing" {
		t.Fatalf("unexpected event %+v", event)
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	waitFor(t, 2*time.Second, func() bool { return env.hub.Subscribers(projectID) == 0 })
}

func TestProjectsWebsocketValidatesRequest(t *testing.T) {
	env := newTestEnv(t)

	if rr := env.do(t, http.MethodGet, "/ws/projects", env.token, ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected missing project_id to 400, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/ws/projects?project_id=nope", env.token, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected unknown project to 404, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/ws/projects?project_id=nope", "", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected anonymous upgrade to 401, got %d", rr.Code)
	}
}

type streamRecorder struct {
	mu     sync.Mutex
	header http.Header
	status int
	buf    bytes.Buffer
	flush  int
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{header: make(http.Header)}
}

func (s *streamRecorder) Header() http.Header {
	return s.header
}

func (s *streamRecorder) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.buf.Write(b)
}

func (s *streamRecorder) WriteHeader(status int) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *streamRecorder) Flush() {
	s.mu.Lock()
	s.flush++
	s.mu.Unlock()
}

func (s *streamRecorder) body() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func (s *streamRecorder) flushCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush
}

func (s *streamRecorder) statusCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

type noFlushRecorder struct {
	header http.Header
	status int
	buf    bytes.Buffer
}

func newNoFlushRecorder() *noFlushRecorder {
	return &noFlushRecorder{header: make(http.Header)}
}

func (r *noFlushRecorder) Header() http.Header {
	return r.header
}

func (r *noFlushRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.buf.Write(b)
}

func (r *noFlushRecorder) WriteHeader(status int) {
	r.status = status
}

func (r *noFlushRecorder) body() string {
	return r.buf.String()
}

func (r *noFlushRecorder) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func extractSSEPayloads(body string) ([]map[string]any, error) {
	var payloads []map[string]any
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &payload); err != nil {
			return nil, err
		}
		payloads = append(payloads, payload)
	}
	return payloads, nil
}
