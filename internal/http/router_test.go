package httpx

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/domain"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/github"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/repository"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/repository/memory"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/service/auth"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/service/installation"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/service/project"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/service/user"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/service/webhook"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/ws"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/pkg/config"
	jwtpkg "github.com/RAJ-SUDHARSHAN/sirpi-bolt/pkg/jwt"
)

var clerkKey = []byte("0123456789abcdef0123456789abcdef")

type testEnv struct {
	router   *Router
	store    *memory.Store
	hub      *ws.Hub
	limiter  *rateLimiterStub
	auth     auth.Service
	projects project.Service
	cfg      config.APIConfig
	token    string
	userID   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.APIConfig{
		ServiceName:         "sirpi-api",
		Version:             "test",
		JWTSecret:           "test-secret",
		EncryptionKey:       "test-encryption-key",
		SlugInsertTries:     3,
		FrontendURL:         "https://app.example.com",
		AllowedOrigins:      []string{"https://app.example.com"},
		GitHubAppName:       "sirpi-app",
		GitHubWebhookSecret: "gh-secret",
		ClerkWebhookSecret:  "whsec_" + base64.StdEncoding.EncodeToString(clerkKey),
	}
	store := memory.New()
	hub := ws.NewHub(logger)
	t.Cleanup(hub.Close)

	authSvc := auth.New(store, logger, cfg)
	userSvc := user.New(store, store, store, store, logger, cfg)
	installSvc := installation.New(store, store, newGitHubStub(), logger, cfg)
	projectSvc := project.New(store, store, store, hub, logger, cfg)
	webhookSvc := webhook.New(userSvc, installSvc, logger, cfg)

	limiter := newRateLimiterStub()
	router := NewRouter(cfg, logger, Services{
		Auth:          authSvc,
		Users:         userSvc,
		Installations: installSvc,
		Projects:      projectSvc,
		Webhooks:      webhookSvc,
	}, hub, limiter, nil)
	t.Cleanup(router.Close)

	env := &testEnv{
		router:   router,
		store:    store,
		hub:      hub,
		limiter:  limiter,
		auth:     authSvc,
		projects: projectSvc,
		cfg:      cfg,
	}
	env.token, env.userID = env.login(t, "user_ext_1", "dev@example.com")
	return env
}

func (e *testEnv) login(t *testing.T, subject, email string) (string, string) {
	t.Helper()
	token, err := jwtpkg.GenerateToken(subject, email, e.cfg.JWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	u, _, err := e.auth.Authorize(context.Background(), token)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	return token, u.ID
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) seedRepository(t *testing.T, owner string, githubID int64) string {
	t.Helper()
	language := "TypeScript"
	repo := &domain.Repository{
		ID:       uuid.NewString(),
		UserID:   owner,
		GitHubID: githubID,
		Name:     "demo",
		FullName: "octo/demo-" + strconv.FormatInt(githubID, 10),
		Language: &language,
	}
	if err := e.store.UpsertRepository(context.Background(), repo); err != nil {
		t.Fatalf("seed repository: %v", err)
	}
	return repo.ID
}

func (e *testEnv) createProject(t *testing.T, repoID, name string) map[string]any {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/projects", e.token, fmt.Sprintf(`{"repository_id":%q,"name":%q}`, repoID, name))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	return decodeObject(t, rr.Body.String())
}

func TestHealthReportsServiceAndProcessTime(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/health", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if rr.Header().Get("X-Process-Time") == "" {
		t.Fatalf("expected X-Process-Time header")
	}
	body := decodeObject(t, rr.Body.String())
	if body["status"] != "healthy" || body["service"] != "sirpi-api" || body["version"] != "test" {
		t.Fatalf("unexpected health payload %v", body)
	}

	metrics := env.do(t, http.MethodGet, "/metrics", "", "")
	if metrics.Code != http.StatusOK || !strings.Contains(metrics.Body.String(), "sirpi_api_http_requests_total") {
		t.Fatalf("expected request counter in metrics output, got %d", metrics.Code)
	}
}

func TestHealthzReportsDatabase(t *testing.T) {
	env := newTestEnv(t)
	env.router.dbHealth = func(context.Context) error { return errors.New("connection refused") }

	rr := env.do(t, http.MethodGet, "/healthz", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	body := decodeObject(t, rr.Body.String())
	if body["status"] != "degraded" {
		t.Fatalf("unexpected status %v", body["status"])
	}

	env.router.dbHealth = func(context.Context) error { return nil }
	if rr := env.do(t, http.MethodGet, "/healthz", "", ""); rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestProtectedRoutesRequireBearerToken(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/projects", "/api/users/me", "/api/github/status", "/api/templates"} {
		rr := env.do(t, http.MethodGet, path, "", "")
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected status 401, got %d", path, rr.Code)
		}
		body := decodeObject(t, rr.Body.String())
		if body["success"] != false || body["error"] != "authentication required" {
			t.Fatalf("%s: unexpected error body %v", path, body)
		}
	}
	if rr := env.do(t, http.MethodGet, "/api/users/me", "not-a-jwt", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected invalid token to be rejected, got %d", rr.Code)
	}
}

func TestMeProvisionsFromToken(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.login(t, "user_ext_2", "")

	rr := env.do(t, http.MethodGet, "/api/users/me", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var payload struct {
		User         domain.User `json:"user"`
		GCPConnected bool        `json:"gcp_connected"`
	}
	decodeInto(t, rr.Body.String(), &payload)
	if payload.User.Email != "user_ext_2@unknown.com" || payload.GCPConnected {
		t.Fatalf("unexpected profile %+v", payload)
	}

	gcp := env.do(t, http.MethodPut, "/api/users/me/gcp", token, `{"project_id":"my-proj","service_account_key":{"type":"service_account"}}`)
	if gcp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", gcp.Code, gcp.Body.String())
	}
	if body := decodeObject(t, gcp.Body.String()); body["gcp_connected"] != true || body["gcp_project_id"] != "my-proj" {
		t.Fatalf("unexpected gcp response %v", body)
	}
	bad := env.do(t, http.MethodPut, "/api/users/me/gcp", token, `{"project_id":"my-proj","service_account_key":"nope"}`)
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", bad.Code)
	}

	overview := env.do(t, http.MethodGet, "/api/users/me/overview", token, "")
	if overview.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", overview.Code)
	}
	if body := decodeObject(t, overview.Body.String()); body["gcp_connected"] != true {
		t.Fatalf("expected overview to report gcp connection, got %v", body["gcp_connected"])
	}
}

func TestProjectLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	repoID := env.seedRepository(t, env.userID, 100)

	created := env.createProject(t, repoID, "  Demo App ")
	projectID, _ := created["id"].(string)
	if created["slug"] != "demo-app" || created["status"] != "initializing" {
		t.Fatalf("unexpected created project %v", created)
	}
	if info, ok := created["framework_info"].(map[string]any); !ok || info["icon"] == nil {
		t.Fatalf("expected framework info, got %v", created["framework_info"])
	}
	if created["repository_name"] != "octo/demo-100" {
		t.Fatalf("unexpected repository name %v", created["repository_name"])
	}

	dup := env.do(t, http.MethodPost, "/api/projects", env.token, fmt.Sprintf(`{"repository_id":%q,"name":"again"}`, repoID))
	if dup.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", dup.Code)
	}

	list := env.do(t, http.MethodGet, "/api/projects?skip=0&limit=10", env.token, "")
	var page project.ListResult
	decodeInto(t, list.Body.String(), &page)
	if page.Total != 1 || len(page.Projects) != 1 || page.Limit != 10 {
		t.Fatalf("unexpected page %+v", page)
	}
	if rr := env.do(t, http.MethodGet, "/api/projects?limit=abc", env.token, ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for bad limit, got %d", rr.Code)
	}

	other, _ := env.login(t, "user_ext_other", "other@example.com")
	if rr := env.do(t, http.MethodGet, "/api/projects/"+projectID, other, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected foreign project to be hidden, got %d", rr.Code)
	}

	if rr := env.do(t, http.MethodPut, "/api/projects/"+projectID, env.token, `{"status":"deployed"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status patch to be rejected, got %d", rr.Code)
	}
	patched := env.do(t, http.MethodPut, "/api/projects/"+projectID, env.token, `{"name":"Renamed","environment_variables":{"API_KEY":"secret"}}`)
	if patched.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", patched.Code, patched.Body.String())
	}
	if body := decodeObject(t, patched.Body.String()); body["name"] != "Renamed" || body["slug"] != "demo-app" {
		t.Fatalf("unexpected patched project %v", body)
	}

	start := env.do(t, http.MethodPost, "/api/projects/"+projectID+"/workflow/start", env.token, `{"cloud_provider":"gcp"}`)
	if start.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", start.Code, start.Body.String())
	}
	again := env.do(t, http.MethodPost, "/api/projects/"+projectID+"/workflow/start", env.token, "")
	if again.Code != http.StatusNotFound || parseError(t, again.Body.String()) != "Project not found or workflow already running" {
		t.Fatalf("expected second start to be refused, got %d %s", again.Code, again.Body.String())
	}

	status := env.do(t, http.MethodGet, "/api/projects/"+projectID+"/workflow/status", env.token, "")
	var workflow domain.WorkflowStatus
	decodeInto(t, status.Body.String(), &workflow)
	if workflow.Status != domain.StatusAnalyzing || workflow.WorkflowPhase == nil || *workflow.WorkflowPhase != domain.PhaseAnalysis {
		t.Fatalf("unexpected workflow status %+v", workflow)
	}

	steps := []struct {
		action string
		code   int
		status string
	}{
		{"pause", http.StatusOK, "paused"},
		{"complete", http.StatusConflict, ""},
		{"resume", http.StatusOK, "analyzing"},
		{"complete", http.StatusOK, "deployed"},
		{"pause", http.StatusConflict, ""},
	}
	for _, step := range steps {
		rr := env.do(t, http.MethodPost, "/api/projects/"+projectID+"/workflow/"+step.action, env.token, "")
		if rr.Code != step.code {
			t.Fatalf("%s: expected status %d, got %d: %s", step.action, step.code, rr.Code, rr.Body.String())
		}
		if step.status != "" {
			if body := decodeObject(t, rr.Body.String()); body["status"] != step.status {
				t.Fatalf("%s: expected status %s, got %v", step.action, step.status, body["status"])
			}
		}
	}
	if rr := env.do(t, http.MethodPost, "/api/projects/"+projectID+"/workflow/explode", env.token, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected unknown transition to 404, got %d", rr.Code)
	}

	if rr := env.do(t, http.MethodDelete, "/api/projects/"+projectID, env.token, ""); rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, "/api/projects/"+projectID, env.token, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected second delete to 404, got %d", rr.Code)
	}
}

func TestFailTransitionRecordsReason(t *testing.T) {
	env := newTestEnv(t)
	created := env.createProject(t, env.seedRepository(t, env.userID, 200), "Broken")
	projectID, _ := created["id"].(string)

	rr := env.do(t, http.MethodPost, "/api/projects/"+projectID+"/workflow/fail", env.token, `{"reason":"  quota exceeded "}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var view project.View
	decodeInto(t, rr.Body.String(), &view)
	if view.Status != domain.StatusFailed || view.Coordination.FailureReason != "quota exceeded" {
		t.Fatalf("unexpected failed project %+v", view.Project)
	}
}

func TestCreateProjectValidation(t *testing.T) {
	env := newTestEnv(t)
	repoID := env.seedRepository(t, env.userID, 300)

	cases := map[string]struct {
		body string
		code int
	}{
		"blank name":   {fmt.Sprintf(`{"repository_id":%q,"name":"   "}`, repoID), http.StatusBadRequest},
		"long name":    {fmt.Sprintf(`{"repository_id":%q,"name":%q}`, repoID, strings.Repeat("x", 101)), http.StatusBadRequest},
		"unknown repo": {fmt.Sprintf(`{"repository_id":%q,"name":"demo"}`, uuid.NewString()), http.StatusNotFound},
		"bad json":     {`{"repository_id":`, http.StatusBadRequest},
	}
	for name, tc := range cases {
		rr := env.do(t, http.MethodPost, "/api/projects", env.token, tc.body)
		if rr.Code != tc.code {
			t.Fatalf("%s: expected status %d, got %d", name, tc.code, rr.Code)
		}
		if decodeObject(t, rr.Body.String())["success"] != false {
			t.Fatalf("%s: expected success=false", name)
		}
	}
}

func TestGitHubInstallAndCallbackRedirect(t *testing.T) {
	env := newTestEnv(t)

	install := env.do(t, http.MethodGet, "/api/github/install?state=abc", "", "")
	if install.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected status 307, got %d", install.Code)
	}
	if loc := install.Header().Get("Location"); loc != "https://github.com/apps/sirpi-app/installations/new?state=abc" {
		t.Fatalf("unexpected install location %q", loc)
	}

	callback := env.do(t, http.MethodGet, "/api/github/callback?installation_id=11&setup_action=install", "", "")
	if loc := callback.Header().Get("Location"); loc != "https://app.example.com/projects/import?installation_id=11&setup_action=install" {
		t.Fatalf("unexpected callback location %q", loc)
	}

	missing := env.do(t, http.MethodGet, "/api/github/callback", "", "")
	if loc := missing.Header().Get("Location"); !strings.Contains(loc, "error=github_auth_failed") {
		t.Fatalf("expected failure redirect, got %q", loc)
	}
}

func TestGitHubConnectImportAndWebhook(t *testing.T) {
	env := newTestEnv(t)

	if rr := env.do(t, http.MethodGet, "/api/github/installation", env.token, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected no installation yet, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, "/api/github/connect", env.token, `{"installation_id":"abc"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected invalid id to 400, got %d", rr.Code)
	}
	connect := env.do(t, http.MethodPost, "/api/github/connect", env.token, `{"installation_id":11}`)
	if connect.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", connect.Code, connect.Body.String())
	}

	var status installation.Status
	decodeInto(t, env.do(t, http.MethodGet, "/api/github/status", env.token, "").Body.String(), &status)
	if !status.Connected || status.RepositoriesCount != 1 {
		t.Fatalf("unexpected status %+v", status)
	}

	imported := env.do(t, http.MethodPost, "/api/github/repos/import", env.token, `{"full_name":"octo/api"}`)
	if imported.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", imported.Code, imported.Body.String())
	}
	var repo domain.Repository
	decodeInto(t, imported.Body.String(), &repo)
	if rr := env.do(t, http.MethodPost, "/api/github/repos/import", env.token, `{"full_name":"octo/missing"}`); rr.Code != http.StatusNotFound {
		t.Fatalf("expected missing repo to 404, got %d", rr.Code)
	}
	unavailable := env.do(t, http.MethodPost, "/api/github/repos/import", env.token, `{"full_name":"octo/down"}`)
	if unavailable.Code != http.StatusBadGateway {
		t.Fatalf("expected upstream failure to 502, got %d", unavailable.Code)
	}
	if msg := parseError(t, unavailable.Body.String()); msg != upstreamUnavailableMessage {
		t.Fatalf("expected generic upstream message, got %q", msg)
	}

	var list struct {
		Repositories []domain.Repository `json:"repositories"`
		Count        int                 `json:"count"`
	}
	decodeInto(t, env.do(t, http.MethodGet, "/api/github/repos/imported", env.token, "").Body.String(), &list)
	if list.Count != 1 || list.Repositories[0].ID != repo.ID {
		t.Fatalf("unexpected imported list %+v", list)
	}

	created := env.createProject(t, repo.ID, "API")
	if created["framework"] != "go" {
		t.Fatalf("expected framework inferred from language, got %v", created["framework"])
	}

	payload := []byte(`{"action":"suspend","installation":{"id":11}}`)
	bad := githubWebhookRequest(payload, webhook.Sign(payload, []byte("wrong")))
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, bad)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	env.router.ServeHTTP(rr, githubWebhookRequest(payload, webhook.Sign(payload, []byte("gh-secret"))))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/api/github/installation", env.token, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected suspended installation to be inactive, got %d", rr.Code)
	}
}

func TestClerkWebhookProvisionsUser(t *testing.T) {
	env := newTestEnv(t)
	payload := []byte(`{"type":"user.created","data":{"id":"user_hook","primary_email_address_id":"e1","email_addresses":[{"id":"e1","email_address":"hook@example.com"}]}}`)

	unsigned := httptest.NewRequest(http.MethodPost, "/api/webhooks/clerk", strings.NewReader(string(payload)))
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, unsigned)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}

	signed := httptest.NewRequest(http.MethodPost, "/api/webhooks/clerk", strings.NewReader(string(payload)))
	for key, values := range svixHeaders(payload, time.Now()) {
		signed.Header[key] = values
	}
	rr = httptest.NewRecorder()
	env.router.ServeHTTP(rr, signed)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d: %s", rr.Code, rr.Body.String())
	}
	u, err := env.store.GetUserByExternalID(context.Background(), "user_hook")
	if err != nil || u.Email != "hook@example.com" {
		t.Fatalf("expected provisioned user, got %+v %v", u, err)
	}
}

func TestRateLimitedRequest(t *testing.T) {
	env := newTestEnv(t)
	reset := time.Unix(1_950_000_000, 0)
	env.limiter.allowFn = func(key string, limit int, window time.Duration) rateDecision {
		return rateDecision{allowed: false, count: limit, windowEnd: reset}
	}

	rr := env.do(t, http.MethodGet, "/api/users/me", env.token, "")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("X-RateLimit-Limit"); got != strconv.Itoa(rateLimitUserRead) {
		t.Fatalf("unexpected rate limit header %q", got)
	}
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("unexpected remaining header %q", got)
	}
	if got := rr.Header().Get("X-RateLimit-Reset"); got != "1950000000" {
		t.Fatalf("unexpected reset header %q", got)
	}
	if got := rr.Header().Get("Retry-After"); got == "" || got == "0" {
		t.Fatalf("expected a positive Retry-After header, got %q", got)
	}

	env.limiter.mu.Lock()
	call := env.limiter.calls[len(env.limiter.calls)-1]
	env.limiter.mu.Unlock()
	if call.key != "user:"+env.userID+"@/api/users/me" {
		t.Fatalf("unexpected limiter key %q", call.key)
	}
}

func TestMemoryRateLimiterWindow(t *testing.T) {
	now := time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)
	rl := &memoryRateLimiter{entries: make(map[string]rateState), now: func() time.Time { return now }, stopCh: make(chan struct{})}
	defer rl.Close()

	for i := 1; i <= 2; i++ {
		if d := rl.Allow("ip:1", 2, time.Minute); !d.allowed || d.count != i {
			t.Fatalf("call %d: unexpected decision %+v", i, d)
		}
	}
	if d := rl.Allow("ip:1", 2, time.Minute); d.allowed {
		t.Fatalf("expected third call to be limited")
	}
	now = now.Add(2 * time.Minute)
	if d := rl.Allow("ip:1", 2, time.Minute); !d.allowed || d.count != 1 {
		t.Fatalf("expected window reset, got %+v", d)
	}
	if got := retryAfterSeconds(now.Add(1500*time.Millisecond), now); got != 2 {
		t.Fatalf("expected Retry-After to round up to 2, got %d", got)
	}
	if got := retryAfterSeconds(time.Time{}, now); got != 1 {
		t.Fatalf("expected Retry-After floor of 1, got %d", got)
	}
	rl.cleanup(now.Add(time.Hour))
	if len(rl.entries) != 0 {
		t.Fatalf("expected expired entries swept")
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/projects", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if rr.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("expected credentials to be allowed")
	}
}

func TestServiceErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{fmt.Errorf("%w: project not found", repository.ErrNotFound), http.StatusNotFound, "project not found"},
		{fmt.Errorf("%w: bad name", repository.ErrInvalidArgument), http.StatusBadRequest, "bad name"},
		{repository.ErrSlugTaken, http.StatusConflict, "slug already taken"},
		{fmt.Errorf("list repos: %w", github.ErrUpstreamUnavailable), http.StatusBadGateway, "list repos: github unavailable"},
		{repository.ErrNotFound, http.StatusNotFound, "not found"},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.status {
			t.Fatalf("%v: expected status %d, got %d", tc.err, tc.status, got)
		}
		if got := publicMessage(tc.err); got != tc.msg {
			t.Fatalf("%v: expected message %q, got %q", tc.err, tc.msg, got)
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	for _, debug := range []bool{false, true} {
		router := &Router{logger: logger, cfg: config.APIConfig{Debug: debug}}
		rr := httptest.NewRecorder()
		router.writeServiceError(rr, req, errors.New("pq: connection reset"))
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("expected status 500, got %d", rr.Code)
		}
		msg := parseError(t, rr.Body.String())
		if strings.Contains(msg, "connection reset") != debug {
			t.Fatalf("debug=%v: unexpected message %q", debug, msg)
		}
		if !strings.HasPrefix(msg, unexpectedErrorMessage) {
			t.Fatalf("unexpected message %q", msg)
		}
	}

	upstream := fmt.Errorf("get repository: %w: GET https://api.github.com/repos/octo/api: 503 upstream overloaded", github.ErrUpstreamUnavailable)
	for _, debug := range []bool{false, true} {
		router := &Router{logger: logger, cfg: config.APIConfig{Debug: debug}}
		rr := httptest.NewRecorder()
		router.writeServiceError(rr, req, upstream)
		if rr.Code != http.StatusBadGateway {
			t.Fatalf("expected status 502, got %d", rr.Code)
		}
		msg := parseError(t, rr.Body.String())
		if !strings.HasPrefix(msg, upstreamUnavailableMessage) {
			t.Fatalf("debug=%v: unexpected message %q", debug, msg)
		}
		if strings.Contains(msg, "api.github.com") != debug {
			t.Fatalf("debug=%v: upstream detail exposure mismatch in %q", debug, msg)
		}
	}
}

func TestRecoveryHandlerMasksPanics(t *testing.T) {
	env := newTestEnv(t)
	env.router.mux.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) { panic("kaboom") })

	rr := env.do(t, http.MethodGet, "/boom", "", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "kaboom") {
		t.Fatalf("expected panic value to be hidden")
	}
}

type gitHubStub struct {
	installations map[int64]github.Installation
	repos         map[string]github.Repo
}

func newGitHubStub() *gitHubStub {
	language := "Go"
	return &gitHubStub{
		installations: map[int64]github.Installation{11: {ID: 11, AccountLogin: "octo", AccountType: "User"}},
		repos: map[string]github.Repo{
			"octo/api": {GitHubID: 900, Name: "api", FullName: "octo/api", Language: &language, DefaultBranch: "main"},
		},
	}
}

func (s *gitHubStub) Installation(ctx context.Context, installationID int64) (*github.Installation, error) {
	inst, ok := s.installations[installationID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &inst, nil
}

func (s *gitHubStub) ListRepositories(ctx context.Context, installationID int64) ([]github.Repo, error) {
	out := make([]github.Repo, 0, len(s.repos))
	for _, r := range s.repos {
		out = append(out, r)
	}
	return out, nil
}

func (s *gitHubStub) CountRepositories(ctx context.Context, installationID int64) (int, error) {
	return len(s.repos), nil
}

func (s *gitHubStub) GetRepository(ctx context.Context, installationID int64, fullName string) (*github.Repo, error) {
	if fullName == "octo/down" {
		return nil, fmt.Errorf("get repository: %w", github.ErrUpstreamUnavailable)
	}
	r, ok := s.repos[fullName]
	if !ok {
		return nil, fmt.Errorf("%w: repository not found", repository.ErrNotFound)
	}
	return &r, nil
}

type rateLimiterStub struct {
	mu      sync.Mutex
	calls   []rateLimitCall
	allowFn func(key string, limit int, window time.Duration) rateDecision
}

type rateLimitCall struct {
	key    string
	limit  int
	window time.Duration
}

func newRateLimiterStub() *rateLimiterStub {
	return &rateLimiterStub{}
}

func (rl *rateLimiterStub) Allow(key string, limit int, window time.Duration) rateDecision {
	rl.mu.Lock()
	rl.calls = append(rl.calls, rateLimitCall{key: key, limit: limit, window: window})
	fn := rl.allowFn
	rl.mu.Unlock()
	if fn != nil {
		return fn(key, limit, window)
	}
	return rateDecision{allowed: true, count: 1, windowEnd: time.Now().Add(window)}
}

func (rl *rateLimiterStub) Close() {}

func githubWebhookRequest(payload []byte, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/github", strings.NewReader(string(payload)))
	req.Header.Set("X-GitHub-Event", "installation")
	req.Header.Set("X-GitHub-Delivery", "delivery-1")
	req.Header.Set("X-Hub-Signature-256", signature)
	return req
}

func svixHeaders(payload []byte, at time.Time) http.Header {
	id := "msg_router"
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, clerkKey)
	mac.Write([]byte(id + "." + ts + "." + string(payload)))
	headers := http.Header{}
	headers.Set("svix-id", id)
	headers.Set("svix-timestamp", ts)
	headers.Set("svix-signature", "v1,"+base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	return headers
}

func decodeObject(t *testing.T, body string) map[string]any {
	t.Helper()
	var payload map[string]any
	decodeInto(t, body, &payload)
	return payload
}

func decodeInto(t *testing.T, body string, dst any) {
	t.Helper()
	if err := json.Unmarshal([]byte(body), dst); err != nil {
		t.Fatalf("decode payload %q: %v", body, err)
	}
}

func parseError(t *testing.T, body string) string {
	t.Helper()
	v, _ := decodeObject(t, body)["error"].(string)
	return v
}
