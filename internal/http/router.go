package httpx

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/service/auth"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/service/installation"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/service/project"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/service/user"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/service/webhook"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/internal/ws"
	"github.com/RAJ-SUDHARSHAN/sirpi-bolt/pkg/config"
)

// Services groups the application services exposed over HTTP.
type Services struct {
	Auth          auth.Service
	Users         user.Service
	Installations installation.Service
	Projects      project.Service
	Webhooks      webhook.Service
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux           *http.ServeMux
	handler       http.Handler
	logger        *slog.Logger
	cfg           config.APIConfig
	auth          auth.Service
	users         user.Service
	installations installation.Service
	projects      project.Service
	webhooks      webhook.Service
	hub           *ws.Hub
	upgrader      websocket.Upgrader
	limiter       RateLimiter
	dbHealth      func(context.Context) error
	heartbeat     time.Duration

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
	transitions        *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitPublic    = 30
	rateLimitWebhook   = 300
	rateLimitUserRead  = 120
	rateLimitUserWrite = 60
	rateLimitGitHub    = 30
	rateLimitRealtime  = 30
	healthCheckTimeout = 2 * time.Second
	streamHeartbeat    = 15 * time.Second
	maxWebhookBody     = 1 << 20
	maxJSONBody        = 1 << 20
)

// NewRouter assembles routes with dependencies.
func NewRouter(cfg config.APIConfig, logger *slog.Logger, services Services, hub *ws.Hub, limiter RateLimiter, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:           http.NewServeMux(),
		logger:        logger,
		cfg:           cfg,
		auth:          services.Auth,
		users:         services.Users,
		installations: services.Installations,
		projects:      services.Projects,
		webhooks:      services.Webhooks,
		hub:           hub,
		limiter:       limiter,
		dbHealth:      dbHealth,
		heartbeat:     streamHeartbeat,
	}
	r.upgrader = websocket.Upgrader{CheckOrigin: r.originAllowed}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()

	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger: logger}),
		handlers.PrintRecoveryStack(cfg.Debug),
	)
	cors := handlers.CORS(
		handlers.AllowedOrigins(cfg.Origins()),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", "X-Request-ID"}),
		handlers.ExposedHeaders([]string{"X-Process-Time", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"}),
		handlers.AllowCredentials(),
	)
	r.handler = cors(recovery(r.mux))
	return r
}

// ServeHTTP delegates to the middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/health", r.audit("/health", r.handleHealth))
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())

	r.handlePublic("/api/webhooks/clerk", rateLimitWebhook, r.handleClerkWebhook)
	r.handlePublic("/api/webhooks/github", rateLimitWebhook, r.handleGitHubWebhook)
	r.handlePublic("/api/github/webhook", rateLimitWebhook, r.handleGitHubWebhook)
	r.handlePublic("/api/github/install", rateLimitPublic, r.handleGitHubInstall)
	r.handlePublic("/api/github/callback", rateLimitPublic, r.handleGitHubCallback)

	r.handleAuthed("/api/users/me", rateLimitUserRead, rateWindowDefault, r.handleMe)
	r.handleAuthed("/api/users/me/overview", rateLimitUserRead, rateWindowDefault, r.handleOverview)
	r.handleAuthed("/api/users/me/gcp", rateLimitUserWrite, rateWindowDefault, r.handleConnectGCP)

	r.handleAuthed("/api/github/connect", rateLimitGitHub, rateWindowDefault, r.handleGitHubConnect)
	r.handleAuthed("/api/github/status", rateLimitGitHub, rateWindowDefault, r.handleGitHubStatus)
	r.handleAuthed("/api/github/installation", rateLimitUserRead, rateWindowDefault, r.handleGitHubInstallation)
	r.handleAuthed("/api/github/repositories", rateLimitGitHub, rateWindowDefault, r.handleGitHubRepositories)
	r.handleAuthed("/api/github/repos/import", rateLimitGitHub, rateWindowDefault, r.handleImportRepository)
	r.handleAuthed("/api/github/repos/imported", rateLimitUserRead, rateWindowDefault, r.handleImportedRepositories)

	r.handleAuthed("/api/projects", rateLimitUserWrite, rateWindowDefault, r.handleProjects)
	r.mux.HandleFunc("/api/projects/", r.audit("/api/projects/{id}", r.handlerAuthRate("/api/projects/{id}", rateLimitUserWrite, rateWindowDefault, r.handleProjectSubroutes)))
	r.handleAuthed("/api/templates", rateLimitUserRead, rateWindowDefault, r.handleTemplates)

	r.handleAuthed("/ws/projects", rateLimitRealtime, rateWindowRealtime, r.handleProjectsWS)
}

func (r *Router) handlePublic(route string, limit int, next http.HandlerFunc) {
	r.mux.HandleFunc(route, r.audit(route, r.withRateLimit(route, limit, rateWindowDefault, rateLimitKeyIP, next)))
}

func (r *Router) handleAuthed(route string, limit int, window time.Duration, next http.HandlerFunc) {
	r.mux.HandleFunc(route, r.audit(route, r.handlerAuthRate(route, limit, window, next)))
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   r.cfg.ServiceName,
		"version":   r.cfg.Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	if r.hub != nil {
		components["events"] = map[string]any{"status": "up"}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, start: start}
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)
		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
		} else if strings.HasPrefix(req.URL.Path, "/api/webhooks/") {
			actor = "webhook"
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

// statusRecorder captures the response status and stamps X-Process-Time before headers are sent.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	start  time.Time
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.ResponseWriter.Header().Set("X-Process-Time", strconv.FormatFloat(time.Since(sr.start).Seconds(), 'f', 6, 64))
	}
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.WriteHeader(http.StatusOK)
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		sr.status = http.StatusSwitchingProtocols
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

type recoveryLogger struct {
	logger *slog.Logger
}

func (l recoveryLogger) Println(args ...any) {
	l.logger.Error("panic recovered", "error", fmt.Sprint(args...))
}

func (r *Router) originAllowed(req *http.Request) bool {
	origin := req.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range r.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
