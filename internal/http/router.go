package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/domain"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/service/app"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/service/environment"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/service/release"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/service/version"
	"github.com/Deployment-Dashboard/Deployment-Dashboard/internal/ws"
)

// Services groups the use cases exposed over HTTP.
type Services struct {
	Apps     app.Service
	Envs     environment.Service
	Versions version.Service
	Releases release.Service
}

// Options tunes the router. Zero limits disable rate limiting for that class.
type Options struct {
	Limiter    RateLimiter
	ReadLimit  int
	WriteLimit int
	Tickets    TicketRewriter
	Health     func(context.Context) error
	// Hub enables /api/apps/{key}/events when set.
	Hub *ws.Hub
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	apps       app.Service
	envs       environment.Service
	versions   version.Service
	releases   release.Service
	limiter    RateLimiter
	readLimit  int
	writeLimit int
	tickets    TicketRewriter
	dbHealth   func(context.Context) error
	hub        *ws.Hub
	upgrader   websocket.Upgrader

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
	releaseOutcomes    *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	maxBodyBytes       = 1 << 20
	healthCheckTimeout = 2 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, svc Services, opts Options) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		mux:        http.NewServeMux(),
		logger:     logger,
		apps:       svc.Apps,
		envs:       svc.Envs,
		versions:   svc.Versions,
		releases:   svc.Releases,
		limiter:    opts.Limiter,
		readLimit:  opts.ReadLimit,
		writeLimit: opts.WriteLimit,
		tickets:    opts.Tickets,
		dbHealth:   opts.Health,
		hub:        opts.Hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/api/apps", r.audit("/api/apps", r.withClassLimit("/api/apps", r.handleApps)))
	r.mux.HandleFunc("/api/apps-overview", r.audit("/api/apps-overview", r.withClassLimit("/api/apps-overview", r.handleOverview)))
	r.mux.HandleFunc("/api/apps/", r.handleAppSubroutes)
	r.mux.HandleFunc("/api/force/apps/", r.handleForceSubroutes)
	r.mux.HandleFunc("/api/deployments", r.audit("/api/deployments", r.withClassLimit("/api/deployments", r.handleDeployments)))
}

// routed wraps a subroute handler with the access log and rate limit of route.
func (r *Router) routed(w http.ResponseWriter, req *http.Request, route string, next http.HandlerFunc) {
	r.audit(route, r.withClassLimit(route, next))(w, req)
}

type appPayload struct {
	Key    string `json:"key"`
	Name   string `json:"name"`
	Parent string `json:"parent"`
}

type environmentPayload struct {
	Name   string `json:"name"`
	AppKey string `json:"app_key"`
}

type versionPayload struct {
	Description string `json:"description"`
}

type environmentResponse struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type versionResponse struct {
	AppKey      string    `json:"app_key"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (r *Router) handleApps(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		details, err := r.releases.AllAppDetails(req.Context())
		if err != nil {
			r.writeDomainError(w, req, err)
			return
		}
		for i := range details {
			r.rewriteDetail(&details[i])
		}
		writeJSON(w, http.StatusOK, details)
	case http.MethodPost:
		var payload appPayload
		if !decodeJSON(w, req, &payload) {
			return
		}
		created, err := r.apps.Create(req.Context(), app.CreateInput{Key: payload.Key, Name: payload.Name, ParentKey: payload.Parent})
		if err != nil {
			r.writeDomainError(w, req, err)
			return
		}
		r.writeAppDetail(w, req, http.StatusCreated, created.Key)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleOverview(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	overviews, err := r.releases.ProjectOverviews(req.Context())
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	for i := range overviews {
		if overviews[i].Latest != nil {
			overviews[i].Latest.TicketReference = r.tickets.Rewrite(overviews[i].Latest.TicketReference)
		}
	}
	writeJSON(w, http.StatusOK, overviews)
}

func (r *Router) handleDeployments(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	views, err := r.releases.ListDeployments(req.Context())
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	r.rewriteViews(views)
	writeJSON(w, http.StatusOK, views)
}

func (r *Router) handleAppSubroutes(w http.ResponseWriter, req *http.Request) {
	parts := splitPath(strings.TrimPrefix(req.URL.Path, "/api/apps/"))
	switch {
	case len(parts) == 1:
		r.routed(w, req, "/api/apps/{key}", func(w http.ResponseWriter, req *http.Request) {
			r.handleApp(w, req, parts[0])
		})
	case len(parts) == 2 && parts[1] == "envs":
		r.routed(w, req, "/api/apps/{key}/envs", func(w http.ResponseWriter, req *http.Request) {
			r.handleEnvironments(w, req, parts[0])
		})
	case len(parts) == 2 && parts[1] == "events":
		r.routed(w, req, "/api/apps/{key}/events", func(w http.ResponseWriter, req *http.Request) {
			r.handleEvents(w, req, parts[0])
		})
	case len(parts) == 3 && parts[1] == "envs":
		r.routed(w, req, "/api/apps/{key}/envs/{env}", func(w http.ResponseWriter, req *http.Request) {
			r.handleEnvironment(w, req, parts[0], parts[2])
		})
	case len(parts) == 4 && parts[1] == "envs" && parts[3] == "versions":
		r.routed(w, req, "/api/apps/{key}/envs/{env}/versions", func(w http.ResponseWriter, req *http.Request) {
			r.handleRelease(w, req, parts[0], parts[2], false)
		})
	case len(parts) == 6 && parts[1] == "envs" && parts[3] == "versions" && parts[5] == "deployment":
		r.routed(w, req, "/api/apps/{key}/envs/{env}/versions/{version}/deployment", func(w http.ResponseWriter, req *http.Request) {
			r.handleDeployment(w, req, parts[0], parts[2], parts[4])
		})
	case len(parts) == 3 && parts[1] == "versions":
		r.routed(w, req, "/api/apps/{key}/versions/{version}", func(w http.ResponseWriter, req *http.Request) {
			r.handleVersion(w, req, parts[0], parts[2])
		})
	default:
		r.audit("unmatched", func(w http.ResponseWriter, req *http.Request) { r.notFound(w) })(w, req)
	}
}

func (r *Router) handleForceSubroutes(w http.ResponseWriter, req *http.Request) {
	parts := splitPath(strings.TrimPrefix(req.URL.Path, "/api/force/apps/"))
	if len(parts) == 4 && parts[1] == "envs" && parts[3] == "versions" {
		r.routed(w, req, "/api/force/apps/{key}/envs/{env}/versions", func(w http.ResponseWriter, req *http.Request) {
			r.handleRelease(w, req, parts[0], parts[2], true)
		})
		return
	}
	r.audit("unmatched", func(w http.ResponseWriter, req *http.Request) { r.notFound(w) })(w, req)
}

func splitPath(trimmed string) []string {
	trimmed = strings.Trim(trimmed, "/")
	if trimmed == "" {
		return nil
	}
	parts := strings.Split(trimmed, "/")
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return nil
		}
	}
	return parts
}

func (r *Router) handleApp(w http.ResponseWriter, req *http.Request, key string) {
	switch req.Method {
	case http.MethodGet:
		r.writeAppDetail(w, req, http.StatusOK, key)
	case http.MethodPut:
		var payload appPayload
		if !decodeJSON(w, req, &payload) {
			return
		}
		updated, err := r.apps.Update(req.Context(), key, app.UpdateInput{Key: payload.Key, Name: payload.Name, ParentKey: payload.Parent})
		if err != nil {
			r.writeDomainError(w, req, err)
			return
		}
		r.writeAppDetail(w, req, http.StatusOK, updated.Key)
	case http.MethodDelete:
		force, ok := r.forceParam(w, req)
		if !ok {
			return
		}
		if err := r.apps.Delete(req.Context(), key, force); err != nil {
			r.writeDomainError(w, req, err)
			return
		}
		status := "archived"
		if force {
			status = "deleted"
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": status, "key": app.NormalizeKey(key)})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleEnvironments(w http.ResponseWriter, req *http.Request, appKey string) {
	switch req.Method {
	case http.MethodGet:
		envs, err := r.envs.List(req.Context(), appKey)
		if err != nil {
			r.writeDomainError(w, req, err)
			return
		}
		out := make([]environmentResponse, 0, len(envs))
		for _, e := range envs {
			out = append(out, environmentResponse{Name: e.Name, CreatedAt: e.CreatedAt})
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		var payload environmentPayload
		if !decodeJSON(w, req, &payload) {
			return
		}
		env, err := r.envs.Create(req.Context(), appKey, payload.Name)
		if err != nil {
			r.writeDomainError(w, req, err)
			return
		}
		writeJSON(w, http.StatusCreated, environmentResponse{Name: env.Name, CreatedAt: env.CreatedAt})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleEnvironment(w http.ResponseWriter, req *http.Request, appKey, name string) {
	switch req.Method {
	case http.MethodPut:
		var payload environmentPayload
		if !decodeJSON(w, req, &payload) {
			return
		}
		env, err := r.envs.Rename(req.Context(), environment.RenameInput{
			AppKey:    appKey,
			Name:      name,
			NewName:   payload.Name,
			NewAppKey: payload.AppKey,
		})
		if err != nil {
			r.writeDomainError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, environmentResponse{Name: env.Name, CreatedAt: env.CreatedAt})
	case http.MethodDelete:
		force, ok := r.forceParam(w, req)
		if !ok {
			return
		}
		if err := r.envs.Delete(req.Context(), appKey, name, force); err != nil {
			r.writeDomainError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "environment": name})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleVersion(w http.ResponseWriter, req *http.Request, appKey, name string) {
	switch req.Method {
	case http.MethodPut:
		var payload versionPayload
		if !decodeJSON(w, req, &payload) {
			return
		}
		v, err := r.versions.UpdateDescription(req.Context(), appKey, name, payload.Description)
		if err != nil {
			r.writeDomainError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, versionResponse{
			AppKey:      app.NormalizeKey(appKey),
			Name:        v.Name,
			Description: v.Description,
			CreatedAt:   v.CreatedAt,
		})
	case http.MethodDelete:
		force, ok := r.forceParam(w, req)
		if !ok {
			return
		}
		if err := r.versions.Delete(req.Context(), appKey, name, force); err != nil {
			r.writeDomainError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "version": name})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleDeployment(w http.ResponseWriter, req *http.Request, appKey, envName, versionName string) {
	if req.Method != http.MethodDelete {
		r.methodNotAllowed(w)
		return
	}
	if err := r.releases.DeleteDeployment(req.Context(), appKey, envName, versionName); err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (r *Router) handleRelease(w http.ResponseWriter, req *http.Request, projectKey, envName string, force bool) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	targets, ticket, err := parseReleaseQuery(req.URL.RawQuery)
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	result, err := r.releases.Release(req.Context(), release.Input{
		ProjectKey:      projectKey,
		EnvironmentName: envName,
		Targets:         targets,
		TicketReference: ticket,
		Force:           force,
	})
	r.recordRelease(len(result.Deployments), force, err)
	r.rewriteViews(result.Deployments)
	if err != nil {
		body := r.domainErrorBody(req, err)
		if len(result.Deployments) > 0 {
			body.Committed = result.Deployments
		}
		writeJSON(w, body.Status, body)
		return
	}
	writeJSON(w, http.StatusOK, result)
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
			components["store"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["store"] = map[string]any{"status": "up"}
		}
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

func (r *Router) writeAppDetail(w http.ResponseWriter, req *http.Request, status int, key string) {
	detail, err := r.releases.AppDetail(req.Context(), key)
	if err != nil {
		r.writeDomainError(w, req, err)
		return
	}
	r.rewriteDetail(detail)
	writeJSON(w, status, detail)
}

func (r *Router) rewriteDetail(detail *domain.AppDetail) {
	for _, versions := range detail.Versions {
		for _, v := range versions {
			for env, stamp := range v.Deployments {
				stamp.TicketReference = r.tickets.Rewrite(stamp.TicketReference)
				v.Deployments[env] = stamp
			}
		}
	}
}

func (r *Router) rewriteViews(views []domain.DeploymentView) {
	for i := range views {
		views[i].TicketReference = r.tickets.Rewrite(views[i].TicketReference)
	}
}

func (r *Router) forceParam(w http.ResponseWriter, req *http.Request) (bool, bool) {
	raw := strings.TrimSpace(req.URL.Query().Get("force"))
	if raw == "" {
		return false, true
	}
	force, err := strconv.ParseBool(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "force must be a boolean")
		return false, false
	}
	return force, true
}

func decodeJSON(w http.ResponseWriter, req *http.Request, dst any) bool {
	req.Body = http.MaxBytesReader(w, req.Body, maxBodyBytes)
	if err := json.NewDecoder(req.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		reqID := strings.TrimSpace(req.Header.Get("X-Request-ID"))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"route", route,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
			"request_id", reqID,
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}

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

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
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
