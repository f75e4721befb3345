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

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veslo/accounts/internal/domain"
	"github.com/veslo/accounts/internal/service/audit"
	"github.com/veslo/accounts/internal/service/auth"
	"github.com/veslo/accounts/internal/service/user"
	"github.com/veslo/accounts/internal/ws"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	auth     auth.Service
	users    user.Service
	audits   audit.Service
	upgrader websocket.Upgrader
	limiter  RateLimiter
	dbHealth func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault     = time.Minute
	rateWindowRealtime    = 30 * time.Second
	rateLimitSignup       = 5
	rateLimitLogin        = 12
	rateLimitReset        = 5
	rateLimitResetConfirm = 12
	rateLimitUserWrite    = 60
	rateLimitUserRead     = 120
	rateLimitStream       = 30
	healthCheckTimeout    = 2 * time.Second
	sseHeartbeatInterval  = 30 * time.Second
	defaultListLimit      = 50
	defaultAuditListLimit = 100
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, authSvc auth.Service, userSvc user.Service, auditSvc audit.Service, limiter RateLimiter, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		logger: logger,
		auth:   authSvc,
		users:  userSvc,
		audits: auditSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:  limiter,
		dbHealth: dbHealth,
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
	r.mux.HandleFunc("/metrics", promhttp.Handler().ServeHTTP)
	r.mux.HandleFunc("/healthz", r.instrument("/healthz", r.handleHealthz))
	r.mux.HandleFunc("/auth/signup", r.instrument("/auth/signup", r.withRateLimit("/auth/signup", rateLimitSignup, rateWindowDefault, rateLimitKeyIP, r.handleSignup)))
	r.mux.HandleFunc("/auth/login", r.instrument("/auth/login", r.withRateLimit("/auth/login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/auth/password/change", r.instrument("/auth/password/change", r.handlerAuthRate("/auth/password/change", rateLimitUserWrite, rateWindowDefault, r.handlePasswordChange)))
	r.mux.HandleFunc("/auth/password/reset", r.instrument("/auth/password/reset", r.withRateLimit("/auth/password/reset", rateLimitReset, rateWindowDefault, rateLimitKeyIP, r.handlePasswordReset)))
	r.mux.HandleFunc("/auth/password/reset/confirm", r.instrument("/auth/password/reset/confirm", r.withRateLimit("/auth/password/reset/confirm", rateLimitResetConfirm, rateWindowDefault, rateLimitKeyIP, r.handlePasswordResetConfirm)))
	r.mux.HandleFunc("/users/me", r.instrument("/users/me", r.handlerAuthRate("/users/me", rateLimitUserWrite, rateWindowDefault, r.handleMe)))
	r.mux.HandleFunc("/users", r.instrument("/users", r.handlerAuthRate("/users", rateLimitUserWrite, rateWindowDefault, r.handleUsers)))
	r.mux.HandleFunc("/users/", r.instrument("/users/:id", r.handlerAuthRate("/users/:id", rateLimitUserWrite, rateWindowDefault, r.handleUserSubroutes)))
	r.mux.HandleFunc("/audit", r.instrument("/audit", r.handlerAuthRate("/audit", rateLimitUserRead, rateWindowDefault, r.handleAuditList)))
	r.mux.HandleFunc("/ws/audit", r.instrument("/ws/audit", r.handlerAuthRate("/ws/audit", rateLimitStream, rateWindowRealtime, r.handleAuditWS)))
	r.mux.HandleFunc("/events/audit", r.instrument("/events/audit", r.handlerAuthRate("/events/audit", rateLimitStream, rateWindowRealtime, r.handleAuditSSE)))
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email     string `json:"email"`
		Username  string `json:"username"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Password  string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	account, tokens, err := r.auth.Register(req.Context(), auth.RegisterInput{
		Email:     payload.Email,
		Username:  payload.Username,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Password:  payload.Password,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":   marshalUser(account),
		"tokens": marshalTokens(tokens),
	})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	account, tokens, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":   marshalUser(account),
		"tokens": marshalTokens(tokens),
	})
}

func (r *Router) handlePasswordChange(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for password change", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	var payload struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := r.auth.ChangePassword(req.Context(), info.UserID, payload.OldPassword, payload.NewPassword); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
}

func (r *Router) handlePasswordReset(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(payload.Email) == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	if err := r.auth.RequestPasswordReset(req.Context(), payload.Email); err != nil {
		writeServiceError(w, err)
		return
	}
	// Accepted regardless of whether the email is registered.
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (r *Router) handlePasswordResetConfirm(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(payload.Token) == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	if err := r.auth.ConfirmPasswordReset(req.Context(), payload.Token, payload.NewPassword); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password_reset"})
}

func (r *Router) handleMe(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for profile route", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	switch req.Method {
	case http.MethodGet:
		account, profile, err := r.users.Get(req.Context(), info.UserID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, marshalUserWithProfile(account, profile))
	case http.MethodPatch, http.MethodPut:
		var payload user.UpdateInput
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		account, profile, err := r.users.Update(req.Context(), info.UserID, payload)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, marshalUserWithProfile(account, profile))
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleUsers(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		if _, ok := r.requireStaff(w, req); !ok {
			return
		}
		limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
		if limit <= 0 {
			limit = defaultListLimit
		}
		offset, _ := strconv.Atoi(req.URL.Query().Get("offset"))
		if offset < 0 {
			offset = 0
		}
		accounts, err := r.users.List(req.Context(), req.URL.Query().Get("search"), limit, offset)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		payload := make([]map[string]any, 0, len(accounts))
		for i := range accounts {
			payload = append(payload, marshalUser(&accounts[i]))
		}
		writeJSON(w, http.StatusOK, payload)
	case http.MethodPost:
		info, ok := r.requireAdmin(w, req)
		if !ok {
			return
		}
		var payload struct {
			Email       string `json:"email"`
			PhoneNumber string `json:"phone_number"`
			Username    string `json:"username"`
			FirstName   string `json:"first_name"`
			LastName    string `json:"last_name"`
			Password    string `json:"password"`
			Role        string `json:"role"`
			Superuser   bool   `json:"superuser"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		account, err := r.users.Create(req.Context(), user.CreateInput{
			Email:       payload.Email,
			PhoneNumber: payload.PhoneNumber,
			Username:    payload.Username,
			FirstName:   payload.FirstName,
			LastName:    payload.LastName,
			Password:    payload.Password,
			Role:        domain.Role(payload.Role),
			Superuser:   payload.Superuser,
			ActorID:     info.UserID,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, marshalUser(account))
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleUserSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/users/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 1 || parts[0] == "" {
		r.notFound(w)
		return
	}
	userID := parts[0]
	switch {
	case len(parts) == 1:
		r.handleUserGet(w, req, userID)
	case len(parts) == 2 && parts[1] == "role":
		r.handleUserRole(w, req, userID)
	case len(parts) == 2 && parts[1] == "active":
		r.handleUserActive(w, req, userID)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleUserGet(w http.ResponseWriter, req *http.Request, userID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if _, ok := r.requireStaff(w, req); !ok {
		return
	}
	account, profile, err := r.users.Get(req.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, marshalUserWithProfile(account, profile))
}

func (r *Router) handleUserRole(w http.ResponseWriter, req *http.Request, userID string) {
	if req.Method != http.MethodPatch {
		r.methodNotAllowed(w)
		return
	}
	info, ok := r.requireAdmin(w, req)
	if !ok {
		return
	}
	var payload struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	account, err := r.users.UpdateRole(req.Context(), info.UserID, userID, domain.Role(payload.Role))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, marshalUser(account))
}

func (r *Router) handleUserActive(w http.ResponseWriter, req *http.Request, userID string) {
	if req.Method != http.MethodPatch {
		r.methodNotAllowed(w)
		return
	}
	info, ok := r.requireAdmin(w, req)
	if !ok {
		return
	}
	var payload struct {
		Active *bool `json:"active"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if payload.Active == nil {
		writeError(w, http.StatusBadRequest, "active flag is required")
		return
	}
	if err := r.users.SetActive(req.Context(), info.UserID, userID, *payload.Active); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": userID, "is_active": *payload.Active})
}

func (r *Router) handleAuditList(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if _, ok := r.requireAdmin(w, req); !ok {
		return
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = defaultAuditListLimit
	}
	offset, _ := strconv.Atoi(req.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	events, err := r.audits.List(req.Context(), strings.TrimSpace(req.URL.Query().Get("user_id")), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	payload := make([]json.RawMessage, 0, len(events))
	for _, event := range events {
		data, err := audit.MarshalEvent(event)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		payload = append(payload, data)
	}
	writeJSON(w, http.StatusOK, payload)
}

func (r *Router) handleAuditWS(w http.ResponseWriter, req *http.Request) {
	if _, ok := r.requireAdmin(w, req); !ok {
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.audits.Hub().Register(audit.StreamTopic, client)
	go func() {
		defer func() {
			r.audits.Hub().Unregister(audit.StreamTopic, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) handleAuditSSE(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if _, ok := r.requireAdmin(w, req); !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	r.audits.Hub().Register(audit.StreamTopic, client)
	defer func() {
		r.audits.Hub().Unregister(audit.StreamTopic, client)
		client.Close()
	}()

	ticker := time.NewTicker(sseHeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
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

// instrument wraps a handler with request logging and metrics.
func (r *Router) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
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
			fields = append(fields, "user_id", info.UserID, "role", info.Role)
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

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
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
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (sr *statusRecorder) Push(target string, opts *http.PushOptions) error {
	if p, ok := sr.ResponseWriter.(http.Pusher); ok {
		return p.Push(target, opts)
	}
	return http.ErrNotSupported
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

func marshalUser(account *domain.User) map[string]any {
	return map[string]any{
		"id":           account.ID,
		"username":     account.Username,
		"email":        account.Email,
		"phone_number": account.PhoneNumber,
		"first_name":   account.FirstName,
		"last_name":    account.LastName,
		"role":         string(account.Role),
		"is_active":    account.IsActive,
		"is_staff":     account.IsStaff,
		"date_joined":  account.DateJoined.UTC().Format(time.RFC3339Nano),
	}
}

func marshalUserWithProfile(account *domain.User, profile *domain.Profile) map[string]any {
	payload := marshalUser(account)
	if profile != nil {
		payload["profile"] = map[string]any{
			"bio":         profile.Bio,
			"avatar_url":  profile.AvatarURL,
			"telegram_id": profile.TelegramID,
		}
	}
	return payload
}

func marshalTokens(tokens auth.TokenPair) map[string]any {
	return map[string]any{
		"access_token":       tokens.AccessToken,
		"refresh_token":      tokens.RefreshToken,
		"expires_in_seconds": int(tokens.ExpiresIn / time.Second),
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
