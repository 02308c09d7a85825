package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"sorbo/backend/internal/domain"
	"sorbo/backend/internal/events"
	"sorbo/backend/internal/logging"
	"sorbo/backend/internal/metrics"
	"sorbo/backend/internal/service"
	"sorbo/backend/internal/store"
)

const (
	actorKey     = "actor"
	maxBodyBytes = 1 << 20
)

type API struct {
	service        *service.Service
	auth           *AuthManager
	hub            *events.Hub
	logger         *zap.Logger
	allowedOrigin  string
	metricsEnabled bool
	loginLimiter   *attemptLimiter
}

type Option func(*API)

func WithLogger(logger *zap.Logger) Option {
	return func(a *API) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithEvents enables the stock stream endpoint.
func WithEvents(hub *events.Hub) Option {
	return func(a *API) { a.hub = hub }
}

// WithMetrics records request latency and serves /metrics.
func WithMetrics() Option {
	return func(a *API) { a.metricsEnabled = true }
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, opts ...Option) *API {
	a := &API{
		service:       svc,
		auth:          auth,
		logger:        zap.NewNop(),
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(zap.String("component", "httpapi"))
	return a
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func (a *API) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestID(), logging.Middleware(a.logger), a.securityHeaders())
	if a.metricsEnabled {
		r.Use(metrics.Middleware())
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	r.GET("/healthz", a.handleHealth)

	v1 := r.Group("/api/v1")
	v1.POST("/auth/login", a.handleLogin)

	authed := v1.Group("", a.requireAuth(domain.RoleSeller, domain.RoleAdmin))
	admin := v1.Group("", a.requireAuth(domain.RoleAdmin))

	authed.GET("/costs", a.handleListCosts)
	authed.GET("/costs/:id", a.handleGetCost)
	admin.POST("/costs", a.handleCreateCost)
	admin.PATCH("/costs/:id", a.handleUpdateCost)
	admin.DELETE("/costs/:id", a.handleDeleteCost)

	authed.GET("/products", a.handleListProducts)
	authed.GET("/products/:id", a.handleGetProduct)
	authed.GET("/products/:id/price-history", a.handlePriceHistory)
	admin.POST("/products", a.handleCreateProduct)
	admin.POST("/products/preview", a.handlePreviewPrices)
	admin.POST("/products/recalculate", a.handleRecalculate)
	admin.PATCH("/products/:id", a.handleUpdateProduct)
	admin.DELETE("/products/:id", a.handleDeleteProduct)

	authed.GET("/stock/summary", a.handleStockSummary)
	if a.hub != nil {
		v1.GET("/stock/stream", a.handleStockStream)
	}

	authed.POST("/sales/validate", a.handleValidateSale)
	authed.GET("/sales", a.handleListSales)
	authed.POST("/sales", a.handleCreateSale)
	authed.GET("/sales/summary", a.handleSalesSummary)
	authed.GET("/sales/:id", a.handleGetSale)
	authed.GET("/sales/:id/receipt.pdf", a.handleReceipt)
	authed.PATCH("/sales/:id", a.handleUpdateSale)
	authed.DELETE("/sales/:id", a.handleDeleteSale)

	authed.GET("/drafts", a.handleListDrafts)
	authed.DELETE("/drafts", a.handleClearDrafts)
	authed.GET("/drafts/:id", a.handleGetDraft)
	authed.POST("/drafts/:id/commit", a.handleCommitDraft)
	authed.DELETE("/drafts/:id", a.handleDeleteDraft)

	authed.GET("/dashboard", a.handleDashboard)
	admin.GET("/audit-logs", a.handleAuditLogs)
	admin.GET("/users/sellers", a.handleListSellers)
	admin.POST("/users/sellers", a.handleCreateSeller)

	return r
}

func (a *API) securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Access-Control-Allow-Origin", a.allowedOrigin)
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		h.Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		h.Set("Vary", "Origin")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
		}
		c.Next()
	}
}

// requireAuth accepts a bearer token from the Authorization header. Only
// the stock stream also accepts ?token=, since browsers cannot set headers
// on a websocket handshake.
func (a *API) requireAuth(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := a.authenticate(c, false)
		if err != nil {
			writeError(c, http.StatusUnauthorized, err)
			c.Abort()
			return
		}
		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(c, http.StatusForbidden, errors.New("forbidden role"))
			c.Abort()
			return
		}

		c.Set(actorKey, actor)
		c.Request = c.Request.WithContext(service.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

func (a *API) authenticate(c *gin.Context, allowQuery bool) (domain.Actor, error) {
	authorization := strings.TrimSpace(c.GetHeader("Authorization"))
	var token string
	switch {
	case strings.HasPrefix(strings.ToLower(authorization), "bearer "):
		token = strings.TrimSpace(authorization[len("Bearer "):])
	case allowQuery:
		token = strings.TrimSpace(c.Query("token"))
	}
	if token == "" {
		return domain.Actor{}, errors.New("missing bearer token")
	}
	return a.auth.ParseToken(token)
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(c *gin.Context) {
	if !a.loginLimiter.Allow(c.ClientIP()) {
		writeError(c, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(c.Request.Context(), req)
	if err != nil {
		writeError(c, http.StatusUnauthorized, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// parseSaleFilter reads ?from=&to=&limit=. Dates are either YYYY-MM-DD or
// RFC3339; a plain date in to includes that whole day.
func parseSaleFilter(c *gin.Context) (domain.SaleFilter, error) {
	filter := domain.SaleFilter{Limit: parsePositiveLimit(c.Query("limit"), 0, 1000)}
	if raw := strings.TrimSpace(c.Query("from")); raw != "" {
		from, _, err := parseDate(raw)
		if err != nil {
			return filter, err
		}
		filter.From = &from
	}
	if raw := strings.TrimSpace(c.Query("to")); raw != "" {
		to, dayOnly, err := parseDate(raw)
		if err != nil {
			return filter, err
		}
		if dayOnly {
			to = to.Add(24 * time.Hour)
		}
		filter.To = &to
	}
	return filter, nil
}

func parseDate(raw string) (time.Time, bool, error) {
	if parsed, err := time.Parse("2006-01-02", raw); err == nil {
		return parsed.UTC(), true, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, store.ErrInvalidInput
	}
	return parsed.UTC(), false, nil
}

func statusFromError(err error) int {
	var (
		validationErr *service.ValidationError
		commitErr     *service.CommitError
	)
	switch {
	case errors.As(err, &validationErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &commitErr):
		if errors.Is(err, store.ErrInsufficientStock) {
			return http.StatusConflict
		}
		return http.StatusServiceUnavailable
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError maps a service error to its status and body. Validation
// errors carry the per-line map; commit errors carry the draft id.
func (a *API) writeServiceError(c *gin.Context, err error) {
	status := statusFromError(err)

	var (
		validationErr *service.ValidationError
		commitErr     *service.CommitError
	)
	switch {
	case errors.As(err, &validationErr):
		body := gin.H{"error": validationErr.Error()}
		if len(validationErr.Lines) > 0 {
			body["errors"] = validationErr.Lines
		}
		if validationErr.MaxStock != nil {
			body["max_stock"] = validationErr.MaxStock
		}
		c.JSON(status, body)
		return
	case errors.As(err, &commitErr):
		a.logger.Warn("sale commit failed", zap.String("operation", commitErr.Op), zap.String("draft_id", commitErr.DraftID), zap.Error(commitErr.Err))
		msg := "sale could not be saved"
		if status == http.StatusConflict {
			msg = "insufficient stock"
		}
		body := gin.H{"error": msg}
		if commitErr.DraftID != "" {
			body["draft_id"] = commitErr.DraftID
		}
		c.JSON(status, body)
		return
	}

	if status >= 500 {
		a.logger.Error("internal error", zap.Int("status", status), zap.Error(err))
	}
	writeError(c, status, err)
}

func writeError(c *gin.Context, status int, err error) {
	// 5xx details stay in the logs.
	msg := err.Error()
	if status >= 500 {
		_ = c.Error(err)
		msg = "internal server error"
	}
	c.JSON(status, gin.H{"error": msg})
}
