// Package health serves the liveness and readiness endpoints.
package health

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Check reports whether one dependency is healthy.
type Check func(ctx context.Context) error

// Report is the /health body.
type Report struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

// Handler runs the registered checks.
type Handler struct {
	checks  map[string]Check
	timeout time.Duration
	logger  *zap.Logger
}

// NewHandler creates a health handler with no checks.
func NewHandler(logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{checks: make(map[string]Check), timeout: 2 * time.Second, logger: logger}
}

// Register adds a named check. A nil check is ignored.
func (h *Handler) Register(name string, check Check) *Handler {
	if check != nil {
		h.checks[name] = check
	}
	return h
}

// Health handles GET /health: 200 when every check passes, 503 otherwise.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	report := Report{Status: "healthy", Timestamp: time.Now().UTC(), Services: make(map[string]string, len(h.checks))}
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("service", name), zap.Error(err))
			report.Services[name] = "unhealthy"
			report.Status = "degraded"
			continue
		}
		report.Services[name] = "healthy"
	}

	status := http.StatusOK
	if report.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// Live handles GET /healthz.
func (h *Handler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
