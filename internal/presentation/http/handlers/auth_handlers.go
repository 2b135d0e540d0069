package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/AtRiskMedia/tinysteps-go/internal/application/services"
	"github.com/AtRiskMedia/tinysteps-go/internal/domain/offline"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/performance"
	"github.com/gin-gonic/gin"
)

// AuthHandlers contains the admin login and the admin-only views
type AuthHandlers struct {
	authService *services.AuthService
	formService *services.FormService
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewAuthHandlers creates auth handlers with injected dependencies
func NewAuthHandlers(authService *services.AuthService, formService *services.FormService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		formService: formService,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// PostLogin handles POST /api/v1/admin/login - admin authentication
func (h *AuthHandlers) PostLogin(c *gin.Context) {
	start := time.Now()
	marker := h.perfTracker.StartOperation("auth:login")
	defer marker.Complete()
	h.logger.Auth().Debug("Received login request", "method", c.Request.Method, "path", c.Request.URL.Path)

	var loginReq struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&loginReq); err != nil {
		h.logger.Auth().Debug("Login request JSON binding failed", "error", err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	result, err := h.authService.AuthenticateAdmin(loginReq.Password)
	if err != nil {
		marker.SetError(err)
		if errors.Is(err, services.ErrUnauthorized) {
			h.logger.Auth().Warn("Login attempt failed", "clientIP", c.ClientIP(), "duration", time.Since(start))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Authentication failed"})
		return
	}

	h.logger.Auth().Info("Login successful", "role", result.Role, "duration", time.Since(start))
	c.JSON(http.StatusOK, result)
}

// GetSubmissions handles GET /api/v1/admin/submissions?kind=&limit=
func (h *AuthHandlers) GetSubmissions(c *gin.Context) {
	var kind offline.FormKind
	if raw := c.Query("kind"); raw != "" {
		parsed, err := offline.ParseFormKind(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		kind = parsed
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	submissions, err := h.formService.List(kind, limit)
	if err != nil {
		h.logger.Forms().Error("Failed to list submissions", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list submissions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"submissions": submissions,
		"count":       len(submissions),
	})
}

// GetMetrics handles GET /api/v1/admin/metrics - operation timings and cache hit ratio
func (h *AuthHandlers) GetMetrics(c *gin.Context) {
	snapshot := h.perfTracker.Snapshot()
	fetch := snapshot.Operations["gateway:fetch"]
	c.JSON(http.StatusOK, gin.H{
		"snapshot":      snapshot,
		"cacheHitRatio": fetch.CacheHitRatio(),
	})
}
