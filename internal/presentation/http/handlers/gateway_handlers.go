package handlers

import (
	"errors"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/AtRiskMedia/tinysteps-go/internal/application/services"
	"github.com/AtRiskMedia/tinysteps-go/internal/domain/offline"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/performance"
	"github.com/gin-gonic/gin"
)

// GatewayHandlers exposes the offline gateway: cache-first page serving,
// deferred form submission, sync signals and notifications.
type GatewayHandlers struct {
	gatewayService *services.GatewayService
	broadcaster    messaging.Broadcaster
	proxy          *httputil.ReverseProxy
	logger         *logging.ChanneledLogger
	perfTracker    *performance.Tracker
}

// NewGatewayHandlers creates gateway handlers. Requests the gateway does not
// intercept are reverse-proxied to the origin.
func NewGatewayHandlers(gatewayService *services.GatewayService, broadcaster messaging.Broadcaster, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *GatewayHandlers {
	origin := gatewayService.Origin()
	proxy := httputil.NewSingleHostReverseProxy(origin)
	director := proxy.Director
	proxy.Director = func(r *http.Request) {
		director(r)
		r.Host = origin.Host
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Gateway().Warn("Origin unreachable", "path", r.URL.Path, "method", r.Method, "error", err.Error())
		w.WriteHeader(http.StatusBadGateway)
	}

	return &GatewayHandlers{
		gatewayService: gatewayService,
		broadcaster:    broadcaster,
		proxy:          proxy,
		logger:         logger,
		perfTracker:    perfTracker,
	}
}

// ServeGateway handles every unrouted request.
func (h *GatewayHandlers) ServeGateway(c *gin.Context) {
	resp, err := h.gatewayService.Fetch(c.Request.Context(), c.Request)
	if errors.Is(err, offline.ErrNotIntercepted) {
		marker := h.perfTracker.StartOperation("gateway:proxy")
		defer marker.Complete()
		h.proxy.ServeHTTP(c.Writer, c.Request)
		return
	}

	marker := h.perfTracker.StartOperation("gateway:fetch")
	defer marker.Complete()
	if err != nil {
		marker.SetError(err)
		h.logger.Gateway().Error("Gateway fetch failed", "path", c.Request.URL.Path, "error", err.Error())
		c.Status(http.StatusBadGateway)
		return
	}
	marker.SetCacheHit(resp.Source == offline.SourceCache)
	marker.SetSuccess(resp.Source != offline.SourcePlaceholder)
	resp.Serve(c.Writer)
}

// PostForm handles POST /gateway/forms/:kind - submit, deferring on failure
func (h *GatewayHandlers) PostForm(c *gin.Context) {
	kind, err := offline.ParseFormKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	payload, err := bindPayload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	marker := h.perfTracker.StartOperation("gateway:submit")
	defer marker.Complete()
	marker.AddMetadata("formKind", kind)

	result, err := h.gatewayService.Submit(c.Request.Context(), kind, payload)
	if err != nil {
		marker.SetError(err)
		h.logger.LogError(logging.ChannelGateway, "submit", err, map[string]any{"formKind": kind})
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "submission could not be sent or saved"})
		return
	}
	if result.Deferred {
		c.JSON(http.StatusAccepted, gin.H{
			"deferred": true,
			"syncTag":  kind.SyncTag(),
		})
		return
	}
	c.Data(result.Status, "application/json; charset=utf-8", result.Body)
}

// PostSync handles POST /api/v1/gateway/sync/:tag - background-sync signal
func (h *GatewayHandlers) PostSync(c *gin.Context) {
	tag := c.Param("tag")
	start := time.Now()
	marker := h.perfTracker.StartOperation("gateway:sync")
	defer marker.Complete()

	err := h.gatewayService.Sync(c.Request.Context(), tag)
	marker.SetError(err)
	switch {
	case errors.Is(err, offline.ErrUnknownTag):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "retry": true})
	default:
		h.logger.Gateway().Debug("Sync handled", "syncTag", tag, "duration", time.Since(start))
		c.JSON(http.StatusOK, gin.H{"syncTag": tag, "status": "synced"})
	}
}

// GetStatus handles GET /api/v1/gateway/status
func (h *GatewayHandlers) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.gatewayService.Status(c.Request.Context()))
}

// StreamNotifications handles GET /api/v1/notifications/stream
func (h *GatewayHandlers) StreamNotifications(c *gin.Context) {
	streamTopic(c, h.broadcaster, messaging.TopicNotifications, h.logger, nil)
}
