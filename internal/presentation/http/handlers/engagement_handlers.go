package handlers

import (
	"errors"
	"net/http"

	"github.com/AtRiskMedia/tinysteps-go/internal/application/services"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// EngagementHandlers drives the per-page prompt watchers
type EngagementHandlers struct {
	engagementService *services.EngagementService
	broadcaster       messaging.Broadcaster
	logger            *logging.ChanneledLogger
}

// NewEngagementHandlers creates engagement handlers with injected dependencies
func NewEngagementHandlers(engagementService *services.EngagementService, broadcaster messaging.Broadcaster, logger *logging.ChanneledLogger) *EngagementHandlers {
	return &EngagementHandlers{
		engagementService: engagementService,
		broadcaster:       broadcaster,
		logger:            logger,
	}
}

// PostPage handles POST /api/v1/engagement/pages - a page load
func (h *EngagementHandlers) PostPage(c *gin.Context) {
	var req struct {
		VisitorID string `json:"visitorId"`
		Path      string `json:"path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}
	if req.VisitorID == "" {
		req.VisitorID = c.GetHeader("X-Visitor-ID")
	}

	info, err := h.engagementService.OpenPage(c.Request.Context(), req.VisitorID, req.Path)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, info)
}

// PostEvent handles POST /api/v1/engagement/pages/:id/events
func (h *EngagementHandlers) PostEvent(c *gin.Context) {
	var ev services.PageEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	result, err := h.engagementService.HandleEvent(c.Request.Context(), c.Param("id"), ev)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetPage handles GET /api/v1/engagement/pages/:id - watcher status
func (h *EngagementHandlers) GetPage(c *gin.Context) {
	watchers, open, err := h.engagementService.Status(c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pageId":   c.Param("id"),
		"watchers": watchers,
		"open":     open,
	})
}

// DeletePage handles DELETE /api/v1/engagement/pages/:id - page unload
func (h *EngagementHandlers) DeletePage(c *gin.Context) {
	if err := h.engagementService.ClosePage(c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// StreamPage handles GET /api/v1/engagement/pages/:id/stream
func (h *EngagementHandlers) StreamPage(c *gin.Context) {
	pageID := c.Param("id")
	if _, _, err := h.engagementService.Status(pageID); err != nil {
		h.writeError(c, err)
		return
	}
	streamTopic(c, h.broadcaster, messaging.PageTopic(pageID), h.logger, func() []string {
		prompt, err := h.engagementService.OpenPrompt(pageID)
		if err != nil || prompt == nil {
			return nil
		}
		message, err := messaging.FormatEvent(services.EventPrompt, prompt)
		if err != nil {
			h.logger.SSE().Error("Failed to encode prompt replay", "pageId", pageID, "error", err.Error())
			return nil
		}
		return []string{message}
	})
}

func (h *EngagementHandlers) writeError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrPageNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	// Unknown event types and bad trigger kinds.
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
