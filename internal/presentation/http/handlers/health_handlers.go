package handlers

import (
	"net/http"

	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/persistence/database"
	"github.com/gin-gonic/gin"
)

// HealthHandlers reports database reachability
type HealthHandlers struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

func NewHealthHandlers(db *database.DB, logger *logging.ChanneledLogger) *HealthHandlers {
	return &HealthHandlers{db: db, logger: logger}
}

// GetHealth handles GET /api/v1/health
func (h *HealthHandlers) GetHealth(c *gin.Context) {
	if err := database.CheckConnectionWithLogger(c.Request.Context(), h.db, h.logger); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
