package handlers

import (
	"errors"
	"net/http"

	"github.com/AtRiskMedia/tinysteps-go/internal/application/services"
	"github.com/AtRiskMedia/tinysteps-go/internal/domain/forms"
	"github.com/AtRiskMedia/tinysteps-go/internal/domain/offline"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tinysteps-go/internal/infrastructure/observability/performance"
	"github.com/gin-gonic/gin"
)

// FormHandlers receives contact and tour-request submissions
type FormHandlers struct {
	formService *services.FormService
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewFormHandlers creates form handlers with injected dependencies
func NewFormHandlers(formService *services.FormService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *FormHandlers {
	return &FormHandlers{
		formService: formService,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// PostSubmission handles POST /api/v1/forms/:kind
func (h *FormHandlers) PostSubmission(c *gin.Context) {
	kind, err := offline.ParseFormKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	payload, err := bindPayload(c)
	if err != nil {
		h.logger.Forms().Debug("Form payload binding failed", "kind", kind, "error", err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	marker := h.perfTracker.StartOperation("forms:submit")
	defer marker.Complete()
	marker.AddMetadata("kind", kind)

	submission, err := h.formService.Submit(kind, payload)
	if err != nil {
		marker.SetError(err)
		var verr *forms.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": verr.Fields})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store submission"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":        submission.ID,
		"kind":      submission.Kind,
		"createdAt": submission.CreatedAt,
	})
}

// bindPayload accepts a flat JSON object or an url-encoded form.
func bindPayload(c *gin.Context) (map[string]string, error) {
	if c.ContentType() == gin.MIMEPOSTForm {
		if err := c.Request.ParseForm(); err != nil {
			return nil, err
		}
		payload := make(map[string]string, len(c.Request.PostForm))
		for key := range c.Request.PostForm {
			payload[key] = c.Request.PostForm.Get(key)
		}
		return payload, nil
	}

	var payload map[string]string
	if err := c.ShouldBindJSON(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}
