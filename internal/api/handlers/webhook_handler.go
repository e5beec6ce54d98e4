package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"crew-orchestrator/internal/models"
	"crew-orchestrator/internal/services/orchestrator"
)

type WebhookHandler struct {
	service *orchestrator.Service
	log     *logrus.Logger
}

func NewWebhookHandler(service *orchestrator.Service, log *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{
		service: service,
		log:     log,
	}
}

// HITL handles POST /api/v1/webhook/hitl, the runner's human-input
// notification.
func (h *WebhookHandler) HITL(c *gin.Context) {
	var payload models.HITLWebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	resp, err := h.service.IngestHITLNotification(c.Request.Context(), &payload)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Stream handles POST /api/v1/webhook/stream, the runner's batched event
// stream. The batch always answers 200 with per-event counts; individual
// event failures are not the runner's problem.
func (h *WebhookHandler) Stream(c *gin.Context) {
	var payload models.WebhookEventsPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	summary := h.service.IngestEventBatch(c.Request.Context(), payload.Events)
	c.JSON(http.StatusOK, summary)
}
