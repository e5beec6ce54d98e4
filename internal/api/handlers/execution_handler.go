package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"crew-orchestrator/internal/api/middleware"
	"crew-orchestrator/internal/config"
	"crew-orchestrator/internal/models"
	"crew-orchestrator/internal/services/orchestrator"
)

type ExecutionHandler struct {
	service *orchestrator.Service
	cfg     *config.Config
	log     *logrus.Logger
}

func NewExecutionHandler(service *orchestrator.Service, cfg *config.Config, log *logrus.Logger) *ExecutionHandler {
	return &ExecutionHandler{
		service: service,
		cfg:     cfg,
		log:     log,
	}
}

// HealthCheck handles GET /health
func (h *ExecutionHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"service":   "crew-orchestrator",
	})
}

// Start handles POST /api/v1/executions/start
func (h *ExecutionHandler) Start(c *gin.Context) {
	var req models.StartExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	resp, err := h.service.StartExecution(c.Request.Context(), middleware.CurrentUser(c), &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// GetStatus handles GET /api/v1/executions/:id/status
func (h *ExecutionHandler) GetStatus(c *gin.Context) {
	executionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	resp, err := h.service.GetStatus(c.Request.Context(), middleware.CurrentUser(c), executionID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetMessages handles GET /api/v1/executions/:id/messages
func (h *ExecutionHandler) GetMessages(c *gin.Context) {
	executionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	resp, err := h.service.GetMessages(c.Request.Context(), middleware.CurrentUser(c), executionID, limit, offset)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Cancel handles DELETE /api/v1/executions/:id
func (h *ExecutionHandler) Cancel(c *gin.Context) {
	executionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	resp, err := h.service.CancelExecution(c.Request.Context(), middleware.CurrentUser(c), executionID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Stream handles GET /api/v1/executions/:id/stream as a server-sent event
// stream. The connection stays open until the client disconnects; the
// per-user connection cap is enforced at subscribe time.
func (h *ExecutionHandler) Stream(c *gin.Context) {
	executionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	user := middleware.CurrentUser(c)

	// Ownership check before the connection slot is taken.
	status, err := h.service.GetStatus(c.Request.Context(), user, executionID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	sub, err := h.service.Stream().Subscribe(executionID, user.ID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	defer h.service.Stream().Unsubscribe(sub)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	h.writeSSE(c, "connected", map[string]interface{}{
		"execution_id": executionID.String(),
		"status":       string(status.Status),
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})

	heartbeatInterval := h.cfg.Stream.HeartbeatInterval
	if heartbeatInterval <= 0 {
		heartbeatInterval = 30 * time.Second
	}
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, open := <-sub.Events():
			if !open {
				return
			}
			h.writeSSE(c, event.Type, event)
		case <-heartbeat.C:
			h.service.Stream().Heartbeat(sub)
		}
	}
}

// writeSSE emits one event frame and flushes it to the client.
func (h *ExecutionHandler) writeSSE(c *gin.Context, eventType string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.log.WithError(err).Error("Failed to encode stream event")
		return
	}
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\nid: %s\n\n", eventType, payload, uuid.NewString())
	c.Writer.Flush()
}

// pathUUID parses a uuid path parameter, answering 400 itself on failure.
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		writeError(c, http.StatusBadRequest, "validation_error", fmt.Sprintf("invalid %s: must be a uuid", name))
		return uuid.Nil, false
	}
	return id, true
}
