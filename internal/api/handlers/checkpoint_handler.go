package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"crew-orchestrator/internal/api/middleware"
	"crew-orchestrator/internal/models"
	"crew-orchestrator/internal/repository"
	"crew-orchestrator/internal/services/orchestrator"
)

type CheckpointHandler struct {
	service *orchestrator.Service
	log     *logrus.Logger
}

func NewCheckpointHandler(service *orchestrator.Service, log *logrus.Logger) *CheckpointHandler {
	return &CheckpointHandler{
		service: service,
		log:     log,
	}
}

// ListPending handles GET /api/v1/checkpoints/pending
func (h *CheckpointHandler) ListPending(c *gin.Context) {
	filter := &repository.PendingCheckpointFilter{}

	if raw := c.Query("checkpoint_type"); raw != "" {
		checkpointType := models.CheckpointType(raw)
		filter.Type = &checkpointType
	}
	if raw := c.Query("project_id"); raw != "" {
		projectID, err := uuid.Parse(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "validation_error", "invalid project_id: must be a uuid")
			return
		}
		filter.ProjectID = &projectID
	}
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	resp, err := h.service.ListPendingCheckpoints(c.Request.Context(), middleware.CurrentUser(c), filter)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Get handles GET /api/v1/checkpoints/:id
func (h *CheckpointHandler) Get(c *gin.Context) {
	checkpointID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	resp, err := h.service.GetCheckpoint(c.Request.Context(), middleware.CurrentUser(c), checkpointID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Approve handles POST /api/v1/checkpoints/:id/approve
func (h *CheckpointHandler) Approve(c *gin.Context) {
	h.review(c, true)
}

// Reject handles POST /api/v1/checkpoints/:id/reject
func (h *CheckpointHandler) Reject(c *gin.Context) {
	h.review(c, false)
}

func (h *CheckpointHandler) review(c *gin.Context, approve bool) {
	checkpointID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req models.ReviewCheckpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	user := middleware.CurrentUser(c)
	var (
		resp *models.ReviewCheckpointResponse
		err  error
	)
	if approve {
		resp, err = h.service.ApproveCheckpoint(c.Request.Context(), user, checkpointID, req.Feedback)
	} else {
		resp, err = h.service.RejectCheckpoint(c.Request.Context(), user, checkpointID, req.Feedback)
	}
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
