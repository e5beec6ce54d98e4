package models

import (
	"time"

	"github.com/google/uuid"
)

// Start Execution

type StartExecutionRequest struct {
	ProjectID            uuid.UUID    `json:"project_id" binding:"required"`
	WorkflowMode         WorkflowMode `json:"workflow_mode" binding:"required"`
	InitialDraft         string       `json:"initial_draft"`
	RevisionInstructions string       `json:"revision_instructions"`
}

type StartExecutionResponse struct {
	ExecutionID uuid.UUID       `json:"execution_id"`
	ProjectID   uuid.UUID       `json:"project_id"`
	Status      ExecutionStatus `json:"status"`
	CrewJobID   string          `json:"crew_job_id"`
	Message     string          `json:"message"`
	StreamURL   string          `json:"stream_url"`
}

// Execution Status

type PendingCheckpointSummary struct {
	CheckpointID   uuid.UUID      `json:"checkpoint_id"`
	CheckpointType CheckpointType `json:"checkpoint_type"`
	TaskID         string         `json:"task_id"`
	CreatedAt      time.Time      `json:"created_at"`
}

type ExecutionStatusResponse struct {
	ExecutionID       uuid.UUID                 `json:"execution_id"`
	ProjectID         uuid.UUID                 `json:"project_id"`
	Status            ExecutionStatus           `json:"status"`
	WorkflowMode      WorkflowMode              `json:"workflow_mode"`
	StartedAt         time.Time                 `json:"started_at"`
	CompletedAt       *time.Time                `json:"completed_at,omitempty"`
	PendingCheckpoint *PendingCheckpointSummary `json:"pending_checkpoint,omitempty"`
	ErrorMessage      string                    `json:"error_message,omitempty"`
	RetryCount        int                       `json:"retry_count"`
	Metrics           map[string]interface{}    `json:"metrics"`
	ActiveConnections int                       `json:"active_connections"`
}

// Messages

type MessageResponse struct {
	MessageID    uuid.UUID              `json:"message_id"`
	Timestamp    time.Time              `json:"timestamp"`
	SenderType   string                 `json:"sender_type"`
	SenderName   string                 `json:"sender_name"`
	ActivityType ActivityType           `json:"activity_type"`
	Content      string                 `json:"content"`
	Metadata     map[string]interface{} `json:"metadata"`
}

type MessagesResponse struct {
	ExecutionID uuid.UUID         `json:"execution_id"`
	Messages    []MessageResponse `json:"messages"`
	Total       int64             `json:"total"`
	HasMore     bool              `json:"has_more"`
}

// Cancel

type CancelExecutionResponse struct {
	ExecutionID     uuid.UUID       `json:"execution_id"`
	Status          ExecutionStatus `json:"status"`
	Message         string          `json:"message"`
	RunnerCancelled bool            `json:"runner_cancelled"`
}

// Checkpoint review

type ReviewCheckpointRequest struct {
	Feedback string `json:"feedback" binding:"required"`
}

type ReviewCheckpointResponse struct {
	Status       string    `json:"status"`
	CheckpointID uuid.UUID `json:"checkpoint_id"`
	ExecutionID  uuid.UUID `json:"execution_id"`
	Message      string    `json:"message"`
	CrewResumed  bool      `json:"crew_resumed"`
	WillRetry    bool      `json:"will_retry"`
}

type CheckpointResponse struct {
	CheckpointID     uuid.UUID              `json:"checkpoint_id"`
	ExecutionID      uuid.UUID              `json:"execution_id"`
	CheckpointType   CheckpointType         `json:"checkpoint_type"`
	TaskID           string                 `json:"task_id"`
	Status           CheckpointStatus       `json:"status"`
	Content          string                 `json:"content"`
	ReviewerFeedback string                 `json:"reviewer_feedback,omitempty"`
	ReviewedBy       *uuid.UUID             `json:"reviewed_by,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	ReviewedAt       *time.Time             `json:"reviewed_at,omitempty"`
	Metadata         map[string]interface{} `json:"metadata"`
}

type PendingCheckpointsResponse struct {
	Checkpoints []CheckpointResponse `json:"checkpoints"`
	Total       int64                `json:"total"`
	Limit       int                  `json:"limit"`
	Offset      int                  `json:"offset"`
}

// NewCheckpointResponse flattens a checkpoint entity into its API shape.
func NewCheckpointResponse(cp *CheckpointEntity) CheckpointResponse {
	resp := CheckpointResponse{
		CheckpointID:   cp.ID,
		ExecutionID:    cp.ExecutionID,
		CheckpointType: cp.Type,
		TaskID:         cp.TaskID,
		Status:         cp.Status,
		Content:        cp.Content,
		ReviewedBy:     cp.ReviewedBy,
		CreatedAt:      cp.CreatedAt,
		Metadata:       cp.Metadata,
	}
	if cp.ReviewerFeedback.Valid {
		resp.ReviewerFeedback = cp.ReviewerFeedback.String
	}
	if cp.ReviewedAt.Valid {
		t := cp.ReviewedAt.Time
		resp.ReviewedAt = &t
	}
	return resp
}

// Error Response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
