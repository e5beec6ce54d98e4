package models

import "time"

// HITLWebhookPayload is the runner's human-input notification. ExecutionID
// is the runner's job id (our CrewJobID), not our execution id.
type HITLWebhookPayload struct {
	ExecutionID string     `json:"execution_id" binding:"required"`
	TaskID      string     `json:"task_id" binding:"required"`
	TaskOutput  string     `json:"task_output" binding:"required"`
	AgentName   string     `json:"agent_name"`
	Timestamp   *time.Time `json:"timestamp"`
}

type HITLWebhookResponse struct {
	Status       string `json:"status"`
	CheckpointID string `json:"checkpoint_id"`
	Message      string `json:"message"`
}

// WebhookEvent is one raw event from the runner's event stream. Data is an
// untyped bag; the normalizer maps known type tags to activities and keeps
// everything else as a generic message.
type WebhookEvent struct {
	ID          string                 `json:"id" binding:"required"`
	ExecutionID string                 `json:"execution_id" binding:"required"`
	Timestamp   time.Time              `json:"timestamp"`
	Type        string                 `json:"type" binding:"required"`
	Data        map[string]interface{} `json:"data"`
}

type WebhookEventsPayload struct {
	Events []WebhookEvent `json:"events" binding:"required"`
}

// EventIngestSummary is returned to the runner after a batch. The runner
// does not retry based on it; it is diagnostic only.
type EventIngestSummary struct {
	Status    string `json:"status"`
	Processed int    `json:"events_processed"`
	Skipped   int    `json:"events_skipped"`
	Errors    int    `json:"events_error"`
	Total     int    `json:"total_events"`
}
