package events

import (
	"testing"
	"time"

	"crew-orchestrator/internal/models"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name        string
		eventType   string
		data        map[string]interface{}
		wantMessage string
		wantType    models.ActivityType
	}{
		{
			name:        "task started with name",
			eventType:   "task_started",
			data:        map[string]interface{}{"task_name": "Write draft"},
			wantMessage: "Started task: Write draft",
			wantType:    models.ActivityTypeTaskStart,
		},
		{
			name:        "task started falls back to task id",
			eventType:   "task_started",
			data:        map[string]interface{}{"task_id": "draft_01"},
			wantMessage: "Started task: draft_01",
			wantType:    models.ActivityTypeTaskStart,
		},
		{
			name:        "task completed",
			eventType:   "task_completed",
			data:        map[string]interface{}{"task_name": "Write draft"},
			wantMessage: "Completed task: Write draft",
			wantType:    models.ActivityTypeTaskComplete,
		},
		{
			name:        "task failed with error",
			eventType:   "task_failed",
			data:        map[string]interface{}{"task_name": "Write draft", "error": "timeout"},
			wantMessage: "Task failed: Write draft - timeout",
			wantType:    models.ActivityTypeError,
		},
		{
			name:        "agent started",
			eventType:   "agent_execution_started",
			data:        map[string]interface{}{"agent_name": "Content Writer"},
			wantMessage: "Content Writer started working",
			wantType:    models.ActivityTypeAgentThinking,
		},
		{
			name:        "llm call without model",
			eventType:   "llm_call_started",
			data:        map[string]interface{}{},
			wantMessage: "Calling AI model",
			wantType:    models.ActivityTypeLLMCall,
		},
		{
			name:        "tool usage",
			eventType:   "tool_usage_started",
			data:        map[string]interface{}{"tool_name": "web_search"},
			wantMessage: "Using tool: web_search",
			wantType:    models.ActivityTypeToolUsage,
		},
		{
			name:        "kickoff started",
			eventType:   "crew_kickoff_started",
			data:        nil,
			wantMessage: "Crew execution started",
			wantType:    models.ActivityTypeCrewKickoff,
		},
		{
			name:        "kickoff failed",
			eventType:   "crew_kickoff_failed",
			data:        map[string]interface{}{"error": "boom"},
			wantMessage: "Crew execution failed: boom",
			wantType:    models.ActivityTypeError,
		},
		{
			name:        "unknown type is generic",
			eventType:   "memory_query_started",
			data:        map[string]interface{}{},
			wantMessage: "Event: memory_query_started",
			wantType:    models.ActivityTypeMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := &models.WebhookEvent{Type: tt.eventType, Data: tt.data}
			message, activityType := Normalize(event)
			if message != tt.wantMessage {
				t.Errorf("message = %q, want %q", message, tt.wantMessage)
			}
			if activityType != tt.wantType {
				t.Errorf("activity type = %s, want %s", activityType, tt.wantType)
			}
		})
	}
}

func TestActorName(t *testing.T) {
	tests := []struct {
		name string
		data map[string]interface{}
		want string
	}{
		{name: "agent_name wins", data: map[string]interface{}{"agent_name": "Writer", "agent": "Other"}, want: "Writer"},
		{name: "agent fallback", data: map[string]interface{}{"agent": "Editor"}, want: "Editor"},
		{name: "actor fallback", data: map[string]interface{}{"actor": "QA"}, want: "QA"},
		{name: "empty string skipped", data: map[string]interface{}{"agent_name": "", "actor": "QA"}, want: "QA"},
		{name: "no data is system", data: nil, want: models.SystemAgentName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := &models.WebhookEvent{Data: tt.data}
			if got := ActorName(event); got != tt.want {
				t.Errorf("ActorName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSortByTimestamp(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	batch := []models.WebhookEvent{
		{ID: "c", Timestamp: base.Add(2 * time.Second)},
		{ID: "a", Timestamp: base},
		{ID: "b", Timestamp: base.Add(time.Second)},
		{ID: "b2", Timestamp: base.Add(time.Second)},
	}

	SortByTimestamp(batch)

	want := []string{"a", "b", "b2", "c"}
	for i, id := range want {
		if batch[i].ID != id {
			t.Fatalf("position %d = %s, want %s", i, batch[i].ID, id)
		}
	}
}
