package events

import (
	"fmt"
	"sort"

	"crew-orchestrator/internal/models"
)

// Normalize maps a raw runner event onto a human-readable message and an
// activity type. The table is fixed; unknown type tags fall through to a
// generic message so ingestion never rejects an event for its type alone.
func Normalize(event *models.WebhookEvent) (string, models.ActivityType) {
	data := event.Data

	switch event.Type {
	case "task_started":
		return fmt.Sprintf("Started task: %s", taskName(data)), models.ActivityTypeTaskStart
	case "task_completed":
		return fmt.Sprintf("Completed task: %s", taskName(data)), models.ActivityTypeTaskComplete
	case "task_failed":
		return fmt.Sprintf("Task failed: %s - %s", taskName(data), stringField(data, "Unknown error", "error")), models.ActivityTypeError

	case "agent_execution_started":
		return fmt.Sprintf("%s started working", stringField(data, "Agent", "agent_name")), models.ActivityTypeAgentThinking
	case "agent_execution_completed":
		return fmt.Sprintf("%s finished", stringField(data, "Agent", "agent_name")), models.ActivityTypeAgentThinking

	case "llm_call_started":
		return fmt.Sprintf("Calling %s", stringField(data, "AI model", "model")), models.ActivityTypeLLMCall
	case "llm_call_completed":
		return fmt.Sprintf("%s responded", stringField(data, "AI model", "model")), models.ActivityTypeLLMCall

	case "tool_usage_started":
		return fmt.Sprintf("Using tool: %s", stringField(data, "tool", "tool_name")), models.ActivityTypeToolUsage
	case "tool_usage_finished":
		return fmt.Sprintf("Finished using: %s", stringField(data, "tool", "tool_name")), models.ActivityTypeToolUsage

	case "crew_kickoff_started":
		return "Crew execution started", models.ActivityTypeCrewKickoff
	case "crew_kickoff_completed":
		return "Crew execution completed", models.ActivityTypeMessage
	case "crew_kickoff_failed":
		return fmt.Sprintf("Crew execution failed: %s", stringField(data, "Unknown error", "error")), models.ActivityTypeError

	default:
		return fmt.Sprintf("Event: %s", event.Type), models.ActivityTypeMessage
	}
}

// ActorName picks the acting agent's name from the data bag, trying fields
// in priority order and falling back to the system actor.
func ActorName(event *models.WebhookEvent) string {
	for _, key := range []string{"agent_name", "agent", "actor"} {
		if name, ok := event.Data[key].(string); ok && name != "" {
			return name
		}
	}
	return models.SystemAgentName
}

// SortByTimestamp orders a batch chronologically by the runner's embedded
// timestamps. Transport delivery order carries no meaning.
func SortByTimestamp(events []models.WebhookEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}

func taskName(data map[string]interface{}) string {
	if name, ok := data["task_name"].(string); ok && name != "" {
		return name
	}
	return stringField(data, "unknown", "task_id")
}

func stringField(data map[string]interface{}, fallback string, keys ...string) string {
	for _, key := range keys {
		if value, ok := data[key].(string); ok && value != "" {
			return value
		}
	}
	return fallback
}
