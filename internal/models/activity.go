package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ActivityType string

const (
	ActivityTypeTaskStart     ActivityType = "task_start"
	ActivityTypeTaskComplete  ActivityType = "task_complete"
	ActivityTypeAgentThinking ActivityType = "agent_thinking"
	ActivityTypeToolUsage     ActivityType = "tool_usage"
	ActivityTypeError         ActivityType = "error"
	ActivityTypeMessage       ActivityType = "message"
	ActivityTypeLLMCall       ActivityType = "llm_call"
	ActivityTypeCrewKickoff   ActivityType = "crew_kickoff"
)

// SystemAgentName is the actor recorded for activities the service itself
// emits (kickoff, cancellation and other lifecycle notices).
const SystemAgentName = "System"

// ActivityEntity is one immutable record in an execution's history. EventID
// carries the originating webhook event id when the activity was derived
// from the runner's event stream; its unique index is what makes event
// ingestion idempotent.
type ActivityEntity struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey"`
	ExecutionID uuid.UUID         `gorm:"type:uuid;not null;index"`
	AgentName   string            `gorm:"type:varchar(100);not null"`
	Type        ActivityType      `gorm:"column:activity_type;type:varchar(50);not null;index"`
	Message     string            `gorm:"type:text;not null"`
	Timestamp   time.Time         `gorm:"index"`
	EventID     sql.NullString    `gorm:"type:varchar(255);uniqueIndex"`
	Metadata    datatypes.JSONMap ``

	Execution *ExecutionEntity `gorm:"foreignKey:ExecutionID;constraint:OnDelete:CASCADE"`
}

func (ActivityEntity) TableName() string {
	return "agent_activities"
}

func (a *ActivityEntity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	return nil
}

// SenderType maps an activity to the chat sender category the frontend
// renders: system notices, human messages, or agent output.
func (a *ActivityEntity) SenderType() string {
	if a.AgentName == SystemAgentName {
		return "system"
	}
	if isHuman, ok := a.Metadata["is_human"].(bool); ok && isHuman {
		return "user"
	}
	return "agent"
}
