package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ExecutionStatus string

const (
	ExecutionStatusPending          ExecutionStatus = "pending"
	ExecutionStatusRunning          ExecutionStatus = "running"
	ExecutionStatusAwaitingApproval ExecutionStatus = "awaiting_approval"
	ExecutionStatusCompleted        ExecutionStatus = "completed"
	ExecutionStatusFailed           ExecutionStatus = "failed"
	ExecutionStatusCancelled        ExecutionStatus = "cancelled"
)

// TerminalExecutionStatuses lists the states an execution can never leave.
var TerminalExecutionStatuses = []ExecutionStatus{
	ExecutionStatusCompleted,
	ExecutionStatusFailed,
	ExecutionStatusCancelled,
}

func (s ExecutionStatus) IsTerminal() bool {
	for _, t := range TerminalExecutionStatuses {
		if s == t {
			return true
		}
	}
	return false
}

type WorkflowMode string

const (
	WorkflowModeCreation  WorkflowMode = "creation"
	WorkflowModeRevision  WorkflowMode = "revision"
	WorkflowModeRepurpose WorkflowMode = "repurpose"
)

func (m WorkflowMode) Valid() bool {
	switch m {
	case WorkflowModeCreation, WorkflowModeRevision, WorkflowModeRepurpose:
		return true
	}
	return false
}

// ExecutionEntity is one run of a crew job against a project. CrewJobID is
// the identifier assigned by the external runner on kickoff; it is set at
// most once and never changes afterwards.
type ExecutionEntity struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey"`
	ProjectID    uuid.UUID         `gorm:"type:uuid;not null;index"`
	WorkflowMode WorkflowMode      `gorm:"type:varchar(50);not null"`
	Status       ExecutionStatus   `gorm:"type:varchar(50);not null;index"`
	CrewJobID    sql.NullString    `gorm:"type:varchar(255);index"`
	StartedAt    time.Time         `gorm:"index"`
	CompletedAt  sql.NullTime      ``
	ErrorMessage sql.NullString    `gorm:"type:text"`
	RetryCount   int               `gorm:"not null;default:0"`
	CreatedBy    uuid.UUID         `gorm:"type:uuid;not null"`
	Metrics      datatypes.JSONMap ``
	CreatedAt    time.Time         `gorm:"autoCreateTime"`

	Project *ProjectEntity `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
}

func (ExecutionEntity) TableName() string {
	return "crew_executions"
}

func (e *ExecutionEntity) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
