package models

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CheckpointType string

const (
	CheckpointTypeBrandVoice      CheckpointType = "brand_voice"
	CheckpointTypeStyleCompliance CheckpointType = "style_compliance"
	CheckpointTypeFinalQA         CheckpointType = "final_qa"
)

func (t CheckpointType) Valid() bool {
	switch t {
	case CheckpointTypeBrandVoice, CheckpointTypeStyleCompliance, CheckpointTypeFinalQA:
		return true
	}
	return false
}

type CheckpointStatus string

const (
	CheckpointStatusPending  CheckpointStatus = "pending"
	CheckpointStatusApproved CheckpointStatus = "approved"
	CheckpointStatusRejected CheckpointStatus = "rejected"
	// CheckpointStatusRevisionRequested exists for wire compatibility with
	// older clients; the orchestrator never assigns it.
	CheckpointStatusRevisionRequested CheckpointStatus = "revision_requested"
)

// CheckpointEntity is a single human-review gate within an execution. The
// partial unique index guarantees at most one pending checkpoint per
// (execution, task) pair even under concurrent duplicate notifications.
type CheckpointEntity struct {
	ID               uuid.UUID         `gorm:"type:uuid;primaryKey"`
	ExecutionID      uuid.UUID         `gorm:"type:uuid;not null;index;uniqueIndex:uniq_pending_checkpoint,where:status = 'pending'"`
	Type             CheckpointType    `gorm:"column:checkpoint_type;type:varchar(50);not null;index"`
	TaskID           string            `gorm:"type:varchar(255);uniqueIndex:uniq_pending_checkpoint,where:status = 'pending'"`
	Status           CheckpointStatus  `gorm:"type:varchar(50);not null;index"`
	Content          string            `gorm:"type:text;not null"`
	ReviewerFeedback sql.NullString    `gorm:"type:text"`
	ReviewedBy       *uuid.UUID        `gorm:"type:uuid"`
	CreatedAt        time.Time         `gorm:"autoCreateTime;index"`
	ReviewedAt       sql.NullTime      ``
	Metadata         datatypes.JSONMap ``

	Execution *ExecutionEntity `gorm:"foreignKey:ExecutionID;constraint:OnDelete:CASCADE"`
}

func (CheckpointEntity) TableName() string {
	return "hitl_checkpoints"
}

func (c *CheckpointEntity) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// ClassifyCheckpointType infers the checkpoint type from the runner's task
// identifier. Rules are ordered; the first match wins.
func ClassifyCheckpointType(taskID string) CheckpointType {
	task := strings.ToLower(taskID)
	switch {
	case strings.Contains(task, "brand") || strings.Contains(task, "voice"):
		return CheckpointTypeBrandVoice
	case strings.Contains(task, "style") || strings.Contains(task, "compliance"):
		return CheckpointTypeStyleCompliance
	case strings.Contains(task, "qa") || strings.Contains(task, "final") || strings.Contains(task, "review"):
		return CheckpointTypeFinalQA
	default:
		return CheckpointTypeFinalQA
	}
}
