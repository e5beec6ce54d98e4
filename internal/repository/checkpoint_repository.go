package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"crew-orchestrator/internal/models"
	"crew-orchestrator/internal/utils"
)

// PendingCheckpointFilter narrows the pending-checkpoint listing.
type PendingCheckpointFilter struct {
	Type      *models.CheckpointType
	ProjectID *uuid.UUID
	Limit     int
	Offset    int
}

type CheckpointRepository interface {
	Create(ctx context.Context, checkpoint *models.CheckpointEntity, opts ...utils.DBOption) error
	GetByID(ctx context.Context, id uuid.UUID, opts ...utils.DBOption) (*models.CheckpointEntity, error)
	GetOwned(ctx context.Context, id uuid.UUID, ownerID uuid.UUID, opts ...utils.DBOption) (*models.CheckpointEntity, error)
	GetPendingByTask(ctx context.Context, executionID uuid.UUID, taskID string, opts ...utils.DBOption) (*models.CheckpointEntity, error)
	GetPendingByExecution(ctx context.Context, executionID uuid.UUID, opts ...utils.DBOption) (*models.CheckpointEntity, error)
	ListPending(ctx context.Context, ownerID uuid.UUID, filter *PendingCheckpointFilter, opts ...utils.DBOption) ([]models.CheckpointEntity, int64, error)
	MarkReviewed(ctx context.Context, id uuid.UUID, status models.CheckpointStatus, reviewerID uuid.UUID, feedback string, opts ...utils.DBOption) error
	RevertToPending(ctx context.Context, id uuid.UUID, from models.CheckpointStatus, opts ...utils.DBOption) error
}

type checkpointRepository struct {
	db *gorm.DB
}

func NewCheckpointRepository(db *gorm.DB) CheckpointRepository {
	return &checkpointRepository{db: db}
}

func (r *checkpointRepository) Create(ctx context.Context, checkpoint *models.CheckpointEntity, opts ...utils.DBOption) error {
	tx := utils.ApplyOptions(r.db.WithContext(ctx), opts...)
	return tx.Create(checkpoint).Error
}

func (r *checkpointRepository) GetByID(ctx context.Context, id uuid.UUID, opts ...utils.DBOption) (*models.CheckpointEntity, error) {
	var checkpoint models.CheckpointEntity
	tx := utils.ApplyOptions(r.db.WithContext(ctx), opts...)

	result := tx.Where("id = ?", id).First(&checkpoint)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &checkpoint, nil
}

func (r *checkpointRepository) GetOwned(ctx context.Context, id uuid.UUID, ownerID uuid.UUID, opts ...utils.DBOption) (*models.CheckpointEntity, error) {
	var checkpoint models.CheckpointEntity
	tx := utils.ApplyOptions(r.db.WithContext(ctx), opts...)

	result := tx.
		Joins("JOIN crew_executions ON crew_executions.id = hitl_checkpoints.execution_id").
		Joins("JOIN projects ON projects.id = crew_executions.project_id").
		Joins("JOIN clients ON clients.id = projects.client_id").
		Where("hitl_checkpoints.id = ? AND clients.owner_id = ?", id, ownerID).
		Preload("Execution").
		First(&checkpoint)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &checkpoint, nil
}

func (r *checkpointRepository) GetPendingByTask(ctx context.Context, executionID uuid.UUID, taskID string, opts ...utils.DBOption) (*models.CheckpointEntity, error) {
	var checkpoint models.CheckpointEntity
	tx := utils.ApplyOptions(r.db.WithContext(ctx), opts...)

	result := tx.
		Where("execution_id = ? AND task_id = ? AND status = ?", executionID, taskID, models.CheckpointStatusPending).
		First(&checkpoint)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &checkpoint, nil
}

func (r *checkpointRepository) GetPendingByExecution(ctx context.Context, executionID uuid.UUID, opts ...utils.DBOption) (*models.CheckpointEntity, error) {
	var checkpoint models.CheckpointEntity
	tx := utils.ApplyOptions(r.db.WithContext(ctx), opts...)

	result := tx.
		Where("execution_id = ? AND status = ?", executionID, models.CheckpointStatusPending).
		Order("created_at ASC").
		First(&checkpoint)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &checkpoint, nil
}

func (r *checkpointRepository) ListPending(ctx context.Context, ownerID uuid.UUID, filter *PendingCheckpointFilter, opts ...utils.DBOption) ([]models.CheckpointEntity, int64, error) {
	tx := utils.ApplyOptions(r.db.WithContext(ctx), opts...)

	query := tx.Model(&models.CheckpointEntity{}).
		Joins("JOIN crew_executions ON crew_executions.id = hitl_checkpoints.execution_id").
		Joins("JOIN projects ON projects.id = crew_executions.project_id").
		Joins("JOIN clients ON clients.id = projects.client_id").
		Where("hitl_checkpoints.status = ? AND clients.owner_id = ?", models.CheckpointStatusPending, ownerID)

	if filter != nil && filter.Type != nil {
		query = query.Where("hitl_checkpoints.checkpoint_type = ?", *filter.Type)
	}
	if filter != nil && filter.ProjectID != nil {
		query = query.Where("crew_executions.project_id = ?", *filter.ProjectID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order("hitl_checkpoints.created_at DESC")
	if filter != nil {
		if filter.Offset > 0 {
			query = query.Offset(filter.Offset)
		}
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
	}

	var checkpoints []models.CheckpointEntity
	if err := query.Find(&checkpoints).Error; err != nil {
		return nil, 0, err
	}
	return checkpoints, total, nil
}

// MarkReviewed is the only legal forward transition: pending -> approved or
// rejected. The WHERE clause is the state-machine guard; a checkpoint that
// is not pending affects zero rows.
func (r *checkpointRepository) MarkReviewed(ctx context.Context, id uuid.UUID, status models.CheckpointStatus, reviewerID uuid.UUID, feedback string, opts ...utils.DBOption) error {
	tx := utils.ApplyOptions(r.db.WithContext(ctx), opts...)

	result := tx.Model(&models.CheckpointEntity{}).
		Where("id = ? AND status = ?", id, models.CheckpointStatusPending).
		Updates(map[string]interface{}{
			"status":            status,
			"reviewer_feedback": feedback,
			"reviewed_by":       reviewerID,
			"reviewed_at":       time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("checkpoint %s is not pending: %w", id, models.ErrInvalidState)
	}
	return nil
}

// RevertToPending is the compensating rollback used when the runner's
// resume call fails after a review was committed. Reviewer fields are
// cleared so the checkpoint returns to a reviewable state.
func (r *checkpointRepository) RevertToPending(ctx context.Context, id uuid.UUID, from models.CheckpointStatus, opts ...utils.DBOption) error {
	tx := utils.ApplyOptions(r.db.WithContext(ctx), opts...)

	result := tx.Model(&models.CheckpointEntity{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":            models.CheckpointStatusPending,
			"reviewer_feedback": nil,
			"reviewed_by":       nil,
			"reviewed_at":       nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("checkpoint %s is not in status %s: %w", id, from, models.ErrInvalidState)
	}
	return nil
}
