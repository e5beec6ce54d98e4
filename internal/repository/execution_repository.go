package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"crew-orchestrator/internal/models"
	"crew-orchestrator/internal/utils"
)

type ExecutionRepository interface {
	Create(ctx context.Context, execution *models.ExecutionEntity, opts ...utils.DBOption) error
	GetByID(ctx context.Context, id uuid.UUID, opts ...utils.DBOption) (*models.ExecutionEntity, error)
	GetOwned(ctx context.Context, id uuid.UUID, ownerID uuid.UUID, opts ...utils.DBOption) (*models.ExecutionEntity, error)
	GetByCrewJobID(ctx context.Context, crewJobID string, opts ...utils.DBOption) (*models.ExecutionEntity, error)
	SetCrewJobID(ctx context.Context, id uuid.UUID, crewJobID string, opts ...utils.DBOption) error
	SetStatus(ctx context.Context, id uuid.UUID, status models.ExecutionStatus, opts ...utils.DBOption) error
	Finish(ctx context.Context, id uuid.UUID, status models.ExecutionStatus, errorMessage *string, opts ...utils.DBOption) error
	IncrementRetry(ctx context.Context, id uuid.UUID, opts ...utils.DBOption) error
	UpdateMetrics(ctx context.Context, id uuid.UUID, metrics map[string]interface{}, opts ...utils.DBOption) error
}

type executionRepository struct {
	db *gorm.DB
}

func NewExecutionRepository(db *gorm.DB) ExecutionRepository {
	return &executionRepository{db: db}
}

func (r *executionRepository) Create(ctx context.Context, execution *models.ExecutionEntity, opts ...utils.DBOption) error {
	tx := utils.ApplyOptions(r.db.WithContext(ctx), opts...)
	return tx.Create(execution).Error
}

func (r *executionRepository) GetByID(ctx context.Context, id uuid.UUID, opts ...utils.DBOption) (*models.ExecutionEntity, error) {
	var execution models.ExecutionEntity
	tx := utils.ApplyOptions(r.db.WithContext(ctx), opts...)

	result := tx.Where("id = ?", id).First(&execution)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &execution, nil
}

func (r *executionRepository) GetOwned(ctx context.Context, id uuid.UUID, ownerID uuid.UUID, opts ...utils.DBOption) (*models.ExecutionEntity, error) {
	var execution models.ExecutionEntity
	tx := utils.ApplyOptions(r.db.WithContext(ctx), opts...)

	result := tx.
		Joins("JOIN projects ON projects.id = crew_executions.project_id").
		Joins("JOIN clients ON clients.id = projects.client_id").
		Where("crew_executions.id = ? AND clients.owner_id = ?", id, ownerID).
		Preload("Project").
		Preload("Project.Client").
		First(&execution)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &execution, nil
}

func (r *executionRepository) GetByCrewJobID(ctx context.Context, crewJobID string, opts ...utils.DBOption) (*models.ExecutionEntity, error) {
	var execution models.ExecutionEntity
	tx := utils.ApplyOptions(r.db.WithContext(ctx), opts...)

	result := tx.Where("crew_job_id = ?", crewJobID).First(&execution)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &execution, nil
}

// SetCrewJobID records the runner's job id. The WHERE clause only matches
// rows that have no job id yet, so an overwrite attempt affects zero rows
// and is rejected.
func (r *executionRepository) SetCrewJobID(ctx context.Context, id uuid.UUID, crewJobID string, opts ...utils.DBOption) error {
	tx := utils.ApplyOptions(r.db.WithContext(ctx), opts...)

	result := tx.Model(&models.ExecutionEntity{}).
		Where("id = ? AND crew_job_id IS NULL", id).
		Update("crew_job_id", crewJobID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("crew job id already set for execution %s: %w", id, models.ErrInvalidState)
	}
	return nil
}

// SetStatus moves an execution to a non-terminal status. Terminal rows are
// excluded by the WHERE clause and never mutated.
func (r *executionRepository) SetStatus(ctx context.Context, id uuid.UUID, status models.ExecutionStatus, opts ...utils.DBOption) error {
	tx := utils.ApplyOptions(r.db.WithContext(ctx), opts...)

	result := tx.Model(&models.ExecutionEntity{}).
		Where("id = ? AND status NOT IN ?", id, models.TerminalExecutionStatuses).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("execution %s is terminal or missing: %w", id, models.ErrInvalidState)
	}
	return nil
}

// Finish moves an execution into a terminal status exactly once.
func (r *executionRepository) Finish(ctx context.Context, id uuid.UUID, status models.ExecutionStatus, errorMessage *string, opts ...utils.DBOption) error {
	tx := utils.ApplyOptions(r.db.WithContext(ctx), opts...)

	values := map[string]interface{}{
		"status":       status,
		"completed_at": time.Now().UTC(),
	}
	if errorMessage != nil {
		values["error_message"] = *errorMessage
	}

	result := tx.Model(&models.ExecutionEntity{}).
		Where("id = ? AND status NOT IN ?", id, models.TerminalExecutionStatuses).
		Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("execution %s is terminal or missing: %w", id, models.ErrInvalidState)
	}
	return nil
}

func (r *executionRepository) IncrementRetry(ctx context.Context, id uuid.UUID, opts ...utils.DBOption) error {
	tx := utils.ApplyOptions(r.db.WithContext(ctx), opts...)

	return tx.Model(&models.ExecutionEntity{}).
		Where("id = ?", id).
		Update("retry_count", gorm.Expr("retry_count + 1")).Error
}

func (r *executionRepository) UpdateMetrics(ctx context.Context, id uuid.UUID, metrics map[string]interface{}, opts ...utils.DBOption) error {
	tx := utils.ApplyOptions(r.db.WithContext(ctx), opts...)

	return tx.Model(&models.ExecutionEntity{}).
		Where("id = ?", id).
		Update("metrics", datatypes.JSONMap(metrics)).Error
}
