package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"crew-orchestrator/internal/models"
	"crew-orchestrator/internal/utils"
)

type ActivityRepository interface {
	Create(ctx context.Context, activity *models.ActivityEntity, opts ...utils.DBOption) error
	ListByExecution(ctx context.Context, executionID uuid.UUID, limit, offset int, opts ...utils.DBOption) ([]models.ActivityEntity, int64, error)
	HasEvent(ctx context.Context, eventID string, opts ...utils.DBOption) (bool, error)
}

type activityRepository struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) ActivityRepository {
	return &activityRepository{db: db}
}

// Create appends an activity. When the activity carries a webhook event id
// that was already recorded, the unique index fires and the error is mapped
// to models.ErrDuplicateEvent so ingestion can count it as skipped.
func (r *activityRepository) Create(ctx context.Context, activity *models.ActivityEntity, opts ...utils.DBOption) error {
	tx := utils.ApplyOptions(r.db.WithContext(ctx), opts...)

	if err := tx.Create(activity).Error; err != nil {
		if activity.EventID.Valid && errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("event %s: %w", activity.EventID.String, models.ErrDuplicateEvent)
		}
		return err
	}
	return nil
}

func (r *activityRepository) ListByExecution(ctx context.Context, executionID uuid.UUID, limit, offset int, opts ...utils.DBOption) ([]models.ActivityEntity, int64, error) {
	tx := utils.ApplyOptions(r.db.WithContext(ctx), opts...)

	var total int64
	if err := tx.Model(&models.ActivityEntity{}).
		Where("execution_id = ?", executionID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var activities []models.ActivityEntity
	query := tx.Where("execution_id = ?", executionID).
		Order("timestamp ASC").
		Order("id ASC")
	if offset > 0 {
		query = query.Offset(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&activities).Error; err != nil {
		return nil, 0, err
	}
	return activities, total, nil
}

func (r *activityRepository) HasEvent(ctx context.Context, eventID string, opts ...utils.DBOption) (bool, error) {
	tx := utils.ApplyOptions(r.db.WithContext(ctx), opts...)

	var count int64
	err := tx.Model(&models.ActivityEntity{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
