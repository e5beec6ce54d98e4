package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"crew-orchestrator/internal/models"
	"crew-orchestrator/internal/utils"
)

type ProjectRepository interface {
	GetOwned(ctx context.Context, id uuid.UUID, ownerID uuid.UUID, opts ...utils.DBOption) (*models.ProjectEntity, error)
}

type projectRepository struct {
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &projectRepository{db: db}
}

func (r *projectRepository) GetOwned(ctx context.Context, id uuid.UUID, ownerID uuid.UUID, opts ...utils.DBOption) (*models.ProjectEntity, error) {
	var project models.ProjectEntity
	tx := utils.ApplyOptions(r.db.WithContext(ctx), opts...)

	result := tx.
		Joins("JOIN clients ON clients.id = projects.client_id").
		Where("projects.id = ? AND clients.owner_id = ?", id, ownerID).
		Preload("Client").
		First(&project)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &project, nil
}
