package repository

import (
	"context"

	"gorm.io/gorm"

	"crew-orchestrator/internal/models"
	"crew-orchestrator/internal/utils"
)

type UserRepository interface {
	GetByAPIToken(ctx context.Context, token string, opts ...utils.DBOption) (*models.UserEntity, error)
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{
		db: db,
	}
}

func (r *userRepository) GetByAPIToken(ctx context.Context, token string, opts ...utils.DBOption) (*models.UserEntity, error) {
	var user models.UserEntity
	tx := utils.ApplyOptions(r.db.WithContext(ctx), opts...)

	result := tx.Where("api_token = ?", token).First(&user)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &user, nil
}
