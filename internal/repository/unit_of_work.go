package repository

import (
	"context"

	"gorm.io/gorm"

	"crew-orchestrator/internal/utils"
)

// UnitOfWork runs a function inside a single database transaction. The
// function receives DB options that route every repository call it makes
// through that transaction.
type UnitOfWork interface {
	Run(ctx context.Context, fn func(opts ...utils.DBOption) error) error
}

type unitOfWork struct {
	db *gorm.DB
}

func NewUnitOfWork(db *gorm.DB) UnitOfWork {
	return &unitOfWork{db: db}
}

func (u *unitOfWork) Run(ctx context.Context, fn func(opts ...utils.DBOption) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(utils.WithTx(tx))
	})
}
