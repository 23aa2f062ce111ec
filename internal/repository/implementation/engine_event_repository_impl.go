package implementation

import (
	"context"

	"audience-engine-be/internal/model"
	"audience-engine-be/internal/repository/contract"

	"gorm.io/gorm"
)

type EngineEventRepositoryImpl struct {
	db *gorm.DB
}

func NewEngineEventRepository(db *gorm.DB) contract.EngineEventRepository {
	return &EngineEventRepositoryImpl{db: db}
}

func (r *EngineEventRepositoryImpl) Append(ctx context.Context, event *model.EngineEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}
