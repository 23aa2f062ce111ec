package implementation

import (
	"context"
	"errors"

	"audience-engine-be/internal/model"
	"audience-engine-be/internal/repository/contract"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AccountRepositoryImpl struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) contract.AccountRepository {
	return &AccountRepositoryImpl{db: db}
}

func (r *AccountRepositoryImpl) FindById(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).First(&account, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepositoryImpl) GetRulesVersion(ctx context.Context, id uuid.UUID) (int, error) {
	var version int
	err := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Select("rules_version").
		Where("id = ?", id).
		Scan(&version).Error
	if err != nil {
		return 0, err
	}
	return version, nil
}
