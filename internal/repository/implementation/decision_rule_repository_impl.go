package implementation

import (
	"context"

	"audience-engine-be/internal/model"
	"audience-engine-be/internal/repository/contract"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DecisionRuleRepositoryImpl struct {
	db *gorm.DB
}

func NewDecisionRuleRepository(db *gorm.DB) contract.DecisionRuleRepository {
	return &DecisionRuleRepositoryImpl{db: db}
}

func (r *DecisionRuleRepositoryImpl) FindGlobalEnabled(ctx context.Context) ([]*model.DecisionRule, error) {
	var rules []*model.DecisionRule
	err := r.db.WithContext(ctx).
		Where("account_id IS NULL AND enabled = true").
		Order("priority ASC").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *DecisionRuleRepositoryImpl) FindByAccountEnabled(ctx context.Context, accountId uuid.UUID) ([]*model.DecisionRule, error) {
	var rules []*model.DecisionRule
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND enabled = true", accountId).
		Order("priority ASC").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}
