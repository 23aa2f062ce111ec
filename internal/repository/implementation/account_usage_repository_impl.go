package implementation

import (
	"context"
	"errors"
	"time"

	"audience-engine-be/internal/model"
	"audience-engine-be/internal/repository/contract"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AccountUsageRepositoryImpl struct {
	db *gorm.DB
}

func NewAccountUsageRepository(db *gorm.DB) contract.AccountUsageRepository {
	return &AccountUsageRepositoryImpl{db: db}
}

// currentPeriod is the UTC calendar month usage accumulates under.
func currentPeriod() string {
	return time.Now().UTC().Format("2006-01")
}

func (r *AccountUsageRepositoryImpl) GetCurrent(ctx context.Context, accountId uuid.UUID) (*model.AccountUsage, error) {
	var usage model.AccountUsage
	err := r.db.WithContext(ctx).
		First(&usage, "account_id = ? AND period = ?", accountId, currentPeriod()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &usage, nil
}

func (r *AccountUsageRepositoryImpl) AddUsage(ctx context.Context, accountId uuid.UUID, tokens int, cost float64) error {
	row := model.AccountUsage{
		AccountId:  accountId,
		Period:     currentPeriod(),
		TokensUsed: int64(tokens),
		CostUsed:   cost,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}, {Name: "period"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"tokens_used": gorm.Expr("account_usage.tokens_used + ?", tokens),
			"cost_used":   gorm.Expr("account_usage.cost_used + ?", cost),
			"updated_at":  time.Now().UTC(),
		}),
	}).Create(&row).Error
}
