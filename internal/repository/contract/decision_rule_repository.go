package contract

import (
	"context"

	"audience-engine-be/internal/model"

	"github.com/google/uuid"
)

type DecisionRuleRepository interface {
	// FindGlobalEnabled returns enabled rules with no account scope,
	// ordered by priority ascending.
	FindGlobalEnabled(ctx context.Context) ([]*model.DecisionRule, error)

	// FindByAccountEnabled returns enabled account-scoped overrides,
	// ordered by priority ascending.
	FindByAccountEnabled(ctx context.Context, accountId uuid.UUID) ([]*model.DecisionRule, error)
}
