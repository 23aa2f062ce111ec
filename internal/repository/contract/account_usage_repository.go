package contract

import (
	"context"

	"audience-engine-be/internal/model"

	"github.com/google/uuid"
)

type AccountUsageRepository interface {
	// GetCurrent returns the running accumulator for the current period, or
	// nil when the account has no spend yet.
	GetCurrent(ctx context.Context, accountId uuid.UUID) (*model.AccountUsage, error)

	// AddUsage adds one request's tokens and cost to the current period.
	AddUsage(ctx context.Context, accountId uuid.UUID, tokens int, cost float64) error
}
