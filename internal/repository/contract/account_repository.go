package contract

import (
	"context"

	"audience-engine-be/internal/model"

	"github.com/google/uuid"
)

type AccountRepository interface {
	FindById(ctx context.Context, id uuid.UUID) (*model.Account, error)
	GetRulesVersion(ctx context.Context, id uuid.UUID) (int, error)
}
