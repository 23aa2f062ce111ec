package contract

import (
	"context"

	"audience-engine-be/internal/model"
)

type EngineEventRepository interface {
	Append(ctx context.Context, event *model.EngineEvent) error
}
