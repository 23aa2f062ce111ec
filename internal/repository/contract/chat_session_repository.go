package contract

import (
	"context"

	"audience-engine-be/internal/model"

	"github.com/google/uuid"
)

type ChatSessionRepository interface {
	Create(ctx context.Context, session *model.ChatSession) error
	FindById(ctx context.Context, id uuid.UUID) (*model.ChatSession, error)

	// Touch bumps activity metadata without a version check. It never
	// changes State or Version.
	Touch(ctx context.Context, id uuid.UUID) error

	// CompareAndSwapState writes the new state only if the stored version
	// still equals expectedVersion, incrementing it atomically. Returns
	// false when a concurrent writer got there first.
	CompareAndSwapState(ctx context.Context, id uuid.UUID, expectedVersion int, newState string) (bool, error)

	// CheckAndIncrementVersion is the bare optimistic-concurrency primitive
	// for session mutations that do not move the state machine.
	CheckAndIncrementVersion(ctx context.Context, id uuid.UUID, expectedVersion int) (bool, error)
}
