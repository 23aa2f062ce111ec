package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// EngineEvent mirrors the append-only pipeline log into Postgres for
// dashboard queries. The JetStream stream remains the replay source.
// Rows are insert-only; there is no update path.
type EngineEvent struct {
	Id        uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Type      string         `gorm:"type:varchar(48);not null;index"`
	Category  string         `gorm:"type:varchar(24);not null;index"`
	AccountId uuid.UUID      `gorm:"type:uuid;not null;index"`
	SessionId string         `gorm:"type:varchar(64);index"`
	Mode      string         `gorm:"type:varchar(16)"`
	Payload   datatypes.JSON `gorm:"type:jsonb"`
	Metadata  datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time      `gorm:"not null;index"`
}

func (EngineEvent) TableName() string {
	return "engine_events"
}
