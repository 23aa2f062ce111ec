package model

import (
	"time"

	"github.com/google/uuid"
)

// AccountUsage accumulates token and cost spend per account and calendar
// month. Writes are upsert increments keyed on (account_id, period).
type AccountUsage struct {
	AccountId  uuid.UUID `gorm:"type:uuid;primaryKey"`
	Period     string    `gorm:"type:varchar(7);primaryKey"` // YYYY-MM, UTC
	TokensUsed int64     `gorm:"not null;default:0"`
	CostUsed   float64   `gorm:"not null;default:0"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (AccountUsage) TableName() string {
	return "account_usage"
}
