package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Account is the tenant row. RulesVersion bumps on every rule publish and
// invalidates cached account rule sets.
type Account struct {
	Id             uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Mode           string         `gorm:"type:varchar(16);not null;default:'creator'"` // creator | brand
	Plan           string         `gorm:"type:varchar(16);not null;default:'free'"`
	Language       string         `gorm:"type:varchar(8);not null;default:'he'"`
	Timezone       string         `gorm:"type:varchar(64);not null;default:'Asia/Jerusalem'"`
	SecurityConfig datatypes.JSON `gorm:"type:jsonb"`
	Features       datatypes.JSON `gorm:"type:jsonb"`
	RulesVersion   int            `gorm:"not null;default:0"`
	CreatedAt      time.Time      `gorm:"autoCreateTime"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime"`
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

func (Account) TableName() string {
	return "accounts"
}
