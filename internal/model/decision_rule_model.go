package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DecisionRule is one stored condition/action mapping. AccountId null means
// the rule is global; account rows override on top of the builtin set.
type DecisionRule struct {
	Id          uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name        string         `gorm:"type:varchar(120);not null"`
	Description string         `gorm:"type:text"`
	Category    string         `gorm:"type:varchar(32);not null;index"`
	Priority    int            `gorm:"not null"`
	Mode        string         `gorm:"type:varchar(16);not null;default:'both'"`
	AccountId   *uuid.UUID     `gorm:"type:uuid;index"` // NULL = global rule
	Enabled     bool           `gorm:"not null;default:true"`
	Version     int            `gorm:"not null;default:1"`
	Conditions  datatypes.JSON `gorm:"type:jsonb;not null"`
	Actions     datatypes.JSON `gorm:"type:jsonb;not null"`
	PublishedAt *time.Time
	CreatedAt   time.Time      `gorm:"autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime"`
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

func (DecisionRule) TableName() string {
	return "decision_rules"
}
