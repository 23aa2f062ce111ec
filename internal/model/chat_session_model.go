package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatSession is one end-user conversation. Version implements optimistic
// concurrency: every state write must carry the version it read.
type ChatSession struct {
	Id           uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	AccountId    uuid.UUID      `gorm:"type:uuid;not null;index"`
	AnonId       string         `gorm:"type:varchar(64);index"` // anonymous visitor id, cookie based
	State        string         `gorm:"type:varchar(64);not null;default:'Chat.Active'"`
	Version      int            `gorm:"not null;default:0"`
	MessageCount int            `gorm:"not null;default:0"`
	LastActiveAt time.Time      `gorm:"not null"`
	CreatedAt    time.Time      `gorm:"autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime"`
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}
