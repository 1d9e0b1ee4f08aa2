package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey carries a secondary usage counter scoped to one issued credential.
// Usage and LastUsed are owned by the usage ledger; IsActive is a gate the
// caller checks before charging, the ledger does not.
type APIKey struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	Key       string     `gorm:"type:varchar(255);uniqueIndex" json:"key"`
	Usage     int64      `gorm:"not null;default:0" json:"usage"`
	LastUsed  *time.Time `gorm:"default:null" json:"last_used,omitempty"`
	IsActive  bool       `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (APIKey) TableName() string {
	return "api_keys"
}
