package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Principal is the billable identity whose daily quota is tracked.
// DailyUsage and LastUsageDate are owned by the usage ledger exclusively;
// no other component writes them.
type Principal struct {
	ID            uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	Email         string           `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Plan          SubscriptionPlan `gorm:"type:varchar(20);not null;default:'FREE'" json:"plan"`
	DailyUsage    int64            `gorm:"not null;default:0" json:"daily_usage"`
	DailyLimit    *int64           `gorm:"default:null" json:"daily_limit,omitempty"` // explicit per-principal override; nil = derive from plan
	LastUsageDate *string          `gorm:"type:varchar(10);default:null" json:"last_usage_date,omitempty"`
	APIKeys       []APIKey         `gorm:"foreignkey:UserID" json:"api_keys,omitempty"`
	CreatedAt     time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt     gorm.DeletedAt   `gorm:"index" json:"-"`
}

func (p *Principal) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}

	return nil
}

func (p *Principal) BeforeUpdate(tx *gorm.DB) error {
	p.UpdatedAt = time.Now()
	return nil
}

func (Principal) TableName() string {
	return "principals"
}
