package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentRecord statuses.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusVerified  = "verified"
	PaymentStatusFailed    = "failed"
	PaymentStatusDuplicate = "duplicate"
)

// PaymentRecord is an append-only audit entry written for every verification attempt.
type PaymentRecord struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	TaskID    string    `gorm:"type:varchar(36);not null;index" json:"task_id"`
	OwnerID   string    `gorm:"size:128;not null" json:"owner_id"`
	OrderID   string    `gorm:"size:64;not null;index" json:"order_id"`
	PaymentID string    `gorm:"size:64;not null" json:"payment_id"`
	Signature string    `gorm:"size:128" json:"signature"`
	Amount    int64     `gorm:"not null" json:"amount"`
	Currency  string    `gorm:"size:3;not null" json:"currency"`
	Status    string    `gorm:"size:16;not null;index" json:"status"`
	Reason    string    `gorm:"size:255" json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate assigns an identifier when none has been provided.
func (p *PaymentRecord) BeforeCreate(_ *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
