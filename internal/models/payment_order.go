package models

import "time"

// PaymentOrder binds a processor order to the task it was opened for. PaymentID
// stays nil until a verified confirmation settles the order, and a processor
// payment can settle at most one order.
type PaymentOrder struct {
	OrderID   string     `gorm:"size:64;primaryKey" json:"order_id"`
	TaskID    string     `gorm:"type:varchar(36);not null;index" json:"task_id"`
	OwnerID   string     `gorm:"size:128;not null" json:"owner_id"`
	Amount    int64      `gorm:"not null" json:"amount"`
	Currency  string     `gorm:"size:3;not null" json:"currency"`
	PaymentID *string    `gorm:"size:64;uniqueIndex" json:"payment_id,omitempty"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
