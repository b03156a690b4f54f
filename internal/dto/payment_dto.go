package dto

import "time"

// PaymentIntentRequest asks for a checkout order for a task. Amount is accepted
// only so it can be detected and ignored; the price is fixed server-side.
type PaymentIntentRequest struct {
	TaskID string   `json:"taskId" validate:"required,max=36"`
	Amount *float64 `json:"amount,omitempty"`
}

// PaymentIntentResponse carries what the checkout widget needs to open an order.
type PaymentIntentResponse struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"keyId,omitempty"`
}

// PaymentVerifyRequest is the confirmation returned by the checkout widget.
type PaymentVerifyRequest struct {
	OrderID   string `json:"orderId" validate:"required,max=64"`
	PaymentID string `json:"paymentId" validate:"required,max=64"`
	Signature string `json:"signature" validate:"required,max=128"`
	TaskID    string `json:"taskId" validate:"required,max=36"`
	OwnerID   string `json:"ownerId" validate:"required,max=128"`
}

// PaymentVerifyResponse reports the unlock outcome.
type PaymentVerifyResponse struct {
	Success  bool   `json:"success"`
	Outcome  string `json:"outcome"`
	Replayed bool   `json:"replayed"`
}

// PaymentRecordResponse is an audit log entry shown to the task owner.
type PaymentRecordResponse struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"orderId"`
	PaymentID string    `json:"paymentId"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
