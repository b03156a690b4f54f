package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/codegrade-api/internal/models"
)

// PaymentOrderRepository stores the order to task bindings created at checkout.
type PaymentOrderRepository interface {
	Create(ctx context.Context, order *models.PaymentOrder) error
	GetByOrderID(ctx context.Context, orderID string) (models.PaymentOrder, error)
	Settle(ctx context.Context, orderID, paymentID string) (bool, error)
}

// NewPaymentOrderRepository constructs a payment order repository.
func NewPaymentOrderRepository(db *gorm.DB) PaymentOrderRepository {
	return &paymentOrderRepository{db: db}
}

type paymentOrderRepository struct {
	db *gorm.DB
}

func (r *paymentOrderRepository) Create(ctx context.Context, order *models.PaymentOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *paymentOrderRepository) GetByOrderID(ctx context.Context, orderID string) (models.PaymentOrder, error) {
	var order models.PaymentOrder
	err := r.db.WithContext(ctx).First(&order, "order_id = ?", orderID).Error
	return order, err
}

// Settle records paymentID against the order. It reports true when the order
// was open or was already settled by the same payment, and false when another
// payment settled it first. The unique index on payment_id rejects a payment
// that already settled a different order.
func (r *paymentOrderRepository) Settle(ctx context.Context, orderID, paymentID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PaymentOrder{}).
		Where("order_id = ? AND (payment_id IS NULL OR payment_id = ?)", orderID, paymentID).
		Updates(map[string]interface{}{
			"payment_id": paymentID,
			"settled_at": gorm.Expr("COALESCE(settled_at, ?)", time.Now().UTC()),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
