package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/codegrade-api/internal/models"
)

// PaymentRecordRepository persists the append-only payment audit log.
type PaymentRecordRepository interface {
	Create(ctx context.Context, record *models.PaymentRecord) error
	ListByTask(ctx context.Context, taskID string) ([]models.PaymentRecord, error)
}

// NewPaymentRecordRepository constructs a payment record repository.
func NewPaymentRecordRepository(db *gorm.DB) PaymentRecordRepository {
	return &paymentRecordRepository{db: db}
}

type paymentRecordRepository struct {
	db *gorm.DB
}

func (r *paymentRecordRepository) Create(ctx context.Context, record *models.PaymentRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *paymentRecordRepository) ListByTask(ctx context.Context, taskID string) ([]models.PaymentRecord, error) {
	var records []models.PaymentRecord
	err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
