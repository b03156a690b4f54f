package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/codegrade-api/internal/dto"
	"github.com/noah-isme/codegrade-api/internal/models"
	"github.com/noah-isme/codegrade-api/internal/observability"
	"github.com/noah-isme/codegrade-api/internal/repository"
	"github.com/noah-isme/codegrade-api/pkg/payment"
)

// The unlock price is fixed server-side: ₹499 expressed in paise.
const (
	UnlockPriceMinorUnits int64 = 49900
	UnlockCurrency              = "INR"
)

const defaultPaymentTimeout = 15 * time.Second

// PaymentIntentService opens checkout orders for locked tasks.
type PaymentIntentService interface {
	CreateIntent(ctx context.Context, taskID, callerID string) (dto.PaymentIntentResponse, error)
}

// PaymentIntentConfig describes intent creation knobs.
type PaymentIntentConfig struct {
	KeyID   string
	Timeout time.Duration
}

type paymentIntentService struct {
	tasks     repository.TaskRepository
	orders    repository.PaymentOrderRepository
	processor payment.Processor
	logger    zerolog.Logger
	config    PaymentIntentConfig
}

// NewPaymentIntentService constructs the payment intent service.
func NewPaymentIntentService(tasks repository.TaskRepository, orders repository.PaymentOrderRepository, processor payment.Processor, logger zerolog.Logger, cfg PaymentIntentConfig) PaymentIntentService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultPaymentTimeout
	}

	return &paymentIntentService{
		tasks:     tasks,
		orders:    orders,
		processor: processor,
		logger:    logger.With().Str("component", "payment_intent_service").Logger(),
		config:    cfg,
	}
}

// CreateIntent opens a new order for the fixed unlock price and records which
// task it pays for. Each call creates an independent order; only a verified
// payment against that order unlocks the task.
func (s *paymentIntentService) CreateIntent(ctx context.Context, taskID, callerID string) (dto.PaymentIntentResponse, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return dto.PaymentIntentResponse{}, fmt.Errorf("%w: task id is required", ErrInvalidRequest)
	}

	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.PaymentIntents().WithLabelValues(observability.OutcomeNotFound).Inc()
			return dto.PaymentIntentResponse{}, ErrTaskNotFound
		}
		return dto.PaymentIntentResponse{}, fmt.Errorf("%w: load task: %v", ErrPersistenceFailure, err)
	}

	if callerID != "" && callerID != task.OwnerID {
		observability.PaymentIntents().WithLabelValues(observability.OutcomeForbidden).Inc()
		return dto.PaymentIntentResponse{}, ErrForbidden
	}
	if task.Unlocked {
		return dto.PaymentIntentResponse{}, ErrAlreadyUnlocked
	}

	orderCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	order, err := s.processor.CreateOrder(orderCtx, payment.OrderRequest{
		AmountMinorUnits: UnlockPriceMinorUnits,
		Currency:         UnlockCurrency,
		Receipt:          receiptFor(task.ID),
		Notes:            map[string]string{"task_id": task.ID},
	})
	if err != nil {
		observability.PaymentIntents().WithLabelValues(observability.OutcomeProcessorFailure).Inc()
		s.logger.Error().Err(err).Str("task_id", task.ID).Msg("failed to create payment order")
		return dto.PaymentIntentResponse{}, fmt.Errorf("%w: %v", ErrProcessorFailure, err)
	}

	binding := models.PaymentOrder{
		OrderID:  order.ID,
		TaskID:   task.ID,
		OwnerID:  task.OwnerID,
		Amount:   UnlockPriceMinorUnits,
		Currency: UnlockCurrency,
	}
	if err := s.orders.Create(context.WithoutCancel(ctx), &binding); err != nil {
		observability.PaymentIntents().WithLabelValues(observability.OutcomePersistence).Inc()
		s.logger.Error().Err(err).Str("task_id", task.ID).Str("order_id", order.ID).Msg("failed to bind payment order to task")
		return dto.PaymentIntentResponse{}, fmt.Errorf("%w: bind order: %v", ErrPersistenceFailure, err)
	}

	observability.PaymentIntents().WithLabelValues(observability.OutcomeSuccess).Inc()
	s.logger.Info().Str("task_id", task.ID).Str("order_id", order.ID).Msg("payment order created")

	return dto.PaymentIntentResponse{
		OrderID:  order.ID,
		Amount:   UnlockPriceMinorUnits,
		Currency: UnlockCurrency,
		KeyID:    s.config.KeyID,
	}, nil
}

// receiptFor derives a processor receipt (at most 40 characters) from a task id.
func receiptFor(taskID string) string {
	compact := strings.ReplaceAll(taskID, "-", "")
	if len(compact) > 32 {
		compact = compact[:32]
	}
	return "task_" + compact
}
