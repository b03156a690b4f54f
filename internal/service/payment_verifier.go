package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/codegrade-api/internal/dto"
	"github.com/noah-isme/codegrade-api/internal/events"
	"github.com/noah-isme/codegrade-api/internal/models"
	"github.com/noah-isme/codegrade-api/internal/observability"
	"github.com/noah-isme/codegrade-api/internal/repository"
	"github.com/noah-isme/codegrade-api/pkg/payment"
)

// VerificationOutcome is the terminal state of a payment confirmation.
type VerificationOutcome string

// Verification outcomes.
const (
	OutcomeUnlocked VerificationOutcome = "unlocked"
	OutcomeRejected VerificationOutcome = "rejected"
)

// VerificationResult reports how a confirmation was resolved. Replayed is set
// when the task had already been unlocked by an earlier confirmation.
type VerificationResult struct {
	Outcome  VerificationOutcome
	Replayed bool
}

// PaymentVerifier validates processor confirmations and unlocks tasks.
type PaymentVerifier interface {
	Verify(ctx context.Context, payload dto.PaymentVerifyRequest) (VerificationResult, error)
}

type paymentVerifier struct {
	tasks     repository.TaskRepository
	payments  repository.PaymentRecordRepository
	orders    repository.PaymentOrderRepository
	signer    *payment.Signer
	publisher events.Publisher
	cache     *ReportCache
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewPaymentVerifier constructs the verifier around the processor's signing secret.
func NewPaymentVerifier(tasks repository.TaskRepository, payments repository.PaymentRecordRepository, orders repository.PaymentOrderRepository, signer *payment.Signer, publisher events.Publisher, cache *ReportCache, validate *validator.Validate, logger zerolog.Logger) PaymentVerifier {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	return &paymentVerifier{
		tasks:     tasks,
		payments:  payments,
		orders:    orders,
		signer:    signer,
		publisher: publisher,
		cache:     cache,
		validator: validate,
		logger:    logger.With().Str("component", "payment_verifier").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/codegrade-api/internal/service/payment"),
	}
}

// Verify checks the signature before touching the task, requires the order to
// have been opened for the confirmed task and settles it with this payment,
// then flips the unlock flag with a single conditional update. Of any number of concurrent valid
// confirmations exactly one performs the transition; the others observe the
// unlocked row and succeed as replays.
func (v *paymentVerifier) Verify(ctx context.Context, payload dto.PaymentVerifyRequest) (VerificationResult, error) {
	payload.OwnerID = strings.TrimSpace(payload.OwnerID)
	payload.TaskID = strings.TrimSpace(payload.TaskID)
	if err := v.validator.Struct(payload); err != nil {
		return VerificationResult{Outcome: OutcomeRejected}, err
	}

	ctx, span := v.tracer.Start(ctx, "payment.verify", trace.WithAttributes(
		attribute.String("task.id", payload.TaskID),
		attribute.String("payment.order_id", payload.OrderID),
	))
	defer span.End()

	logger := v.logger.With().
		Str("task_id", payload.TaskID).
		Str("order_id", payload.OrderID).
		Str("payment_id", payload.PaymentID).
		Logger()

	if !v.signer.Verify(payload.OrderID, payload.PaymentID, payload.Signature) {
		v.audit(ctx, payload, models.PaymentStatusFailed, "signature mismatch")
		observability.PaymentVerifications().WithLabelValues(observability.OutcomeRejected).Inc()
		span.SetStatus(codes.Error, ErrInvalidSignature.Error())
		logger.Warn().Msg("payment signature rejected")
		return VerificationResult{Outcome: OutcomeRejected}, ErrInvalidSignature
	}

	binding, err := v.orders.GetByOrderID(ctx, payload.OrderID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return v.rejectUnbound(ctx, span, logger, payload, "order not issued")
	case err != nil:
		return v.storeFailure(ctx, span, logger, payload, err)
	case binding.TaskID != payload.TaskID:
		return v.rejectUnbound(ctx, span, logger, payload, "order issued for another task")
	case binding.OwnerID != payload.OwnerID:
		return v.reject(ctx, span, logger, payload, "owner mismatch", ErrForbidden, observability.OutcomeForbidden)
	}

	settled, err := v.orders.Settle(ctx, payload.OrderID, payload.PaymentID)
	if err != nil {
		return v.storeFailure(ctx, span, logger, payload, err)
	}
	if !settled {
		return v.reject(ctx, span, logger, payload, "order settled by another payment", ErrForbidden, observability.OutcomeForbidden)
	}

	locked, unlocked := false, true
	affected, err := v.tasks.ConditionalUpdate(ctx, payload.TaskID,
		repository.TaskPredicate{OwnerID: payload.OwnerID, Unlocked: &locked},
		repository.TaskPatch{Unlocked: &unlocked},
	)
	if err != nil {
		return v.storeFailure(ctx, span, logger, payload, err)
	}

	if affected > 0 {
		v.audit(ctx, payload, models.PaymentStatusVerified, "")
		observability.PaymentVerifications().WithLabelValues(observability.OutcomeUnlocked).Inc()
		v.cache.Invalidate(ctx, payload.OwnerID)
		if err := v.publisher.Publish(ctx, events.TaskUnlocked, events.TaskUnlockedPayload{
			TaskID:    payload.TaskID,
			OwnerID:   payload.OwnerID,
			OrderID:   payload.OrderID,
			PaymentID: payload.PaymentID,
		}); err != nil {
			logger.Warn().Err(err).Msg("failed to publish unlock event")
		}
		logger.Info().Msg("task unlocked")
		return VerificationResult{Outcome: OutcomeUnlocked}, nil
	}

	task, err := v.tasks.GetByID(ctx, payload.TaskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return v.reject(ctx, span, logger, payload, "unknown task", ErrTaskNotFound, observability.OutcomeNotFound)
		}
		return v.storeFailure(ctx, span, logger, payload, err)
	}

	switch {
	case task.OwnerID != payload.OwnerID:
		return v.reject(ctx, span, logger, payload, "owner mismatch", ErrForbidden, observability.OutcomeForbidden)
	case task.Unlocked:
		v.audit(ctx, payload, models.PaymentStatusDuplicate, "task already unlocked")
		observability.PaymentVerifications().WithLabelValues(observability.OutcomeReplayed).Inc()
		logger.Info().Msg("payment confirmation replayed for unlocked task")
		return VerificationResult{Outcome: OutcomeUnlocked, Replayed: true}, nil
	default:
		return v.storeFailure(ctx, span, logger, payload, errors.New("conditional unlock matched no row"))
	}
}

// rejectUnbound refuses a confirmation whose order does not belong to the
// confirmed task, reporting an unknown task as not found.
func (v *paymentVerifier) rejectUnbound(ctx context.Context, span trace.Span, logger zerolog.Logger, payload dto.PaymentVerifyRequest, reason string) (VerificationResult, error) {
	if _, err := v.tasks.GetByID(ctx, payload.TaskID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return v.reject(ctx, span, logger, payload, "unknown task", ErrTaskNotFound, observability.OutcomeNotFound)
		}
		return v.storeFailure(ctx, span, logger, payload, err)
	}
	return v.reject(ctx, span, logger, payload, reason, ErrForbidden, observability.OutcomeForbidden)
}

func (v *paymentVerifier) reject(ctx context.Context, span trace.Span, logger zerolog.Logger, payload dto.PaymentVerifyRequest, reason string, cause error, outcome string) (VerificationResult, error) {
	v.audit(ctx, payload, models.PaymentStatusFailed, reason)
	observability.PaymentVerifications().WithLabelValues(outcome).Inc()
	span.SetStatus(codes.Error, cause.Error())
	logger.Warn().Str("owner_id", payload.OwnerID).Str("reason", reason).Msg("payment confirmation rejected")
	return VerificationResult{Outcome: OutcomeRejected}, cause
}

func (v *paymentVerifier) storeFailure(ctx context.Context, span trace.Span, logger zerolog.Logger, payload dto.PaymentVerifyRequest, cause error) (VerificationResult, error) {
	// The signature was valid, so the payment itself is real; record it as
	// pending so it can be reconciled when the caller retries.
	v.audit(ctx, payload, models.PaymentStatusPending, "unlock not applied")
	observability.PaymentVerifications().WithLabelValues(observability.OutcomeError).Inc()
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())
	logger.Error().Err(cause).Msg("payment verified but task unlock failed")
	return VerificationResult{}, fmt.Errorf("%w: unlock task: %v", ErrPersistenceFailure, cause)
}

// audit appends a payment record. Failures are logged and counted but never
// change the verification result.
func (v *paymentVerifier) audit(ctx context.Context, payload dto.PaymentVerifyRequest, status, reason string) {
	record := models.PaymentRecord{
		TaskID:    payload.TaskID,
		OwnerID:   payload.OwnerID,
		OrderID:   payload.OrderID,
		PaymentID: payload.PaymentID,
		Signature: payload.Signature,
		Amount:    UnlockPriceMinorUnits,
		Currency:  UnlockCurrency,
		Status:    status,
		Reason:    reason,
	}

	if err := v.payments.Create(context.WithoutCancel(ctx), &record); err != nil {
		observability.PaymentLogFailures().Inc()
		v.logger.Error().
			Err(err).
			Str("task_id", payload.TaskID).
			Str("order_id", payload.OrderID).
			Str("status", status).
			Msg("failed to write payment record")
	}
}
