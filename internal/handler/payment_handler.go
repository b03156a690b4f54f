package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/codegrade-api/internal/dto"
	"github.com/noah-isme/codegrade-api/internal/middleware"
	"github.com/noah-isme/codegrade-api/internal/service"
	"github.com/noah-isme/codegrade-api/internal/utils"
)

// PaymentHandler exposes checkout order creation and confirmation.
type PaymentHandler struct {
	intents   service.PaymentIntentService
	verifier  service.PaymentVerifier
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewPaymentHandler constructs the handler.
func NewPaymentHandler(intents service.PaymentIntentService, verifier service.PaymentVerifier, validator *validator.Validate, logger zerolog.Logger) *PaymentHandler {
	return &PaymentHandler{
		intents:   intents,
		verifier:  verifier,
		validator: validator,
		logger:    logger.With().Str("component", "payment_handler").Logger(),
	}
}

// Register wires the handler endpoints into the router group.
func (h *PaymentHandler) Register(router fiber.Router) {
	router.Post("/payment/intent", h.intent)
	router.Post("/payment/verify", h.verify)
}

func (h *PaymentHandler) intent(c *fiber.Ctx) error {
	var payload dto.PaymentIntentRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendErrorKind(c, fiber.StatusBadRequest, service.KindValidation, "invalid request body", nil)
	}
	if err := h.validator.Struct(payload); err != nil {
		return writeServiceError(c, h.logger, err, "payment_intent")
	}
	if payload.Amount != nil {
		requestLogger(h.logger, c).Warn().
			Float64("client_amount", *payload.Amount).
			Str("task_id", payload.TaskID).
			Msg("ignoring client supplied amount")
	}

	intent, err := h.intents.CreateIntent(c.UserContext(), payload.TaskID, middleware.CallerID(c))
	if err != nil {
		return writeServiceError(c, h.logger, err, "payment_intent")
	}

	return utils.SendSuccess(c, "payment order created", intent)
}

func (h *PaymentHandler) verify(c *fiber.Ctx) error {
	var payload dto.PaymentVerifyRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendErrorKind(c, fiber.StatusBadRequest, service.KindValidation, "invalid request body", nil)
	}
	payload.OwnerID = bindOwner(c, payload.OwnerID)

	result, err := h.verifier.Verify(c.UserContext(), payload)
	if err != nil {
		return writeServiceError(c, h.logger, err, "payment_verify")
	}

	message := "payment verified"
	if result.Replayed {
		message = "payment already applied"
	}
	return utils.SendSuccess(c, message, dto.PaymentVerifyResponse{
		Success:  true,
		Outcome:  string(result.Outcome),
		Replayed: result.Replayed,
	})
}
