package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/codegrade-api/internal/dto"
	"github.com/noah-isme/codegrade-api/internal/service"
	"github.com/noah-isme/codegrade-api/internal/utils"
)

// EvaluationHandler accepts code submissions for AI review.
type EvaluationHandler struct {
	service service.EvaluationService
	logger  zerolog.Logger
}

// NewEvaluationHandler constructs the handler.
func NewEvaluationHandler(service service.EvaluationService, logger zerolog.Logger) *EvaluationHandler {
	return &EvaluationHandler{
		service: service,
		logger:  logger.With().Str("component", "evaluation_handler").Logger(),
	}
}

// Register wires the handler endpoints into the router group. Extra handlers,
// such as a rate limiter, run before submission.
func (h *EvaluationHandler) Register(router fiber.Router, guards ...fiber.Handler) {
	handlers := append(guards, h.submit)
	router.Post("/evaluate", handlers...)
}

func (h *EvaluationHandler) submit(c *fiber.Ctx) error {
	var payload dto.EvaluateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendErrorKind(c, fiber.StatusBadRequest, service.KindValidation, "invalid request body", nil)
	}
	payload.OwnerID = bindOwner(c, payload.OwnerID)

	taskID, err := h.service.Submit(c.UserContext(), payload)
	if err != nil {
		return writeServiceError(c, h.logger, err, "evaluate")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "task evaluated", dto.EvaluateResponse{TaskID: taskID})
}
