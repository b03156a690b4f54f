package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/codegrade-api/internal/middleware"
	"github.com/noah-isme/codegrade-api/internal/service"
	"github.com/noah-isme/codegrade-api/internal/utils"
	"github.com/noah-isme/codegrade-api/pkg/ai"
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}

// bindOwner makes the token subject authoritative over a client supplied owner.
func bindOwner(c *fiber.Ctx, supplied string) string {
	if subject := middleware.AuthenticatedCaller(c); subject != "" {
		return subject
	}
	return strings.TrimSpace(supplied)
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func validationDetails(err error) []fieldError {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	details := make([]fieldError, 0, len(validationErrors))
	for _, fe := range validationErrors {
		details = append(details, fieldError{Field: fe.Field(), Rule: fe.Tag()})
	}
	return details
}

// writeServiceError maps a service error onto the response envelope.
func writeServiceError(c *fiber.Ctx, logger zerolog.Logger, err error, operation string) error {
	kind := service.ErrorKind(err)
	log := requestLogger(logger, c)

	switch kind {
	case service.KindValidation:
		message := "invalid request"
		if details := validationDetails(err); details != nil {
			return utils.SendErrorKind(c, fiber.StatusBadRequest, kind, message, details)
		}
		return utils.SendErrorKind(c, fiber.StatusBadRequest, kind, err.Error(), nil)
	case service.KindInvalidSignature:
		return utils.SendErrorKind(c, fiber.StatusBadRequest, kind, "payment signature is invalid", nil)
	case service.KindForbidden:
		return utils.SendErrorKind(c, fiber.StatusForbidden, kind, "task belongs to another user", nil)
	case service.KindNotFound:
		return utils.SendErrorKind(c, fiber.StatusNotFound, kind, "task not found", nil)
	case service.KindAlreadyUnlocked:
		return utils.SendErrorKind(c, fiber.StatusConflict, kind, "task is already unlocked", nil)
	case service.KindEvaluationFailure:
		var parseErr *ai.ParseError
		if errors.As(err, &parseErr) {
			log.Warn().Err(err).Str("operation", operation).Msg("evaluator returned an unusable response")
			return utils.SendErrorKind(c, fiber.StatusBadGateway, kind, "evaluation failed, please retry", fiber.Map{"reason": parseErr.Reason})
		}
		log.Warn().Err(err).Str("operation", operation).Msg("evaluator unavailable")
		return utils.SendErrorKind(c, fiber.StatusBadGateway, kind, "evaluation failed, please retry", nil)
	case service.KindProcessorFailure:
		log.Error().Err(err).Str("operation", operation).Msg("payment processor failed")
		return utils.SendErrorKind(c, fiber.StatusBadGateway, kind, "payment provider unavailable", nil)
	case service.KindPersistenceFailure:
		log.Error().Err(err).Str("operation", operation).Msg("store operation failed")
		return utils.SendErrorKind(c, fiber.StatusInternalServerError, kind, "could not save changes, please retry", nil)
	default:
		log.Error().Err(err).Str("operation", operation).Msg("request failed")
		return utils.SendErrorKind(c, fiber.StatusInternalServerError, service.KindInternal, "internal server error", nil)
	}
}
