package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/noah-isme/codegrade-api/internal/dto"
	"github.com/noah-isme/codegrade-api/internal/events"
	"github.com/noah-isme/codegrade-api/internal/models"
	"github.com/noah-isme/codegrade-api/internal/observability"
	"github.com/noah-isme/codegrade-api/internal/repository"
	"github.com/noah-isme/codegrade-api/pkg/ai"
)

const defaultEvaluationTimeout = 45 * time.Second

// EvaluationService turns a code submission into an evaluated, locked task.
type EvaluationService interface {
	Submit(ctx context.Context, payload dto.EvaluateRequest) (string, error)
}

// EvaluationConfig describes evaluation knobs.
type EvaluationConfig struct {
	Timeout time.Duration
}

type evaluationService struct {
	tasks     repository.TaskRepository
	generator ai.Generator
	publisher events.Publisher
	cache     *ReportCache
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
	config    EvaluationConfig
}

// NewEvaluationService constructs the evaluation orchestrator.
func NewEvaluationService(tasks repository.TaskRepository, generator ai.Generator, publisher events.Publisher, cache *ReportCache, validate *validator.Validate, logger zerolog.Logger, cfg EvaluationConfig) EvaluationService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultEvaluationTimeout
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	return &evaluationService{
		tasks:     tasks,
		generator: generator,
		publisher: publisher,
		cache:     cache,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "evaluation_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/codegrade-api/internal/service/evaluation"),
		config:    cfg,
	}
}

// Submit evaluates the code once and stores the result as a single locked task.
// Nothing is written unless the evaluation succeeded, and nothing is retried.
func (s *evaluationService) Submit(ctx context.Context, payload dto.EvaluateRequest) (string, error) {
	payload.Language = strings.ToLower(strings.TrimSpace(payload.Language))
	payload.OwnerID = strings.TrimSpace(payload.OwnerID)
	if err := s.validator.Struct(payload); err != nil {
		return "", err
	}

	title := strings.TrimSpace(s.sanitizer.Sanitize(payload.Title))
	description := strings.TrimSpace(s.sanitizer.Sanitize(payload.Description))
	if title == "" || description == "" {
		return "", fmt.Errorf("%w: title and description must contain text", ErrInvalidRequest)
	}

	ctx, span := s.tracer.Start(ctx, "evaluation.submit", trace.WithAttributes(
		attribute.String("task.language", payload.Language),
	))
	defer span.End()

	feedback, err := s.evaluate(ctx, ai.EvaluationInput{
		Title:          title,
		Description:    description,
		Language:       payload.Language,
		Code:           payload.Code,
		ExpectedOutput: payload.ExpectedOutput,
	})
	if err != nil {
		observability.Evaluations().WithLabelValues(observability.OutcomeEvaluationFailure).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Warn().Err(err).Str("owner_id", payload.OwnerID).Msg("evaluation failed")
		return "", err
	}

	task := models.Task{
		OwnerID:        payload.OwnerID,
		Title:          title,
		Description:    description,
		Language:       payload.Language,
		Code:           payload.Code,
		ExpectedOutput: payload.ExpectedOutput,
		PublicFeedback: datatypes.NewJSONType(models.PublicFeedback{
			Score:     feedback.Public.Score,
			Strengths: nonNil(feedback.Public.Strengths),
			Summary:   feedback.Public.Summary,
		}),
		PremiumFeedback: datatypes.NewJSONType(models.PremiumFeedback{
			Analysis:       feedback.Premium.Analysis,
			Defects:        nonNil(feedback.Premium.Defects),
			RefactoredCode: feedback.Premium.RefactoredCode,
		}),
		Unlocked: false,
	}

	if err := s.tasks.Insert(ctx, &task); err != nil {
		observability.Evaluations().WithLabelValues(observability.OutcomePersistence).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error().Err(err).Str("owner_id", payload.OwnerID).Msg("failed to store evaluated task; evaluation discarded")
		return "", fmt.Errorf("%w: store task: %v", ErrPersistenceFailure, err)
	}

	observability.Evaluations().WithLabelValues(observability.OutcomeSuccess).Inc()
	span.SetAttributes(attribute.String("task.id", task.ID), attribute.Int("task.score", feedback.Public.Score))

	s.cache.Invalidate(ctx, task.OwnerID)
	if err := s.publisher.Publish(ctx, events.TaskEvaluated, events.TaskEvaluatedPayload{
		TaskID:   task.ID,
		OwnerID:  task.OwnerID,
		Language: task.Language,
		Score:    feedback.Public.Score,
	}); err != nil {
		s.logger.Warn().Err(err).Str("task_id", task.ID).Msg("failed to publish evaluation event")
	}

	s.logger.Info().
		Str("task_id", task.ID).
		Str("owner_id", task.OwnerID).
		Int("score", feedback.Public.Score).
		Msg("task evaluated")

	return task.ID, nil
}

func (s *evaluationService) evaluate(ctx context.Context, input ai.EvaluationInput) (ai.Feedback, error) {
	if s.generator == nil {
		return ai.Feedback{}, fmt.Errorf("%w: evaluator unavailable", ErrEvaluationFailure)
	}

	genCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	raw, err := s.generator.Generate(genCtx, ai.BuildEvaluationPrompt(input))
	if err != nil {
		if errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			return ai.Feedback{}, fmt.Errorf("%w: evaluator timed out after %s", ErrEvaluationFailure, s.config.Timeout)
		}
		return ai.Feedback{}, fmt.Errorf("%w: %v", ErrEvaluationFailure, err)
	}

	feedback, err := ai.ParseFeedback(raw)
	if err != nil {
		return ai.Feedback{}, fmt.Errorf("%w: %w", ErrEvaluationFailure, err)
	}

	return feedback, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
