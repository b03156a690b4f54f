package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/noah-isme/codegrade-api/internal/dto"
	"github.com/noah-isme/codegrade-api/internal/repository"
)

const (
	defaultTaskPageSize = 10
	maxTaskPageSize     = 50
)

// TaskListFilter narrows an owner's task list.
type TaskListFilter struct {
	Language string
	Search   string
	Page     int
	PageSize int
}

// TaskQueryService serves read access to tasks through the disclosure policy.
type TaskQueryService interface {
	Get(ctx context.Context, id, callerID string) (dto.DisclosedView, error)
	List(ctx context.Context, ownerID string, filter TaskListFilter) (dto.TaskListResponse, error)
	Summary(ctx context.Context, ownerID string) (dto.TaskSummaryResponse, error)
	Payments(ctx context.Context, taskID, callerID string) ([]dto.PaymentRecordResponse, error)
}

type taskQueryService struct {
	tasks    repository.TaskRepository
	payments repository.PaymentRecordRepository
	cache    *ReportCache
	logger   zerolog.Logger
	flights  singleflight.Group
}

// NewTaskQueryService constructs the read-side task service.
func NewTaskQueryService(tasks repository.TaskRepository, payments repository.PaymentRecordRepository, cache *ReportCache, logger zerolog.Logger) TaskQueryService {
	return &taskQueryService{
		tasks:    tasks,
		payments: payments,
		cache:    cache,
		logger:   logger.With().Str("component", "task_query_service").Logger(),
	}
}

func (s *taskQueryService) Get(ctx context.Context, id, callerID string) (dto.DisclosedView, error) {
	task, err := s.tasks.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.DisclosedView{}, ErrTaskNotFound
		}
		return dto.DisclosedView{}, err
	}

	forOwner := callerID != "" && callerID == task.OwnerID
	return Render(task, forOwner), nil
}

func (s *taskQueryService) List(ctx context.Context, ownerID string, filter TaskListFilter) (dto.TaskListResponse, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return dto.TaskListResponse{}, fmt.Errorf("%w: owner is required", ErrInvalidRequest)
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = defaultTaskPageSize
	}
	if pageSize > maxTaskPageSize {
		pageSize = maxTaskPageSize
	}

	tasks, total, err := s.tasks.List(ctx, repository.TaskQuery{
		OwnerID:  ownerID,
		Language: strings.TrimSpace(filter.Language),
		Search:   strings.TrimSpace(filter.Search),
		Offset:   (page - 1) * pageSize,
		Limit:    pageSize,
	})
	if err != nil {
		return dto.TaskListResponse{}, err
	}

	items := make([]dto.DisclosedView, 0, len(tasks))
	for _, task := range tasks {
		items = append(items, Render(task, true))
	}

	return dto.TaskListResponse{
		Items: items,
		Pagination: dto.PaginationMeta{
			Page:       page,
			PageSize:   pageSize,
			TotalItems: total,
			TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
		},
	}, nil
}

func (s *taskQueryService) Summary(ctx context.Context, ownerID string) (dto.TaskSummaryResponse, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return dto.TaskSummaryResponse{}, fmt.Errorf("%w: owner is required", ErrInvalidRequest)
	}

	if cached, ok := s.cache.Summary(ctx, ownerID); ok {
		s.logger.Debug().Str("owner_id", ownerID).Msg("summary cache hit")
		return cached, nil
	}

	// Concurrent misses for one owner share a single store query.
	value, err, _ := s.flights.Do("summary:"+ownerID, func() (interface{}, error) {
		summary, err := s.tasks.Summary(context.WithoutCancel(ctx), ownerID)
		if err != nil {
			return dto.TaskSummaryResponse{}, err
		}

		response := dto.TaskSummaryResponse{
			Total:        summary.Total,
			Unlocked:     summary.Unlocked,
			AverageScore: math.Round(summary.AverageScore*10) / 10,
		}
		s.cache.StoreSummary(context.WithoutCancel(ctx), ownerID, response)
		return response, nil
	})
	if err != nil {
		return dto.TaskSummaryResponse{}, err
	}

	return value.(dto.TaskSummaryResponse), nil
}

func (s *taskQueryService) Payments(ctx context.Context, taskID, callerID string) ([]dto.PaymentRecordResponse, error) {
	task, err := s.tasks.GetByID(ctx, strings.TrimSpace(taskID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	if callerID == "" || callerID != task.OwnerID {
		return nil, ErrForbidden
	}

	records, err := s.payments.ListByTask(ctx, task.ID)
	if err != nil {
		return nil, err
	}

	response := make([]dto.PaymentRecordResponse, 0, len(records))
	for _, record := range records {
		response = append(response, dto.PaymentRecordResponse{
			ID:        record.ID,
			OrderID:   record.OrderID,
			PaymentID: record.PaymentID,
			Amount:    record.Amount,
			Currency:  record.Currency,
			Status:    record.Status,
			Reason:    record.Reason,
			CreatedAt: record.CreatedAt,
		})
	}
	return response, nil
}
