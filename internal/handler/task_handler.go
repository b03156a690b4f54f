package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/codegrade-api/internal/middleware"
	"github.com/noah-isme/codegrade-api/internal/service"
	"github.com/noah-isme/codegrade-api/internal/utils"
)

// TaskHandler serves disclosed task views, listings and reports.
type TaskHandler struct {
	service service.TaskQueryService
	logger  zerolog.Logger
}

// NewTaskHandler constructs the handler.
func NewTaskHandler(service service.TaskQueryService, logger zerolog.Logger) *TaskHandler {
	return &TaskHandler{
		service: service,
		logger:  logger.With().Str("component", "task_handler").Logger(),
	}
}

// Register wires the handler endpoints into the router group.
func (h *TaskHandler) Register(router fiber.Router) {
	router.Get("/tasks", middleware.RequireCaller(h.list))
	router.Get("/tasks/summary", middleware.RequireCaller(h.summary))
	router.Get("/task/:id", h.get)
	router.Get("/task/:id/payments", middleware.RequireCaller(h.payments))
}

func (h *TaskHandler) get(c *fiber.Ctx) error {
	view, err := h.service.Get(c.UserContext(), c.Params("id"), middleware.CallerID(c))
	if err != nil {
		return writeServiceError(c, h.logger, err, "get_task")
	}

	return utils.SendSuccess(c, "task retrieved", view)
}

func (h *TaskHandler) list(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendErrorKind(c, fiber.StatusBadRequest, service.KindValidation, "page must be a number", nil)
	}
	pageSize, err := parseQueryInt(c, "pageSize")
	if err != nil {
		return utils.SendErrorKind(c, fiber.StatusBadRequest, service.KindValidation, "pageSize must be a number", nil)
	}

	result, err := h.service.List(c.UserContext(), middleware.CallerID(c), service.TaskListFilter{
		Language: c.Query("language"),
		Search:   c.Query("search"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return writeServiceError(c, h.logger, err, "list_tasks")
	}

	return utils.OK(c, result.Items, "tasks retrieved", result.Pagination)
}

func (h *TaskHandler) summary(c *fiber.Ctx) error {
	summary, err := h.service.Summary(c.UserContext(), middleware.CallerID(c))
	if err != nil {
		return writeServiceError(c, h.logger, err, "task_summary")
	}

	return utils.SendSuccess(c, "summary retrieved", summary)
}

func (h *TaskHandler) payments(c *fiber.Ctx) error {
	records, err := h.service.Payments(c.UserContext(), c.Params("id"), middleware.CallerID(c))
	if err != nil {
		return writeServiceError(c, h.logger, err, "task_payments")
	}

	return utils.SendSuccess(c, "payments retrieved", records)
}
