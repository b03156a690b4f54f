package repository

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/codegrade-api/internal/models"
)

// TaskPredicate is the precondition a conditional update must still satisfy.
// Zero-valued fields are not checked.
type TaskPredicate struct {
	OwnerID  string
	Unlocked *bool
}

// TaskPatch lists the mutable task columns. Everything else is fixed at creation.
type TaskPatch struct {
	Unlocked *bool
}

// TaskQuery defines filters and pagination for an owner's tasks.
type TaskQuery struct {
	OwnerID  string
	Language string
	Search   string
	Offset   int
	Limit    int
}

// TaskSummary aggregates an owner's tasks.
type TaskSummary struct {
	Total        int64
	Unlocked     int64
	AverageScore float64
}

// TaskRepository exposes persistence operations for evaluated tasks.
type TaskRepository interface {
	Insert(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id string) (models.Task, error)
	ConditionalUpdate(ctx context.Context, id string, predicate TaskPredicate, patch TaskPatch) (int64, error)
	List(ctx context.Context, query TaskQuery) ([]models.Task, int64, error)
	Summary(ctx context.Context, ownerID string) (TaskSummary, error)
}

// NewTaskRepository constructs a task repository.
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

type taskRepository struct {
	db *gorm.DB
}

func (r *taskRepository) Insert(ctx context.Context, task *models.Task) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *taskRepository) GetByID(ctx context.Context, id string) (models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		return models.Task{}, err
	}
	return task, nil
}

// ConditionalUpdate applies patch only when the row still matches predicate and
// reports how many rows changed. The check and the write are a single UPDATE
// statement, so concurrent callers cannot both win.
func (r *taskRepository) ConditionalUpdate(ctx context.Context, id string, predicate TaskPredicate, patch TaskPatch) (int64, error) {
	updates := map[string]interface{}{}
	if patch.Unlocked != nil {
		updates["unlocked"] = *patch.Unlocked
	}
	if len(updates) == 0 {
		return 0, fmt.Errorf("empty task patch")
	}

	db := r.db.WithContext(ctx).Model(&models.Task{}).Where("id = ?", id)
	if predicate.OwnerID != "" {
		db = db.Where("owner_id = ?", predicate.OwnerID)
	}
	if predicate.Unlocked != nil {
		db = db.Where("unlocked = ?", *predicate.Unlocked)
	}

	result := db.Updates(updates)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// likeEscaper makes LIKE wildcards in a search term match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *taskRepository) List(ctx context.Context, query TaskQuery) ([]models.Task, int64, error) {
	db := r.db.WithContext(ctx).Model(&models.Task{}).Where("owner_id = ?", query.OwnerID)

	if query.Language != "" {
		db = db.Where("LOWER(language) = ?", strings.ToLower(query.Language))
	}

	if query.Search != "" {
		pattern := fmt.Sprintf("%%%s%%", likeEscaper.Replace(strings.ToLower(query.Search)))
		db = db.Where(`LOWER(title) LIKE ? ESCAPE '\'`, pattern)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if query.Offset > 0 {
		db = db.Offset(query.Offset)
	}
	if query.Limit > 0 {
		db = db.Limit(query.Limit)
	}

	var tasks []models.Task
	if err := db.Order("created_at DESC").Find(&tasks).Error; err != nil {
		return nil, 0, err
	}

	return tasks, total, nil
}

func (r *taskRepository) Summary(ctx context.Context, ownerID string) (TaskSummary, error) {
	var tasks []models.Task
	err := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Select("unlocked", "public_feedback").
		Where("owner_id = ?", ownerID).
		Find(&tasks).Error
	if err != nil {
		return TaskSummary{}, err
	}

	summary := TaskSummary{Total: int64(len(tasks))}
	var scoreTotal int
	for _, task := range tasks {
		if task.Unlocked {
			summary.Unlocked++
		}
		scoreTotal += task.Public().Score
	}
	if summary.Total > 0 {
		summary.AverageScore = float64(scoreTotal) / float64(summary.Total)
	}

	return summary, nil
}
