package repositories

import (
	"context"
	"time"

	"task-prioritizer/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// TaskRepository reads an owner's tasks. Every query is scoped to one owner.
type TaskRepository interface {
	CompletedTasks(ctx context.Context, ownerID uuid.UUID) ([]models.Task, error)
	CountCompleted(ctx context.Context, ownerID uuid.UUID) (int64, error)
	OpenTasks(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID) ([]models.Task, error)
	GetByID(ctx context.Context, ownerID, id uuid.UUID) (models.Task, error)
}

var _ TaskRepository = (*GormTaskRepository)(nil)

type GormTaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *GormTaskRepository {
	return &GormTaskRepository{db: db}
}

func (r *GormTaskRepository) CompletedTasks(ctx context.Context, ownerID uuid.UUID) ([]models.Task, error) {
	var tasks []models.Task
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", ownerID, models.StatusCompleted).
		Order("created_at ASC").
		Find(&tasks).Error
	return tasks, err
}

func (r *GormTaskRepository) CountCompleted(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("user_id = ? AND status = ?", ownerID, models.StatusCompleted).
		Count(&count).Error
	return count, err
}

// OpenTasks returns the owner's pending and in-progress tasks, oldest first.
// A non-empty ids narrows the result to those tasks.
func (r *GormTaskRepository) OpenTasks(ctx context.Context, ownerID uuid.UUID, ids []uuid.UUID) ([]models.Task, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", ownerID, []string{models.StatusPending, models.StatusInProgress})
	if len(ids) > 0 {
		query = query.Where("id IN ?", ids)
	}

	var tasks []models.Task
	err := query.Order("created_at ASC").Find(&tasks).Error
	return tasks, err
}

func (r *GormTaskRepository) GetByID(ctx context.Context, ownerID, id uuid.UUID) (models.Task, error) {
	var task models.Task
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, ownerID).
		First(&task).Error
	return task, err
}

// OwnersCompletedSince lists owners with at least one task completed at or
// after since, judged by the task's last update.
func (r *GormTaskRepository) OwnersCompletedSince(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	var owners []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("status = ? AND updated_at >= ?", models.StatusCompleted, since).
		Distinct().
		Order("user_id").
		Pluck("user_id", &owners).Error
	return owners, err
}
