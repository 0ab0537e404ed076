package repositories

import (
	"context"
	"time"

	"task-prioritizer/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type FeedbackRepository interface {
	LatestLabels(ctx context.Context, ownerID uuid.UUID, taskIDs []uuid.UUID) (map[uuid.UUID]string, error)
	NegativeTaskIDsSince(ctx context.Context, ownerID uuid.UUID, since time.Time) (map[uuid.UUID]struct{}, error)
}

var _ FeedbackRepository = (*GormFeedbackRepository)(nil)

type GormFeedbackRepository struct {
	db *gorm.DB
}

func NewFeedbackRepository(db *gorm.DB) *GormFeedbackRepository {
	return &GormFeedbackRepository{db: db}
}

// LatestLabels returns, per task, the actual_priority of the most recent
// feedback that carries one. Tasks without such feedback are absent.
func (r *GormFeedbackRepository) LatestLabels(ctx context.Context, ownerID uuid.UUID, taskIDs []uuid.UUID) (map[uuid.UUID]string, error) {
	labels := make(map[uuid.UUID]string)
	if len(taskIDs) == 0 {
		return labels, nil
	}

	var feedback []models.Feedback
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND task_id IN ? AND actual_priority IS NOT NULL", ownerID, taskIDs).
		Order("created_at DESC").
		Find(&feedback).Error
	if err != nil {
		return nil, err
	}

	for _, f := range feedback {
		if _, seen := labels[f.TaskID]; !seen && f.ActualPriority != nil {
			labels[f.TaskID] = *f.ActualPriority
		}
	}
	return labels, nil
}

// NegativeTaskIDsSince returns the tasks the owner marked as not useful at
// or after since.
func (r *GormFeedbackRepository) NegativeTaskIDsSince(ctx context.Context, ownerID uuid.UUID, since time.Time) (map[uuid.UUID]struct{}, error) {
	var taskIDs []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Feedback{}).
		Where("user_id = ? AND created_at >= ? AND was_useful = ?", ownerID, since, false).
		Distinct().
		Pluck("task_id", &taskIDs).Error
	if err != nil {
		return nil, err
	}

	ids := make(map[uuid.UUID]struct{}, len(taskIDs))
	for _, id := range taskIDs {
		ids[id] = struct{}{}
	}
	return ids, nil
}
