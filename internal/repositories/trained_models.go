package repositories

import (
	"context"
	"fmt"

	"task-prioritizer/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type ModelRepository interface {
	FindActive(ctx context.Context, ownerID uuid.UUID, kind string) (models.TrainedModel, error)
	ModelData(ctx context.Context, id uuid.UUID) ([]byte, error)
	ReplaceActive(ctx context.Context, model *models.TrainedModel) error
	CountActive(ctx context.Context, ownerID uuid.UUID, kind string) (int64, error)
}

var _ ModelRepository = (*GormModelRepository)(nil)

type GormModelRepository struct {
	db *gorm.DB
}

func NewModelRepository(db *gorm.DB) *GormModelRepository {
	return &GormModelRepository{db: db}
}

// FindActive returns the most recently trained active row for the owner
// and kind, without its serialized weights. gorm.ErrRecordNotFound means
// there is none.
func (r *GormModelRepository) FindActive(ctx context.Context, ownerID uuid.UUID, kind string) (models.TrainedModel, error) {
	var model models.TrainedModel
	err := r.db.WithContext(ctx).
		Omit("model_data").
		Where("user_id = ? AND model_kind = ? AND is_active = ?", ownerID, kind, true).
		Order("trained_at DESC").
		First(&model).Error
	return model, err
}

func (r *GormModelRepository) ModelData(ctx context.Context, id uuid.UUID) ([]byte, error) {
	var model models.TrainedModel
	err := r.db.WithContext(ctx).
		Select("id", "model_data").
		Where("id = ?", id).
		First(&model).Error
	if err != nil {
		return nil, err
	}
	return model.ModelData, nil
}

// ReplaceActive deactivates every row of the model's owner and kind and
// inserts model as the active one, in a single transaction. On any error
// nothing is committed.
func (r *GormModelRepository) ReplaceActive(ctx context.Context, model *models.TrainedModel) error {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	err := tx.Model(&models.TrainedModel{}).
		Where("user_id = ? AND model_kind = ? AND is_active = ?", model.UserID, model.ModelKind, true).
		Update("is_active", false).Error
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to deactivate previous models: %w", err)
	}

	model.IsActive = true
	if err := tx.Create(model).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to insert model: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit model activation: %w", err)
	}
	return nil
}

func (r *GormModelRepository) CountActive(ctx context.Context, ownerID uuid.UUID, kind string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.TrainedModel{}).
		Where("user_id = ? AND model_kind = ? AND is_active = ?", ownerID, kind, true).
		Count(&count).Error
	return count, err
}
