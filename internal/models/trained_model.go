package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type TrainedModel struct {
	ID           uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	UserID       uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index:idx_trained_models_owner_kind"`
	ModelKind    string    `json:"model_kind" gorm:"not null;index:idx_trained_models_owner_kind"`
	ModelVersion string    `json:"model_version" gorm:"not null"`
	ModelData    []byte    `json:"-"`
	IsActive     bool      `json:"is_active" gorm:"not null;default:false"`
	TrainedAt    time.Time `json:"trained_at" gorm:"not null"`
}

func (m *TrainedModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID.IsNil() {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		m.ID = id
	}
	if m.TrainedAt.IsZero() {
		m.TrainedAt = time.Now()
	}
	return nil
}
