package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// Feedback is a user's verdict on a prioritization. ActualPriority, when set,
// replaces the task's own priority level as the training label.
type Feedback struct {
	ID             uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	UserID         uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	TaskID         uuid.UUID `json:"task_id" gorm:"type:uuid;not null;index"`
	ActualPriority *string   `json:"actual_priority,omitempty"`
	WasUseful      *bool     `json:"was_useful,omitempty"`
	CreatedAt      time.Time `json:"created_at" gorm:"index"`
}

func (Feedback) TableName() string {
	return "ml_feedback"
}

func (f *Feedback) BeforeCreate(tx *gorm.DB) error {
	if f.ID.IsNil() {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		f.ID = id
	}
	return nil
}
