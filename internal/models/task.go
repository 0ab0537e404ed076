package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// DefaultEstimatedDuration is used, in minutes, when a task has no estimate.
const DefaultEstimatedDuration = 60

type Task struct {
	ID                uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	UserID            uuid.UUID  `json:"user_id" gorm:"type:uuid;not null;index"`
	Title             string     `json:"title" gorm:"not null"`
	Description       string     `json:"description"`
	Status            string     `json:"status" gorm:"not null;default:'pending';index"`
	PriorityLevel     string     `json:"priority_level" gorm:"default:'medium'"`
	Urgency           string     `json:"urgency" gorm:"default:'medium'"`
	Impact            string     `json:"impact" gorm:"default:'medium'"`
	EnergyRequired    string     `json:"energy_required" gorm:"default:'medium'"`
	EstimatedDuration *int       `json:"estimated_duration,omitempty"`
	Deadline          *time.Time `json:"deadline,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID.IsNil() {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		t.ID = id
	}
	return nil
}

// Duration returns the estimated duration in minutes, falling back to
// DefaultEstimatedDuration when the estimate is missing.
func (t *Task) Duration() int {
	if t.EstimatedDuration == nil {
		return DefaultEstimatedDuration
	}
	return *t.EstimatedDuration
}

func (t *Task) IsCompleted() bool {
	return t.Status == StatusCompleted
}

// ScoredTask pairs a task with its raw or adjusted priority score.
type ScoredTask struct {
	Task  Task    `json:"task"`
	Score float64 `json:"score"`
}
