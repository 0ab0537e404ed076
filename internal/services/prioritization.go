package services

import (
	"context"
	"time"

	"task-prioritizer/backend/internal/models"
	"task-prioritizer/backend/internal/repositories"

	"github.com/gofrs/uuid"
)

type Ranker interface {
	Rank(ctx context.Context, ownerID uuid.UUID, tasks []models.Task, now time.Time) []models.ScoredTask
}

type Trainer interface {
	Train(ctx context.Context, ownerID uuid.UUID) bool
}

type SlotRecommender interface {
	SuggestSlot(task *models.Task, now time.Time) string
}

// RankedTask is one entry of a ranking as returned to API callers.
type RankedTask struct {
	TaskID        uuid.UUID `json:"task_id"`
	Title         string    `json:"title"`
	Score         float64   `json:"score"`
	SuggestedSlot string    `json:"suggested_slot"`
}

type PrioritizationService interface {
	RankTasks(ctx context.Context, ownerID uuid.UUID, tasks []models.Task) []models.ScoredTask
	RankOpenTasks(ctx context.Context, ownerID uuid.UUID, taskIDs []uuid.UUID) ([]RankedTask, error)
	Train(ctx context.Context, ownerID uuid.UUID) bool
	SuggestSlot(task *models.Task) string
	SuggestSlotForTask(ctx context.Context, ownerID, taskID uuid.UUID) (string, error)
}

type PrioritizationServiceImpl struct {
	tasks     repositories.TaskRepository
	ranker    Ranker
	trainer   Trainer
	scheduler SlotRecommender
	now       func() time.Time
}

func NewPrioritizationService(tasks repositories.TaskRepository, ranker Ranker, trainer Trainer, scheduler SlotRecommender) *PrioritizationServiceImpl {
	return &PrioritizationServiceImpl{
		tasks:     tasks,
		ranker:    ranker,
		trainer:   trainer,
		scheduler: scheduler,
		now:       time.Now,
	}
}

// WithClock replaces the service's time source.
func (s *PrioritizationServiceImpl) WithClock(now func() time.Time) *PrioritizationServiceImpl {
	s.now = now
	return s
}

func (s *PrioritizationServiceImpl) RankTasks(ctx context.Context, ownerID uuid.UUID, tasks []models.Task) []models.ScoredTask {
	return s.ranker.Rank(ctx, ownerID, tasks, s.now())
}

// RankOpenTasks ranks the owner's pending and in-progress tasks, or only
// those among taskIDs when it is non-empty.
func (s *PrioritizationServiceImpl) RankOpenTasks(ctx context.Context, ownerID uuid.UUID, taskIDs []uuid.UUID) ([]RankedTask, error) {
	tasks, err := s.tasks.OpenTasks(ctx, ownerID, taskIDs)
	if err != nil {
		return nil, err
	}

	now := s.now()
	scored := s.ranker.Rank(ctx, ownerID, tasks, now)

	ranked := make([]RankedTask, len(scored))
	for i, st := range scored {
		task := st.Task
		ranked[i] = RankedTask{
			TaskID:        task.ID,
			Title:         task.Title,
			Score:         st.Score,
			SuggestedSlot: s.scheduler.SuggestSlot(&task, now),
		}
	}
	return ranked, nil
}

func (s *PrioritizationServiceImpl) Train(ctx context.Context, ownerID uuid.UUID) bool {
	return s.trainer.Train(ctx, ownerID)
}

func (s *PrioritizationServiceImpl) SuggestSlot(task *models.Task) string {
	return s.scheduler.SuggestSlot(task, s.now())
}

// SuggestSlotForTask looks the task up within the owner's tasks first;
// gorm.ErrRecordNotFound is returned for unknown or foreign tasks.
func (s *PrioritizationServiceImpl) SuggestSlotForTask(ctx context.Context, ownerID, taskID uuid.UUID) (string, error) {
	task, err := s.tasks.GetByID(ctx, ownerID, taskID)
	if err != nil {
		return "", err
	}
	return s.SuggestSlot(&task), nil
}
