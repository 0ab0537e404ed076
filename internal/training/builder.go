package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"task-prioritizer/backend/internal/features"
	"task-prioritizer/backend/internal/repositories"

	"github.com/gofrs/uuid"
)

// ErrInsufficientData means the owner has too few completed tasks to train.
var ErrInsufficientData = errors.New("insufficient training data")

// MinSamples is the hard floor on completed tasks for any training attempt.
const MinSamples = 3

// Dataset is one training snapshot, encoded at a single instant.
type Dataset struct {
	Rows   [][]float64
	Labels []int
	At     time.Time
}

type Builder struct {
	tasks      repositories.TaskRepository
	feedback   repositories.FeedbackRepository
	codec      *features.Codec
	minSamples int
}

// NewBuilder returns a builder. minSamples below MinSamples is raised to it.
func NewBuilder(tasks repositories.TaskRepository, feedback repositories.FeedbackRepository, codec *features.Codec, minSamples int) *Builder {
	return &Builder{
		tasks:      tasks,
		feedback:   feedback,
		codec:      codec,
		minSamples: max(minSamples, MinSamples),
	}
}

// Build encodes the owner's completed tasks. Each label is the latest
// feedback correction when one exists, otherwise the task's own priority,
// folded to low, medium or high and mapped to 1, 2 or 3.
func (b *Builder) Build(ctx context.Context, ownerID uuid.UUID, now time.Time) (*Dataset, error) {
	tasks, err := b.tasks.CompletedTasks(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load completed tasks: %w", err)
	}
	if len(tasks) < b.minSamples {
		return nil, fmt.Errorf("%w: %d completed tasks, need %d", ErrInsufficientData, len(tasks), b.minSamples)
	}

	ids := make([]uuid.UUID, len(tasks))
	for i, task := range tasks {
		ids[i] = task.ID
	}
	corrections, err := b.feedback.LatestLabels(ctx, ownerID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback labels: %w", err)
	}

	labels := make([]int, len(tasks))
	for i, task := range tasks {
		label := task.PriorityLevel
		if corrected, ok := corrections[task.ID]; ok {
			label = corrected
		}
		labels[i] = features.OrdinalLabel(label)
	}

	return &Dataset{
		Rows:   b.codec.EncodeAll(tasks, now),
		Labels: labels,
		At:     now,
	}, nil
}
