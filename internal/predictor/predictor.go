// Package predictor ranks an owner's tasks with their trained model, or with
// the rule engine when no usable model exists.
package predictor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"task-prioritizer/backend/internal/features"
	"task-prioritizer/backend/internal/logger"
	"task-prioritizer/backend/internal/ml"
	"task-prioritizer/backend/internal/models"
	"task-prioritizer/backend/internal/monitoring"
	"task-prioritizer/backend/internal/postprocess"
	"task-prioritizer/backend/internal/rules"
	"task-prioritizer/backend/internal/training"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

var ErrInference = errors.New("model inference failed")

type CompletedCounter interface {
	CountCompleted(ctx context.Context, ownerID uuid.UUID) (int64, error)
}

type ModelSource interface {
	Classifier(ctx context.Context, ownerID uuid.UUID) (ml.Classifier, bool)
}

type Predictor struct {
	tasks        CompletedCounter
	models       ModelSource
	codec        *features.Codec
	rules        *rules.Engine
	post         *postprocess.PostProcessor
	minCompleted int64
	log          *zap.Logger
}

func New(
	tasks CompletedCounter,
	modelSource ModelSource,
	codec *features.Codec,
	engine *rules.Engine,
	post *postprocess.PostProcessor,
	minCompleted int,
	log *zap.Logger,
) *Predictor {
	return &Predictor{
		tasks:        tasks,
		models:       modelSource,
		codec:        codec,
		rules:        engine,
		post:         post,
		minCompleted: int64(max(minCompleted, training.MinSamples)),
		log:          logger.OrNop(log),
	}
}

// Rank returns tasks ordered by descending adjusted score; equal scores
// keep their input order. Model problems never surface: the rule engine
// scores the same tasks instead.
func (p *Predictor) Rank(ctx context.Context, ownerID uuid.UUID, tasks []models.Task, now time.Time) []models.ScoredTask {
	if len(tasks) == 0 {
		return []models.ScoredTask{}
	}

	start := time.Now()
	scored, path := p.rank(ctx, ownerID, tasks, now)
	sortDescending(scored)
	monitoring.RecordRanking(path, time.Since(start))
	return scored
}

func (p *Predictor) rank(ctx context.Context, ownerID uuid.UUID, tasks []models.Task, now time.Time) ([]models.ScoredTask, string) {
	completed, err := p.tasks.CountCompleted(ctx, ownerID)
	if err != nil {
		p.log.Warn("completed task count unavailable, ranking by rules", logger.Owner(ownerID), zap.Error(err))
		return p.byRules(ctx, ownerID, tasks, now), monitoring.PathFallback
	}
	if completed < p.minCompleted {
		return p.byRules(ctx, ownerID, tasks, now), monitoring.PathRules
	}

	classifier, ok := p.models.Classifier(ctx, ownerID)
	if !ok {
		return p.byRules(ctx, ownerID, tasks, now), monitoring.PathRules
	}

	scored, err := p.byModel(ctx, ownerID, classifier, tasks, now)
	if err != nil {
		p.log.Warn("model ranking failed, ranking by rules", logger.Owner(ownerID), zap.Error(err))
		return p.byRules(ctx, ownerID, tasks, now), monitoring.PathFallback
	}
	return scored, monitoring.PathML
}

func (p *Predictor) byRules(ctx context.Context, ownerID uuid.UUID, tasks []models.Task, now time.Time) []models.ScoredTask {
	return p.post.Adjust(ctx, ownerID, p.rules.Score(tasks, now), now)
}

func (p *Predictor) byModel(ctx context.Context, ownerID uuid.UUID, classifier ml.Classifier, tasks []models.Task, now time.Time) (out []models.ScoredTask, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: panic: %v", ErrInference, r)
		}
	}()

	classes, err := classifier.Predict(p.codec.EncodeAll(tasks, now))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}
	if len(classes) != len(tasks) {
		return nil, fmt.Errorf("%w: %d predictions for %d tasks", ErrInference, len(classes), len(tasks))
	}

	scored := make([]models.ScoredTask, len(tasks))
	for i, task := range tasks {
		scored[i] = models.ScoredTask{Task: task, Score: float64(classes[i])}
	}
	return p.post.Adjust(ctx, ownerID, scored, now), nil
}

func sortDescending(scored []models.ScoredTask) {
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
}
