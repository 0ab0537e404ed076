package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"task-prioritizer/backend/internal/logger"
	"task-prioritizer/backend/internal/ml"
	"task-prioritizer/backend/internal/monitoring"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

// ModelSaver activates a freshly fitted model for an owner.
type ModelSaver interface {
	Save(ctx context.Context, ownerID uuid.UUID, tree *ml.DecisionTree, version string) error
}

type Trainer struct {
	builder *Builder
	store   ModelSaver
	params  ml.Params
	version string
	now     func() time.Time
	log     *zap.Logger
}

type TrainerConfig struct {
	MaxDepth     int
	Seed         uint64
	ModelVersion string
}

func NewTrainer(builder *Builder, store ModelSaver, cfg TrainerConfig, log *zap.Logger) *Trainer {
	params := ml.DefaultParams()
	if cfg.MaxDepth > 0 {
		params.MaxDepth = cfg.MaxDepth
	}
	params.Seed = cfg.Seed

	return &Trainer{
		builder: builder,
		store:   store,
		params:  params,
		version: cfg.ModelVersion,
		now:     time.Now,
		log:     logger.OrNop(log),
	}
}

// WithClock replaces the time source used to snapshot training features.
func (t *Trainer) WithClock(now func() time.Time) *Trainer {
	t.now = now
	return t
}

// Train fits and activates a new model for the owner. It reports false,
// leaving any previous model active, when data is insufficient or fitting
// or persistence fails.
func (t *Trainer) Train(ctx context.Context, ownerID uuid.UUID) bool {
	err := t.train(ctx, ownerID)
	switch {
	case err == nil:
		monitoring.RecordTraining(monitoring.OutcomeTrained)
		return true
	case errors.Is(err, ErrInsufficientData):
		monitoring.RecordTraining(monitoring.OutcomeInsufficient)
		t.log.Info("training skipped", logger.Owner(ownerID), zap.Error(err))
	default:
		monitoring.RecordTraining(monitoring.OutcomeFailed)
		t.log.Warn("training failed", logger.Owner(ownerID), zap.Error(err))
	}
	return false
}

func (t *Trainer) train(ctx context.Context, ownerID uuid.UUID) error {
	dataset, err := t.builder.Build(ctx, ownerID, t.now())
	if err != nil {
		return err
	}

	tree, err := ml.Fit(dataset.Rows, dataset.Labels, t.params)
	if err != nil {
		return fmt.Errorf("failed to fit model: %w", err)
	}

	if err := t.store.Save(ctx, ownerID, tree, t.version); err != nil {
		return err
	}

	t.log.Info("model trained",
		logger.Owner(ownerID),
		zap.Int("samples", len(dataset.Rows)),
		zap.Int("depth", tree.Depth()),
	)
	return nil
}
