package services

import (
	"task-prioritizer/backend/internal/cache"
	"task-prioritizer/backend/internal/config"
	"task-prioritizer/backend/internal/features"
	"task-prioritizer/backend/internal/logger"
	"task-prioritizer/backend/internal/modelstore"
	"task-prioritizer/backend/internal/postprocess"
	"task-prioritizer/backend/internal/predictor"
	"task-prioritizer/backend/internal/repositories"
	"task-prioritizer/backend/internal/rules"
	"task-prioritizer/backend/internal/schedule"
	"task-prioritizer/backend/internal/training"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewEngineService assembles the prioritization engine over db. blobs may be
// nil to disable model caching.
func NewEngineService(db *gorm.DB, cfg config.EngineConfig, blobs cache.BlobCache, log *zap.Logger) *PrioritizationServiceImpl {
	log = logger.OrNop(log)
	tasks := repositories.NewTaskRepository(db)
	feedback := repositories.NewFeedbackRepository(db)
	codec := features.NewCodec(cfg.Keywords)

	store := modelstore.New(
		repositories.NewModelRepository(db),
		blobs,
		modelstore.Config{ModelKind: cfg.ModelKind, CacheTTL: cfg.ModelCacheTTL},
		log.Named("modelstore"),
	)

	trainer := training.NewTrainer(
		training.NewBuilder(tasks, feedback, codec, cfg.MinTrainingSamples),
		store,
		training.TrainerConfig{MaxDepth: cfg.MaxDepth, Seed: cfg.RandomSeed, ModelVersion: cfg.ModelVersion},
		log.Named("trainer"),
	)

	factors := postprocess.DefaultFactors()
	if cfg.FeedbackWindow > 0 {
		factors.FeedbackWindow = cfg.FeedbackWindow
	}

	ranker := predictor.New(
		tasks,
		store,
		codec,
		rules.NewEngine(rules.DefaultTables(), cfg.Keywords),
		postprocess.New(feedback, factors, log.Named("postprocess")),
		cfg.MinTrainingSamples,
		log.Named("predictor"),
	)

	return NewPrioritizationService(tasks, ranker, trainer, schedule.NewRecommender(cfg.Keywords, log.Named("schedule")))
}
