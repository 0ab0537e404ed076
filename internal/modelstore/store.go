// Package modelstore persists one active decision tree per owner and model
// kind, and loads it back for inference.
package modelstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"task-prioritizer/backend/internal/cache"
	"task-prioritizer/backend/internal/logger"
	"task-prioritizer/backend/internal/ml"
	"task-prioritizer/backend/internal/models"
	"task-prioritizer/backend/internal/monitoring"
	"task-prioritizer/backend/internal/repositories"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrModelLoad = errors.New("failed to load model")
	ErrPersist   = errors.New("failed to persist model")
)

type Config struct {
	ModelKind string
	CacheTTL  time.Duration
}

type Store struct {
	repo     repositories.ModelRepository
	blobs    cache.BlobCache
	kind     string
	cacheTTL time.Duration
	log      *zap.Logger

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// New builds a store. blobs may be nil, in which case every load reads the
// weights from the database.
func New(repo repositories.ModelRepository, blobs cache.BlobCache, cfg Config, log *zap.Logger) *Store {
	return &Store{
		repo:     repo,
		blobs:    blobs,
		kind:     cfg.ModelKind,
		cacheTTL: cfg.CacheTTL,
		log:      logger.OrNop(log),
		locks:    make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *Store) Kind() string {
	return s.kind
}

// LoadActive returns the owner's active model. Any failure to read or decode
// it is logged and reported as absent.
func (s *Store) LoadActive(ctx context.Context, ownerID uuid.UUID) (*ml.DecisionTree, bool) {
	tree, err := s.loadActive(ctx, ownerID)
	if err != nil {
		monitoring.RecordModelLoadFailure()
		s.log.Error("active model unusable, treating as absent", logger.Owner(ownerID), zap.Error(err))
		return nil, false
	}
	return tree, tree != nil
}

// Classifier is LoadActive for callers that only predict.
func (s *Store) Classifier(ctx context.Context, ownerID uuid.UUID) (ml.Classifier, bool) {
	tree, ok := s.LoadActive(ctx, ownerID)
	if !ok {
		return nil, false
	}
	return tree, true
}

func (s *Store) loadActive(ctx context.Context, ownerID uuid.UUID) (*ml.DecisionTree, error) {
	row, err := s.repo.FindActive(ctx, ownerID, s.kind)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}

	data, fromCache := s.cachedBlob(ctx, row.ID)
	if !fromCache {
		data, err = s.repo.ModelData(ctx, row.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: model %s: %w", ErrModelLoad, row.ID, err)
		}
	}

	tree, err := ml.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: model %s: %w", ErrModelLoad, row.ID, err)
	}

	if !fromCache {
		s.cacheBlob(ctx, row.ID, data)
	}
	return tree, nil
}

// Save makes tree the owner's only active model of this kind. Concurrent
// saves for the same owner are serialized, and a failure leaves the previous
// active model in place.
func (s *Store) Save(ctx context.Context, ownerID uuid.UUID, tree *ml.DecisionTree, version string) error {
	data, err := tree.Marshal()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	lock := s.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	row := &models.TrainedModel{
		UserID:       ownerID,
		ModelKind:    s.kind,
		ModelVersion: version,
		ModelData:    data,
	}
	if err := s.repo.ReplaceActive(ctx, row); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	s.cacheBlob(ctx, row.ID, data)
	s.log.Info("model activated",
		logger.Owner(ownerID),
		zap.String("model_id", row.ID.String()),
		zap.String("model_kind", s.kind),
		zap.String("model_version", version),
	)
	return nil
}

func (s *Store) ownerLock(ownerID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[ownerID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[ownerID] = lock
	}
	return lock
}

func blobKey(id uuid.UUID) string {
	return "model:" + id.String()
}

func (s *Store) cachedBlob(ctx context.Context, id uuid.UUID) ([]byte, bool) {
	if s.blobs == nil {
		return nil, false
	}
	data, err := s.blobs.Get(ctx, blobKey(id))
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}

func (s *Store) cacheBlob(ctx context.Context, id uuid.UUID, data []byte) {
	if s.blobs == nil {
		return
	}
	if err := s.blobs.Set(ctx, blobKey(id), data, s.cacheTTL); err != nil {
		s.log.Debug("model blob not cached", zap.String("model_id", id.String()), zap.Error(err))
	}
}
