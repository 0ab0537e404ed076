package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"task-prioritizer/backend/internal/logger"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

type RetrainPayload struct {
	OwnerID uuid.UUID `json:"owner_id"`
}

type Trainer interface {
	Train(ctx context.Context, ownerID uuid.UUID) bool
}

type OwnerLister interface {
	OwnersCompletedSince(ctx context.Context, since time.Time) ([]uuid.UUID, error)
}

// EnqueueRetrain queues a model rebuild for one owner.
func (q *JobQueue) EnqueueRetrain(ctx context.Context, queue string, ownerID uuid.UUID) (*Job, error) {
	if ownerID.IsNil() {
		return nil, fmt.Errorf("retrain job requires an owner")
	}
	return q.Enqueue(ctx, queue, JobTypeRetrainModel, RetrainPayload{OwnerID: ownerID})
}

// RetrainHandler runs Train for the job's owner. Too little data is a normal
// outcome and is not retried; only a malformed payload fails the job.
func RetrainHandler(trainer Trainer, log *zap.Logger) JobHandler {
	log = logger.OrNop(log)
	return func(ctx context.Context, job *Job) error {
		var payload RetrainPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("invalid retrain payload: %w", err)
		}
		if payload.OwnerID.IsNil() {
			return fmt.Errorf("invalid retrain payload: missing owner_id")
		}

		trained := trainer.Train(ctx, payload.OwnerID)
		log.Debug("retrain job finished", logger.Owner(payload.OwnerID), zap.Bool("trained", trained))
		return nil
	}
}

// RetrainScheduler periodically queues retraining for every owner who
// completed a task since the previous tick.
type RetrainScheduler struct {
	owners   OwnerLister
	queue    *JobQueue
	name     string
	interval time.Duration
	log      *zap.Logger
	now      func() time.Time
	last     time.Time
}

func NewRetrainScheduler(owners OwnerLister, queue *JobQueue, queueName string, interval time.Duration, log *zap.Logger) *RetrainScheduler {
	if queueName == "" {
		queueName = DefaultQueue
	}
	return &RetrainScheduler{
		owners:   owners,
		queue:    queue,
		name:     queueName,
		interval: interval,
		log:      logger.OrNop(log),
		now:      time.Now,
	}
}

// Run ticks until ctx is done. A non-positive interval disables it.
func (s *RetrainScheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	s.last = s.now()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				s.log.Error("retrain schedule tick failed", zap.Error(err))
			}
		}
	}
}

// Tick enqueues retraining for owners active since the previous tick and
// returns how many jobs it queued. The window only advances when every job
// was queued.
func (s *RetrainScheduler) Tick(ctx context.Context) (int, error) {
	now := s.now()
	since := s.last
	if since.IsZero() {
		since = now.Add(-s.interval)
	}

	owners, err := s.owners.OwnersCompletedSince(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("failed to list active owners: %w", err)
	}

	queued := 0
	for _, owner := range owners {
		if _, err := s.queue.EnqueueRetrain(ctx, s.name, owner); err != nil {
			return queued, fmt.Errorf("failed to enqueue retrain for %s: %w", owner, err)
		}
		queued++
	}

	s.last = now
	if queued > 0 {
		s.log.Info("scheduled retraining", zap.Int("owners", queued))
	}
	return queued, nil
}
