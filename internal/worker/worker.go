package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"task-prioritizer/backend/internal/logger"
	"task-prioritizer/backend/internal/monitoring"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type JobType string

const (
	JobTypeRetrainModel JobType = "retrain_model"
)

const (
	DefaultQueue     = "retrain"
	DefaultScheduled = "scheduled_jobs"
	DefaultDeadQueue = "dead_queue"
)

type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Queue     string          `json:"queue"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	MaxTries  int             `json:"max_tries"`
	CreatedAt time.Time       `json:"created_at"`
	ProcessAt time.Time       `json:"process_at"`
}

type JobHandler func(ctx context.Context, job *Job) error

type WorkerConfig struct {
	RedisClient  *redis.Client
	Queues       []string
	Scheduled    string
	DeadQueue    string
	PollInterval time.Duration
	PopTimeout   time.Duration
	JobTimeout   time.Duration
	RetryBase    time.Duration
	Logger       *zap.Logger
}

// Worker pops jobs from redis lists with BLPOP. Failed jobs are retried with
// exponential backoff through a sorted set scored by due time, and land on
// the dead queue once out of attempts.
type Worker struct {
	client       *redis.Client
	handlers     map[JobType]JobHandler
	queues       []string
	scheduled    string
	deadQueue    string
	pollInterval time.Duration
	popTimeout   time.Duration
	jobTimeout   time.Duration
	retryBase    time.Duration
	log          *zap.Logger

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(config WorkerConfig) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		client:       config.RedisClient,
		handlers:     make(map[JobType]JobHandler),
		queues:       config.Queues,
		scheduled:    config.Scheduled,
		deadQueue:    config.DeadQueue,
		pollInterval: config.PollInterval,
		popTimeout:   config.PopTimeout,
		jobTimeout:   config.JobTimeout,
		retryBase:    config.RetryBase,
		log:          logger.OrNop(config.Logger),
		ctx:          ctx,
		cancel:       cancel,
	}
	if len(w.queues) == 0 {
		w.queues = []string{DefaultQueue}
	}
	if w.scheduled == "" {
		w.scheduled = DefaultScheduled
	}
	if w.deadQueue == "" {
		w.deadQueue = DefaultDeadQueue
	}
	if w.pollInterval <= 0 {
		w.pollInterval = 5 * time.Second
	}
	if w.popTimeout <= 0 {
		w.popTimeout = 5 * time.Second
	}
	if w.jobTimeout <= 0 {
		w.jobTimeout = 30 * time.Second
	}
	if w.retryBase <= 0 {
		w.retryBase = time.Minute
	}
	return w
}

func (w *Worker) RegisterHandler(jobType JobType, handler JobHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = handler
}

func (w *Worker) Start(concurrency int) {
	concurrency = max(concurrency, 1)
	w.log.Info("starting worker", zap.Int("concurrency", concurrency), zap.Strings("queues", w.queues))

	for i := 0; i < concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop()
	}

	w.wg.Add(1)
	go w.promoteLoop()
}

func (w *Worker) Stop() {
	w.log.Info("stopping worker")
	w.cancel()
	w.wg.Wait()
	w.log.Info("worker stopped")
}

func (w *Worker) workerLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			if err := w.processNextJob(w.ctx); err != nil && w.ctx.Err() == nil {
				w.log.Error("error processing job", zap.Error(err))
				w.sleep(time.Second)
			}
		}
	}
}

func (w *Worker) promoteLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.PromoteDue(w.ctx, time.Now()); err != nil && w.ctx.Err() == nil {
				w.log.Error("error promoting scheduled jobs", zap.Error(err))
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.ctx.Done():
	case <-time.After(d):
	}
}

func (w *Worker) processNextJob(ctx context.Context) error {
	result, err := w.client.BLPop(ctx, w.popTimeout, w.queues...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("failed to pop job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if job.Queue == "" {
		job.Queue = result[0]
	}

	return w.executeJob(ctx, &job)
}

func (w *Worker) executeJob(ctx context.Context, job *Job) error {
	w.mu.RLock()
	handler, exists := w.handlers[job.Type]
	w.mu.RUnlock()

	if !exists {
		monitoring.RecordJob(string(job.Type), "unhandled")
		return w.moveToDeadQueue(ctx, job, fmt.Errorf("no handler registered for job type: %s", job.Type))
	}

	log := w.log.With(zap.String("job_id", job.ID), zap.String("job_type", string(job.Type)))
	log.Debug("processing job")

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	err := runHandler(jobCtx, handler, job)
	if err == nil {
		monitoring.RecordJob(string(job.Type), "completed")
		log.Info("job completed")
		return nil
	}

	job.Attempts++
	if job.Attempts < job.MaxTries {
		monitoring.RecordJob(string(job.Type), "retried")
		log.Warn("job failed, retrying", zap.Int("attempt", job.Attempts), zap.Int("max_tries", job.MaxTries), zap.Error(err))
		return w.retryJob(ctx, job)
	}

	monitoring.RecordJob(string(job.Type), "dead")
	log.Error("job failed permanently", zap.Int("attempts", job.Attempts), zap.Error(err))
	return w.moveToDeadQueue(ctx, job, err)
}

func runHandler(ctx context.Context, handler JobHandler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()
	return handler(ctx, job)
}

func (w *Worker) retryJob(ctx context.Context, job *Job) error {
	delay := w.retryBase * time.Duration(1<<(job.Attempts-1))
	job.ProcessAt = time.Now().Add(delay)
	return schedule(ctx, w.client, w.scheduled, job)
}

// PromoteDue moves every scheduled job due at or before now back onto its
// queue and reports how many it moved.
func (w *Worker) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	due, err := w.client.ZRangeByScore(ctx, w.scheduled, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read scheduled jobs: %w", err)
	}

	moved := 0
	for _, data := range due {
		removed, err := w.client.ZRem(ctx, w.scheduled, data).Result()
		if err != nil {
			return moved, fmt.Errorf("failed to claim scheduled job: %w", err)
		}
		if removed == 0 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(data), &job); err != nil {
			w.log.Error("dropping malformed scheduled job", zap.Error(err))
			continue
		}
		queue := job.Queue
		if queue == "" {
			queue = w.queues[0]
		}
		if err := w.client.RPush(ctx, queue, data).Err(); err != nil {
			return moved, fmt.Errorf("failed to promote job %s: %w", job.ID, err)
		}
		moved++
	}
	return moved, nil
}

func (w *Worker) moveToDeadQueue(ctx context.Context, job *Job, jobErr error) error {
	deadJob := map[string]interface{}{
		"original_job": job,
		"error":        jobErr.Error(),
		"failed_at":    time.Now(),
	}

	deadJobData, err := json.Marshal(deadJob)
	if err != nil {
		return fmt.Errorf("failed to marshal dead job: %w", err)
	}

	return w.client.RPush(ctx, w.deadQueue, deadJobData).Err()
}

func schedule(ctx context.Context, client *redis.Client, key string, job *Job) error {
	jobData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return client.ZAdd(ctx, key, redis.Z{
		Score:  float64(job.ProcessAt.UnixMilli()),
		Member: jobData,
	}).Err()
}

type JobQueue struct {
	client    *redis.Client
	scheduled string
	maxTries  int
}

func NewJobQueue(client *redis.Client, maxTries int) *JobQueue {
	if maxTries <= 0 {
		maxTries = 3
	}
	return &JobQueue{client: client, scheduled: DefaultScheduled, maxTries: maxTries}
}

// WithScheduled overrides the sorted set used for delayed jobs.
func (q *JobQueue) WithScheduled(key string) *JobQueue {
	q.scheduled = key
	return q
}

func (q *JobQueue) Enqueue(ctx context.Context, queue string, jobType JobType, payload interface{}) (*Job, error) {
	return q.EnqueueAt(ctx, queue, jobType, payload, time.Now())
}

// EnqueueAt pushes the job straight onto queue when it is already due, and
// schedules it otherwise.
func (q *JobQueue) EnqueueAt(ctx context.Context, queue string, jobType JobType, payload interface{}, processAt time.Time) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}

	job := &Job{
		ID:        id.String(),
		Type:      jobType,
		Queue:     queue,
		Payload:   raw,
		MaxTries:  q.maxTries,
		CreatedAt: time.Now(),
		ProcessAt: processAt,
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if processAt.After(time.Now()) {
		return job, schedule(ctx, q.client, q.scheduled, job)
	}

	jobData, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return job, q.client.RPush(ctx, queue, jobData).Err()
}

func (q *JobQueue) GetQueueSize(ctx context.Context, queue string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return q.client.LLen(ctx, queue).Result()
}
