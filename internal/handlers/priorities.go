package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"task-prioritizer/backend/internal/logger"
	"task-prioritizer/backend/internal/middleware"
	"task-prioritizer/backend/internal/services"
	"task-prioritizer/backend/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RetrainQueue accepts asynchronous retraining requests.
type RetrainQueue interface {
	EnqueueRetrain(ctx context.Context, queue string, ownerID uuid.UUID) (*worker.Job, error)
}

type PriorityHandler struct {
	service services.PrioritizationService
	jobs    RetrainQueue
	queue   string
	log     *zap.Logger
}

// NewPriorityHandler wires the handler. jobs may be nil, in which case
// asynchronous training is unavailable.
func NewPriorityHandler(service services.PrioritizationService, jobs RetrainQueue, queue string, log *zap.Logger) *PriorityHandler {
	if queue == "" {
		queue = worker.DefaultQueue
	}
	return &PriorityHandler{service: service, jobs: jobs, queue: queue, log: logger.OrNop(log)}
}

func (h *PriorityHandler) RegisterRoutes(rg *gin.RouterGroup, trainGuard ...gin.HandlerFunc) {
	priorities := rg.Group("/priorities")
	priorities.POST("/rank", h.Rank)
	priorities.POST("/train", append(trainGuard, h.Train)...)
	priorities.GET("/tasks/:id/slot", h.SuggestSlot)
}

type rankRequest struct {
	TaskIDs []uuid.UUID `json:"task_ids"`
}

// Rank orders the caller's open tasks, highest priority first.
func (h *PriorityHandler) Rank(c *gin.Context) {
	owner, ok := middleware.OwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req rankRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
			return
		}
	}

	ranked, err := h.service.RankOpenTasks(c.Request.Context(), owner, req.TaskIDs)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": ranked, "count": len(ranked)})
}

// Train rebuilds the caller's model. With async=true the work is queued and
// the request returns immediately.
func (h *PriorityHandler) Train(c *gin.Context) {
	owner, ok := middleware.OwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	async, err := strconv.ParseBool(c.DefaultQuery("async", "false"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "async must be a boolean"})
		return
	}

	if async {
		if h.jobs == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "background training is not available"})
			return
		}
		job, err := h.jobs.EnqueueRetrain(c.Request.Context(), h.queue, owner)
		if err != nil {
			h.log.Error("failed to enqueue retrain", logger.Owner(owner), zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to queue training"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "status": "queued"})
		return
	}

	trained := h.service.Train(c.Request.Context(), owner)
	c.JSON(http.StatusOK, gin.H{"trained": trained})
}

func (h *PriorityHandler) SuggestSlot(c *gin.Context) {
	owner, ok := middleware.OwnerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	taskID, err := uuid.FromString(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}

	slot, err := h.service.SuggestSlotForTask(c.Request.Context(), owner, taskID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task_id": taskID, "suggested_slot": slot})
}

func (h *PriorityHandler) handleError(c *gin.Context, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
