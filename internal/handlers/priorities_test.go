package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"task-prioritizer/backend/internal/handlers"
	"task-prioritizer/backend/internal/models"
	"task-prioritizer/backend/internal/services"
	"task-prioritizer/backend/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeService struct {
	ranked   []services.RankedTask
	rankErr  error
	gotIDs   []uuid.UUID
	gotOwner uuid.UUID
	trained  bool
	slot     string
	slotErr  error
}

func (f *fakeService) RankTasks(context.Context, uuid.UUID, []models.Task) []models.ScoredTask {
	return nil
}

func (f *fakeService) RankOpenTasks(_ context.Context, owner uuid.UUID, ids []uuid.UUID) ([]services.RankedTask, error) {
	f.gotOwner = owner
	f.gotIDs = ids
	return f.ranked, f.rankErr
}

func (f *fakeService) Train(_ context.Context, owner uuid.UUID) bool {
	f.gotOwner = owner
	return f.trained
}

func (f *fakeService) SuggestSlot(*models.Task) string { return f.slot }

func (f *fakeService) SuggestSlotForTask(_ context.Context, owner, _ uuid.UUID) (string, error) {
	f.gotOwner = owner
	return f.slot, f.slotErr
}

type fakeQueue struct {
	owner uuid.UUID
	queue string
	err   error
}

func (q *fakeQueue) EnqueueRetrain(_ context.Context, queue string, owner uuid.UUID) (*worker.Job, error) {
	q.owner = owner
	q.queue = queue
	if q.err != nil {
		return nil, q.err
	}
	return &worker.Job{ID: "job-1", Type: worker.JobTypeRetrainModel}, nil
}

func newRouter(owner uuid.UUID, h *handlers.PriorityHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	api := router.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		if !owner.IsNil() {
			c.Set("owner_id", owner)
		}
		c.Next()
	})
	h.RegisterRoutes(api)
	return router
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRank_ReturnsRankedTasks(t *testing.T) {
	owner := uuid.Must(uuid.NewV4())
	taskID := uuid.Must(uuid.NewV4())
	svc := &fakeService{ranked: []services.RankedTask{{TaskID: taskID, Title: "Fix prod", Score: 9.8, SuggestedSlot: "08:00"}}}
	router := newRouter(owner, handlers.NewPriorityHandler(svc, nil, "", nil))

	w := do(router, http.MethodPost, "/api/v1/priorities/rank", `{"task_ids":["`+taskID.String()+`"]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Tasks []services.RankedTask `json:"tasks"`
		Count int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, taskID, body.Tasks[0].TaskID)
	assert.Equal(t, "08:00", body.Tasks[0].SuggestedSlot)
	assert.Equal(t, owner, svc.gotOwner)
	assert.Equal(t, []uuid.UUID{taskID}, svc.gotIDs)
}

func TestRank_EmptyBodyRanksEverything(t *testing.T) {
	svc := &fakeService{ranked: []services.RankedTask{}}
	router := newRouter(uuid.Must(uuid.NewV4()), handlers.NewPriorityHandler(svc, nil, "", nil))

	w := do(router, http.MethodPost, "/api/v1/priorities/rank", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"tasks":[],"count":0}`, w.Body.String())
	assert.Nil(t, svc.gotIDs)
}

func TestRank_BadBody(t *testing.T) {
	router := newRouter(uuid.Must(uuid.NewV4()), handlers.NewPriorityHandler(&fakeService{}, nil, "", nil))

	w := do(router, http.MethodPost, "/api/v1/priorities/rank", `{"task_ids":["not-a-uuid"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRank_StoreFailure(t *testing.T) {
	svc := &fakeService{rankErr: errors.New("connection refused")}
	router := newRouter(uuid.Must(uuid.NewV4()), handlers.NewPriorityHandler(svc, nil, "", nil))

	w := do(router, http.MethodPost, "/api/v1/priorities/rank", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestRank_Unauthenticated(t *testing.T) {
	router := newRouter(uuid.Nil, handlers.NewPriorityHandler(&fakeService{}, nil, "", nil))

	w := do(router, http.MethodPost, "/api/v1/priorities/rank", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTrain_Sync(t *testing.T) {
	owner := uuid.Must(uuid.NewV4())
	svc := &fakeService{trained: true}
	router := newRouter(owner, handlers.NewPriorityHandler(svc, nil, "", nil))

	w := do(router, http.MethodPost, "/api/v1/priorities/train", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"trained":true}`, w.Body.String())
	assert.Equal(t, owner, svc.gotOwner)
}

func TestTrain_Async(t *testing.T) {
	owner := uuid.Must(uuid.NewV4())
	queue := &fakeQueue{}
	router := newRouter(owner, handlers.NewPriorityHandler(&fakeService{}, queue, "", nil))

	w := do(router, http.MethodPost, "/api/v1/priorities/train?async=true", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"job_id":"job-1","status":"queued"}`, w.Body.String())
	assert.Equal(t, owner, queue.owner)
	assert.Equal(t, worker.DefaultQueue, queue.queue)
}

func TestTrain_AsyncUnavailable(t *testing.T) {
	router := newRouter(uuid.Must(uuid.NewV4()), handlers.NewPriorityHandler(&fakeService{}, nil, "", nil))
	assert.Equal(t, http.StatusServiceUnavailable, do(router, http.MethodPost, "/api/v1/priorities/train?async=true", "").Code)

	failing := newRouter(uuid.Must(uuid.NewV4()), handlers.NewPriorityHandler(&fakeService{}, &fakeQueue{err: errors.New("redis down")}, "", nil))
	assert.Equal(t, http.StatusServiceUnavailable, do(failing, http.MethodPost, "/api/v1/priorities/train?async=true", "").Code)
}

func TestTrain_BadAsyncFlag(t *testing.T) {
	router := newRouter(uuid.Must(uuid.NewV4()), handlers.NewPriorityHandler(&fakeService{}, nil, "", nil))
	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, "/api/v1/priorities/train?async=maybe", "").Code)
}

func TestSuggestSlot(t *testing.T) {
	taskID := uuid.Must(uuid.NewV4())
	svc := &fakeService{slot: "14:00"}
	router := newRouter(uuid.Must(uuid.NewV4()), handlers.NewPriorityHandler(svc, nil, "", nil))

	w := do(router, http.MethodGet, "/api/v1/priorities/tasks/"+taskID.String()+"/slot", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"task_id":"`+taskID.String()+`","suggested_slot":"14:00"}`, w.Body.String())
}

func TestSuggestSlot_Errors(t *testing.T) {
	router := newRouter(uuid.Must(uuid.NewV4()), handlers.NewPriorityHandler(&fakeService{slotErr: gorm.ErrRecordNotFound}, nil, "", nil))

	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodGet, "/api/v1/priorities/tasks/abc/slot", "").Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/api/v1/priorities/tasks/"+uuid.Must(uuid.NewV4()).String()+"/slot", "").Code)
}
