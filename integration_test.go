package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"task-prioritizer/backend/internal/config"
	"task-prioritizer/backend/internal/database"
	"task-prioritizer/backend/internal/models"
	"task-prioritizer/backend/internal/server"
	"task-prioritizer/backend/internal/services"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	gormlogger "gorm.io/gorm/logger"
)

func TestApplicationStartup(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("REDIS_HOST", "localhost")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "priority_predictor_v3", cfg.Engine.ModelKind)
}

func TestProductionRequiresSecrets(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DB_PASSWORD", "")

	_, err := config.LoadConfig()
	assert.Error(t, err)
}

type flow struct {
	t      *testing.T
	router http.Handler
	token  string
}

func (f *flow) call(method, path, body string) *httptest.ResponseRecorder {
	f.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+f.token)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *flow) rank() []services.RankedTask {
	f.t.Helper()
	w := f.call(http.MethodPost, "/api/v1/priorities/rank", "")
	require.Equal(f.t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Tasks []services.RankedTask `json:"tasks"`
	}
	require.NoError(f.t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Tasks
}

func TestPrioritizationFlow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("JWT_SECRET", "integration-secret")
	t.Setenv("RATE_LIMIT_ENABLED", "false")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	pool, err := database.NewDatabasePool(&database.PoolConfig{
		Dialector:    sqlite.Open(":memory:"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     gormlogger.Silent,
	})
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, pool.Migrate())

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	app, err := server.New(server.Deps{Config: cfg, DB: pool.DB, Redis: client, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	owner := uuid.Must(uuid.NewV4())
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": owner.String(),
		"iss":     cfg.Auth.Issuer,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("integration-secret"))
	require.NoError(t, err)
	f := &flow{t: t, router: app.Router, token: token}

	create := func(title, status, level string) models.Task {
		task := models.Task{
			UserID:         owner,
			Title:          title,
			Status:         status,
			PriorityLevel:  level,
			Urgency:        level,
			Impact:         level,
			EnergyRequired: "medium",
		}
		require.NoError(t, pool.DB.Create(&task).Error)
		return task
	}

	bug := create("Fix payment outage", models.StatusPending, "high")
	create("Tidy desk", models.StatusPending, "low")

	ranked := f.rank()
	require.Len(t, ranked, 2)
	assert.Equal(t, bug.ID, ranked[0].TaskID)
	assert.GreaterOrEqual(t, ranked[0].Score, ranked[1].Score)

	w := f.call(http.MethodPost, "/api/v1/priorities/train", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"trained":false}`, w.Body.String())

	for _, level := range []string{"low", "medium", "high", "high", "low", "medium"} {
		create("history "+level, models.StatusCompleted, level)
	}

	w = f.call(http.MethodPost, "/api/v1/priorities/train", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"trained":true}`, w.Body.String())

	ranked = f.rank()
	require.Len(t, ranked, 2)
	assert.Equal(t, bug.ID, ranked[0].TaskID)

	w = f.call(http.MethodGet, "/api/v1/priorities/tasks/"+bug.ID.String()+"/slot", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"task_id":"`+bug.ID.String()+`","suggested_slot":"08:00"}`, w.Body.String())

	w = f.call(http.MethodGet, "/api/v1/priorities/tasks/"+uuid.Must(uuid.NewV4()).String()+"/slot", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
