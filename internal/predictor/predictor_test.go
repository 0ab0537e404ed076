package predictor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"task-prioritizer/backend/internal/features"
	"task-prioritizer/backend/internal/ml"
	"task-prioritizer/backend/internal/models"
	"task-prioritizer/backend/internal/modelstore"
	"task-prioritizer/backend/internal/postprocess"
	"task-prioritizer/backend/internal/repositories"
	"task-prioritizer/backend/internal/rules"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// 12:00 keeps the hour-of-day multipliers out of the way.
var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

var owner = uuid.Must(uuid.NewV4())

type stubCounter struct {
	count int64
	err   error
	calls int
}

func (s *stubCounter) CountCompleted(context.Context, uuid.UUID) (int64, error) {
	s.calls++
	return s.count, s.err
}

type stubModels struct {
	classifier ml.Classifier
	calls      int
}

func (s *stubModels) Classifier(context.Context, uuid.UUID) (ml.Classifier, bool) {
	s.calls++
	return s.classifier, s.classifier != nil
}

type classifierFunc func(rows [][]float64) ([]int, error)

func (f classifierFunc) Predict(rows [][]float64) ([]int, error) { return f(rows) }

func constant(classes ...int) classifierFunc {
	return func(rows [][]float64) ([]int, error) { return classes, nil }
}

func newPredictor(t *testing.T, counter CompletedCounter, source ModelSource) *Predictor {
	keywords := features.DefaultKeywords()
	return New(
		counter,
		source,
		features.NewCodec(keywords),
		rules.NewEngine(rules.DefaultTables(), keywords),
		postprocess.New(nil, postprocess.DefaultFactors(), zaptest.NewLogger(t)),
		3,
		zaptest.NewLogger(t),
	)
}

func named(titles ...string) []models.Task {
	tasks := make([]models.Task, len(titles))
	for i, title := range titles {
		tasks[i] = models.Task{ID: uuid.Must(uuid.NewV4()), Title: title, PriorityLevel: "low", Urgency: "low", Impact: "low"}
	}
	return tasks
}

func titles(scored []models.ScoredTask) []string {
	out := make([]string, len(scored))
	for i, st := range scored {
		out[i] = st.Task.Title
	}
	return out
}

func TestRank_EmptyInputIssuesNoQueries(t *testing.T) {
	counter := &stubCounter{count: 10}
	source := &stubModels{classifier: constant()}

	out := newPredictor(t, counter, source).Rank(context.Background(), owner, nil, fixedNow)

	assert.NotNil(t, out)
	assert.Empty(t, out)
	assert.Equal(t, 0, counter.calls)
	assert.Equal(t, 0, source.calls)
}

func TestRank_TooFewCompletedNeverLoadsModel(t *testing.T) {
	counter := &stubCounter{count: 2}
	source := &stubModels{classifier: classifierFunc(func([][]float64) ([]int, error) {
		t.Fatal("model must not be consulted")
		return nil, nil
	})}
	tasks := named("plan", "fix login")
	tasks[1].PriorityLevel = "high"

	out := newPredictor(t, counter, source).Rank(context.Background(), owner, tasks, fixedNow)

	assert.Equal(t, 0, source.calls)
	assert.Equal(t, []string{"fix login", "plan"}, titles(out))
	assert.InDelta(t, 3.0*1.8, out[0].Score, 1e-9)
}

func TestRank_DeadlineTodayCompoundsRuleAndPostFactors(t *testing.T) {
	tasks := named("report")
	deadline := fixedNow.Add(3 * time.Hour)
	tasks[0].Deadline = &deadline

	out := newPredictor(t, &stubCounter{count: 0}, &stubModels{}).Rank(context.Background(), owner, tasks, fixedNow)

	require.Len(t, out, 1)
	assert.InDelta(t, 1.0*2.0*1.4, out[0].Score, 1e-9)
}

func TestRank_NoModelUsesRules(t *testing.T) {
	tasks := named("a", "b")
	tasks[1].PriorityLevel = "medium"

	out := newPredictor(t, &stubCounter{count: 5}, &stubModels{}).Rank(context.Background(), owner, tasks, fixedNow)

	assert.Equal(t, []string{"b", "a"}, titles(out))
}

func TestRank_ModelScoresAreClassesSortedStably(t *testing.T) {
	tasks := named("first", "second", "third", "fourth")
	source := &stubModels{classifier: constant(2, 3, 2, 1)}

	out := newPredictor(t, &stubCounter{count: 3}, source).Rank(context.Background(), owner, tasks, fixedNow)

	assert.Equal(t, []string{"second", "first", "third", "fourth"}, titles(out))
	assert.Equal(t, []float64{3, 2, 2, 1}, []float64{out[0].Score, out[1].Score, out[2].Score, out[3].Score})
}

func TestRank_ModelPathReceivesEncodedBatch(t *testing.T) {
	tasks := named("x", "y", "z")
	var seen [][]float64
	source := &stubModels{classifier: classifierFunc(func(rows [][]float64) ([]int, error) {
		seen = rows
		return []int{1, 1, 1}, nil
	})}

	newPredictor(t, &stubCounter{count: 3}, source).Rank(context.Background(), owner, tasks, fixedNow)

	require.Len(t, seen, 3)
	for _, row := range seen {
		assert.Len(t, row, features.VectorLength)
	}
}

func TestRank_InferenceProblemsFallBackToRules(t *testing.T) {
	tests := []struct {
		name       string
		classifier ml.Classifier
	}{
		{"error", classifierFunc(func([][]float64) ([]int, error) { return nil, errors.New("bad shape") })},
		{"panic", classifierFunc(func([][]float64) ([]int, error) { panic("index out of range") })},
		{"short result", constant(3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks := named("low", "high")
			tasks[1].PriorityLevel = "high"

			var out []models.ScoredTask
			require.NotPanics(t, func() {
				out = newPredictor(t, &stubCounter{count: 9}, &stubModels{classifier: tt.classifier}).
					Rank(context.Background(), owner, tasks, fixedNow)
			})
			assert.Equal(t, []string{"high", "low"}, titles(out))
			assert.InDelta(t, 3.0, out[0].Score, 1e-9)
		})
	}
}

func TestRank_CountFailureFallsBackToRules(t *testing.T) {
	source := &stubModels{classifier: constant(1)}
	out := newPredictor(t, &stubCounter{err: errors.New("db down")}, source).
		Rank(context.Background(), owner, named("only"), fixedNow)

	require.Len(t, out, 1)
	assert.Equal(t, 0, source.calls)
}

func TestRank_IsSortedPermutationWithStableTies(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	levels := []string{"low", "medium", "high"}

	for round := 0; round < 50; round++ {
		n := rng.IntN(12)
		tasks := make([]models.Task, n)
		classes := make([]int, n)
		for i := range tasks {
			tasks[i] = models.Task{
				ID:             uuid.Must(uuid.NewV4()),
				Title:          fmt.Sprintf("task-%d", i),
				PriorityLevel:  levels[rng.IntN(3)],
				Urgency:        levels[rng.IntN(3)],
				EnergyRequired: levels[rng.IntN(3)],
			}
			classes[i] = 1 + rng.IntN(3)
		}

		var source *stubModels
		if round%2 == 0 {
			source = &stubModels{classifier: constant(classes...)}
		} else {
			source = &stubModels{}
		}
		out := newPredictor(t, &stubCounter{count: 3}, source).Rank(context.Background(), owner, tasks, fixedNow)

		require.Len(t, out, n)
		position := make(map[uuid.UUID]int, n)
		for i, task := range tasks {
			position[task.ID] = i
		}
		seen := make(map[uuid.UUID]bool, n)
		for i, st := range out {
			_, known := position[st.Task.ID]
			require.True(t, known)
			require.False(t, seen[st.Task.ID])
			seen[st.Task.ID] = true
			if i > 0 {
				prev := out[i-1]
				require.GreaterOrEqual(t, prev.Score, st.Score)
				if prev.Score == st.Score {
					require.Less(t, position[prev.Task.ID], position[st.Task.ID])
				}
			}
		}
	}
}

func TestRank_CorruptStoredModelUsesRules(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.Task{}, &models.Feedback{}, &models.TrainedModel{}))

	for i := 0; i < 3; i++ {
		require.NoError(t, db.Create(&models.Task{UserID: owner, Title: fmt.Sprintf("done %d", i), Status: models.StatusCompleted}).Error)
	}
	require.NoError(t, db.Create(&models.TrainedModel{
		UserID:       owner,
		ModelKind:    "priority_predictor_v3",
		ModelVersion: "3.1",
		ModelData:    []byte(`{"format":"decision_tree/v1","tree":{"root":{"leaf":false,"feature":99}}}`),
		IsActive:     true,
	}).Error)

	store := modelstore.New(repositories.NewModelRepository(db), nil, modelstore.Config{ModelKind: "priority_predictor_v3"}, zaptest.NewLogger(t))
	p := newPredictor(t, repositories.NewTaskRepository(db), store)

	tasks := named("plain", "fix it")
	var out []models.ScoredTask
	require.NotPanics(t, func() { out = p.Rank(context.Background(), owner, tasks, fixedNow) })
	assert.Equal(t, []string{"fix it", "plain"}, titles(out))
	assert.InDelta(t, 1.8, out[0].Score, 1e-9)
}
