package postprocess

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"task-prioritizer/backend/internal/models"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubFeedback struct {
	ids   map[uuid.UUID]struct{}
	err   error
	since time.Time
	calls int
}

func (s *stubFeedback) NegativeTaskIDsSince(_ context.Context, _ uuid.UUID, since time.Time) (map[uuid.UUID]struct{}, error) {
	s.calls++
	s.since = since
	return s.ids, s.err
}

var owner = uuid.Must(uuid.NewV4())

func clock(hour int) time.Time {
	return time.Date(2026, 3, 10, hour, 0, 0, 0, time.UTC)
}

func task(energy string) models.Task {
	return models.Task{ID: uuid.Must(uuid.NewV4()), Title: "t", EnergyRequired: energy}
}

func adjustOne(t *testing.T, p *PostProcessor, tk models.Task, score float64, now time.Time) float64 {
	out := p.Adjust(context.Background(), owner, []models.ScoredTask{{Task: tk, Score: score}}, now)
	require.Len(t, out, 1)
	return out[0].Score
}

func TestAdjust_HourAndEnergy(t *testing.T) {
	p := New(&stubFeedback{}, DefaultFactors(), zaptest.NewLogger(t))

	tests := []struct {
		name   string
		energy string
		hour   int
		want   float64
	}{
		{"evening high energy", "high", 19, 1.4},
		{"evening low energy", "low", 18, 2.6},
		{"evening medium energy", "medium", 20, 2.0},
		{"morning high energy", "high", 7, 2.4},
		{"morning end high energy", "high", 10, 2.4},
		{"morning low energy", "low", 8, 2.0},
		{"midday high energy", "high", 11, 2.0},
		{"night high energy", "high", 3, 2.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, adjustOne(t, p, task(tt.energy), 2.0, clock(tt.hour)), 1e-9)
		})
	}
}

func TestAdjust_LongTaskLateInDay(t *testing.T) {
	p := New(&stubFeedback{}, DefaultFactors(), zaptest.NewLogger(t))
	long := 150
	exact := 120

	tk := task("medium")
	tk.EstimatedDuration = &long
	assert.InDelta(t, 1.6, adjustOne(t, p, tk, 2.0, clock(17)), 1e-9)
	assert.InDelta(t, 2.0, adjustOne(t, p, tk, 2.0, clock(16)), 1e-9)

	tk.EstimatedDuration = &exact
	assert.InDelta(t, 2.0, adjustOne(t, p, tk, 2.0, clock(17)), 1e-9)
}

func TestAdjust_NegativeFeedbackWindow(t *testing.T) {
	flagged := task("medium")
	other := task("medium")
	fb := &stubFeedback{ids: map[uuid.UUID]struct{}{flagged.ID: {}}}
	p := New(fb, DefaultFactors(), zaptest.NewLogger(t))
	now := clock(12)

	out := p.Adjust(context.Background(), owner, []models.ScoredTask{
		{Task: flagged, Score: 2.0},
		{Task: other, Score: 2.0},
	}, now)

	require.Len(t, out, 2)
	assert.InDelta(t, 2.6, out[0].Score, 1e-9)
	assert.InDelta(t, 2.0, out[1].Score, 1e-9)
	assert.Equal(t, now.Add(-24*time.Hour), fb.since)
}

func TestAdjust_DeadlineProximity(t *testing.T) {
	p := New(&stubFeedback{}, DefaultFactors(), zaptest.NewLogger(t))
	now := clock(12)

	tests := []struct {
		name   string
		offset time.Duration
		want   float64
	}{
		{"overdue", -2 * time.Hour, 3.0},
		{"today", 2 * time.Hour, 2.8},
		{"tomorrow", 26 * time.Hour, 2.4},
		{"in two days", 50 * time.Hour, 2.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := task("medium")
			deadline := now.Add(tt.offset)
			tk.Deadline = &deadline
			assert.InDelta(t, tt.want, adjustOne(t, p, tk, 2.0, now), 1e-9)
		})
	}
}

func TestAdjust_FloorClamp(t *testing.T) {
	p := New(&stubFeedback{}, DefaultFactors(), zaptest.NewLogger(t))
	long := 600
	tk := task("high")
	tk.EstimatedDuration = &long

	for _, score := range []float64{0, 0.1, 0.6, -5} {
		got := adjustOne(t, p, tk, score, clock(21))
		assert.GreaterOrEqual(t, got, 0.5)
	}
	assert.Equal(t, 0.5, adjustOne(t, p, tk, 0.6, clock(21)))
}

func TestAdjust_CompoundsAllFactors(t *testing.T) {
	tk := task("low")
	long := 180
	tk.EstimatedDuration = &long
	deadline := clock(19).Add(time.Hour)
	tk.Deadline = &deadline
	p := New(&stubFeedback{ids: map[uuid.UUID]struct{}{tk.ID: {}}}, DefaultFactors(), zaptest.NewLogger(t))

	assert.InDelta(t, 2.0*1.3*0.8*1.3*1.4, adjustOne(t, p, tk, 2.0, clock(19)), 1e-9)
}

func TestAdjust_FeedbackFailurePassesThrough(t *testing.T) {
	p := New(&stubFeedback{err: errors.New("db down")}, DefaultFactors(), zaptest.NewLogger(t))
	in := []models.ScoredTask{{Task: task("high"), Score: 0.1}, {Task: task("low"), Score: 7}}

	out := p.Adjust(context.Background(), owner, in, clock(19))
	assert.Equal(t, in, out)

	_, err := p.TryAdjust(context.Background(), owner, in, clock(19))
	assert.ErrorIs(t, err, ErrAdjust)
}

func TestAdjust_NonFiniteScorePassesThrough(t *testing.T) {
	p := New(nil, DefaultFactors(), zaptest.NewLogger(t))
	in := []models.ScoredTask{{Task: task("high"), Score: 2}, {Task: task("low"), Score: math.Inf(1)}}

	_, err := p.TryAdjust(context.Background(), owner, in, clock(12))
	assert.ErrorIs(t, err, ErrAdjust)
	assert.Equal(t, in, p.Adjust(context.Background(), owner, in, clock(12)))
}

func TestAdjust_EmptyInputSkipsFeedbackQuery(t *testing.T) {
	fb := &stubFeedback{}
	p := New(fb, DefaultFactors(), zaptest.NewLogger(t))

	out := p.Adjust(context.Background(), owner, nil, clock(12))
	assert.Empty(t, out)
	assert.Equal(t, 0, fb.calls)
}

func TestAdjust_DoesNotMutateInput(t *testing.T) {
	p := New(nil, DefaultFactors(), zaptest.NewLogger(t))
	in := []models.ScoredTask{{Task: task("high"), Score: 2}}

	out := p.Adjust(context.Background(), owner, in, clock(8))
	assert.InDelta(t, 2.4, out[0].Score, 1e-9)
	assert.Equal(t, 2.0, in[0].Score)
}
