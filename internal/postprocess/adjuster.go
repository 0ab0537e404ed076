// Package postprocess applies context-dependent multipliers to raw task
// scores: time of day, energy, recent negative feedback and deadline
// proximity.
package postprocess

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"task-prioritizer/backend/internal/features"
	"task-prioritizer/backend/internal/logger"
	"task-prioritizer/backend/internal/models"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

var ErrAdjust = errors.New("failed to adjust scores")

// NegativeFeedback lists tasks an owner flagged as not useful since a point
// in time.
type NegativeFeedback interface {
	NegativeTaskIDsSince(ctx context.Context, ownerID uuid.UUID, since time.Time) (map[uuid.UUID]struct{}, error)
}

type Factors struct {
	EveningFromHour   int
	EveningHighEnergy float64
	EveningLowEnergy  float64

	MorningFromHour   int
	MorningToHour     int
	MorningHighEnergy float64

	LateFromHour    int
	LongTaskMinutes int
	LongTaskLate    float64

	NegativeFeedback float64
	FeedbackWindow   time.Duration

	Deadline features.DeadlineFactors
	Floor    float64
}

func DefaultFactors() Factors {
	return Factors{
		EveningFromHour:   18,
		EveningHighEnergy: 0.7,
		EveningLowEnergy:  1.3,
		MorningFromHour:   7,
		MorningToHour:     10,
		MorningHighEnergy: 1.2,
		LateFromHour:      17,
		LongTaskMinutes:   120,
		LongTaskLate:      0.8,
		NegativeFeedback:  1.3,
		FeedbackWindow:    24 * time.Hour,
		Deadline:          features.DeadlineFactors{Overdue: 1.5, Today: 1.4, Tomorrow: 1.2},
		Floor:             0.5,
	}
}

type PostProcessor struct {
	feedback NegativeFeedback
	factors  Factors
	log      *zap.Logger
}

// New builds a post-processor. A nil feedback source disables the negative
// feedback multiplier.
func New(feedback NegativeFeedback, factors Factors, log *zap.Logger) *PostProcessor {
	return &PostProcessor{
		feedback: feedback,
		factors:  factors,
		log:      logger.OrNop(log),
	}
}

// Adjust returns a copy of scored with every multiplier applied and each
// score clamped to the floor. If adjusting fails, the input scores come back
// unchanged. Hours are read in now's location.
func (p *PostProcessor) Adjust(ctx context.Context, ownerID uuid.UUID, scored []models.ScoredTask, now time.Time) []models.ScoredTask {
	adjusted, err := p.TryAdjust(ctx, ownerID, scored, now)
	if err != nil {
		p.log.Warn("score adjustment skipped", logger.Owner(ownerID), zap.Error(err))
		out := make([]models.ScoredTask, len(scored))
		copy(out, scored)
		return out
	}
	return adjusted
}

// TryAdjust is Adjust without the pass-through fallback.
func (p *PostProcessor) TryAdjust(ctx context.Context, ownerID uuid.UUID, scored []models.ScoredTask, now time.Time) (out []models.ScoredTask, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: panic: %v", ErrAdjust, r)
		}
	}()

	if len(scored) == 0 {
		return []models.ScoredTask{}, nil
	}

	var negative map[uuid.UUID]struct{}
	if p.feedback != nil {
		negative, err = p.feedback.NegativeTaskIDsSince(ctx, ownerID, now.Add(-p.factors.FeedbackWindow))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAdjust, err)
		}
	}

	out = make([]models.ScoredTask, len(scored))
	for i, st := range scored {
		if math.IsNaN(st.Score) || math.IsInf(st.Score, 0) {
			return nil, fmt.Errorf("%w: task %s has non-finite score", ErrAdjust, st.Task.ID)
		}
		_, flagged := negative[st.Task.ID]
		out[i] = models.ScoredTask{Task: st.Task, Score: p.score(st.Task, st.Score, now, flagged)}
	}
	return out, nil
}

func (p *PostProcessor) score(task models.Task, score float64, now time.Time, flagged bool) float64 {
	f := p.factors
	hour := now.Hour()
	energy := features.Normalize(task.EnergyRequired)

	switch {
	case hour >= f.EveningFromHour:
		if energy == features.High {
			score *= f.EveningHighEnergy
		} else if energy == features.Low {
			score *= f.EveningLowEnergy
		}
	case hour >= f.MorningFromHour && hour <= f.MorningToHour:
		if energy == features.High {
			score *= f.MorningHighEnergy
		}
	}

	if hour >= f.LateFromHour && task.Duration() > f.LongTaskMinutes {
		score *= f.LongTaskLate
	}

	if flagged {
		score *= f.NegativeFeedback
	}

	score *= f.Deadline.Factor(features.DaysUntil(task.Deadline, now))

	return math.Max(score, f.Floor)
}
