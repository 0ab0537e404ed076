package schedule

import (
	"fmt"
	"time"

	"task-prioritizer/backend/internal/features"
	"task-prioritizer/backend/internal/logger"
	"task-prioritizer/backend/internal/models"

	"go.uber.org/zap"
)

// Time-of-day labels.
const (
	SlotEarlyMorning = "08:00"
	SlotDefault      = "10:00"
	SlotMidday       = "12:00"
	SlotAfternoon    = "14:00"
	SlotLate         = "16:00"
)

type Recommender struct {
	critical []string
	log      *zap.Logger
}

func NewRecommender(keywords features.Keywords, log *zap.Logger) *Recommender {
	return &Recommender{
		critical: keywords.Merge(features.DefaultKeywords()).ScheduleCritical,
		log:      logger.OrNop(log),
	}
}

// SuggestSlot picks a start time for task. Demanding or critical work goes
// first thing, medium-energy work around midday, the rest late afternoon.
// A nil task, or any failure, yields SlotDefault.
func (r *Recommender) SuggestSlot(task *models.Task, now time.Time) (slot string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warn("slot suggestion failed", zap.Error(fmt.Errorf("panic: %v", rec)))
			slot = SlotDefault
		}
	}()

	if task == nil {
		return SlotDefault
	}

	energy := features.Normalize(task.EnergyRequired)
	hour := now.Hour()

	switch {
	case energy == features.High || features.ContainsAny(task.Title, r.critical):
		return SlotEarlyMorning
	case energy == features.Medium && hour >= 10 && hour < 15:
		return SlotMidday
	case energy == features.Medium:
		return SlotAfternoon
	default:
		return SlotLate
	}
}
