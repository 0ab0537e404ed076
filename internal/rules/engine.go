// Package rules scores tasks without a trained model.
package rules

import (
	"time"

	"task-prioritizer/backend/internal/features"
	"task-prioritizer/backend/internal/models"
)

// Tables holds every multiplier the engine applies.
type Tables struct {
	Base             features.LevelTable
	Urgency          features.LevelTable
	Impact           features.LevelTable
	TitleBoost       float64
	DescriptionBoost float64
	Deadline         features.DeadlineFactors
}

func DefaultTables() Tables {
	return Tables{
		Base:             features.LevelTable{features.High: 3.0, features.Medium: 2.0, features.Low: 1.0},
		Urgency:          features.LevelTable{features.High: 1.4, features.Medium: 1.1, features.Low: 1.0},
		Impact:           features.LevelTable{features.High: 1.3, features.Medium: 1.1, features.Low: 1.0},
		TitleBoost:       1.8,
		DescriptionBoost: 1.5,
		Deadline:         features.DeadlineFactors{Overdue: 2.5, Today: 2.0, Tomorrow: 1.7, Soon: 1.3},
	}
}

type Engine struct {
	tables   Tables
	keywords features.Keywords
}

func NewEngine(tables Tables, keywords features.Keywords) *Engine {
	return &Engine{
		tables:   tables,
		keywords: keywords.Merge(features.DefaultKeywords()),
	}
}

// Score returns raw scores in input order.
func (e *Engine) Score(tasks []models.Task, now time.Time) []models.ScoredTask {
	scored := make([]models.ScoredTask, len(tasks))
	for i, task := range tasks {
		scored[i] = models.ScoredTask{Task: task, Score: e.ScoreTask(task, now)}
	}
	return scored
}

func (e *Engine) ScoreTask(task models.Task, now time.Time) float64 {
	t := e.tables
	score := t.Base.Lookup(features.Normalize(task.PriorityLevel))

	switch {
	case features.ContainsAny(task.Title, e.keywords.RuleTitle):
		score *= t.TitleBoost
	case features.ContainsAny(task.Description, e.keywords.RuleDescription):
		score *= t.DescriptionBoost
	}

	score *= t.Urgency.Lookup(features.Normalize(task.Urgency))
	score *= t.Impact.Lookup(features.Normalize(task.Impact))
	score *= t.Deadline.Factor(features.DaysUntil(task.Deadline, now))

	return score
}
