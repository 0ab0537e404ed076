package features

import (
	"math"
	"time"
	"unicode/utf8"

	"task-prioritizer/backend/internal/models"
)

// VectorLength is the fixed number of features produced by Encode.
const VectorLength = 8

// Feature positions within a Vector.
const (
	UrgencyLevel = iota
	ImpactLevel
	EnergyLevel
	DurationMinutes
	DescriptionLength
	HasUrgentKeyword
	HasBugKeyword
	DeadlineWithinOneDay
)

var Names = [VectorLength]string{
	"urgency_level",
	"impact_level",
	"energy_level",
	"duration_minutes",
	"description_length",
	"has_urgent_keyword",
	"has_bug_keyword",
	"deadline_within_1_day",
}

type Vector [VectorLength]float64

type Codec struct {
	keywords Keywords
}

func NewCodec(keywords Keywords) *Codec {
	return &Codec{keywords: keywords.Merge(DefaultKeywords())}
}

// Encode maps a task onto its feature vector as seen at now.
func (c *Codec) Encode(task models.Task, now time.Time) Vector {
	var v Vector
	v[UrgencyLevel] = Encoding.Lookup(Normalize(task.Urgency))
	v[ImpactLevel] = Encoding.Lookup(Normalize(task.Impact))
	v[EnergyLevel] = Encoding.Lookup(Normalize(task.EnergyRequired))
	v[DurationMinutes] = float64(task.Duration())
	v[DescriptionLength] = float64(utf8.RuneCountInString(task.Description))
	if ContainsAny(task.Title, c.keywords.Urgent) || ContainsAny(task.Description, c.keywords.Urgent) {
		v[HasUrgentKeyword] = 1
	}
	if ContainsAny(task.Title, c.keywords.Bug) {
		v[HasBugKeyword] = 1
	}
	if days, ok := DaysUntil(task.Deadline, now); ok && days <= 1 {
		v[DeadlineWithinOneDay] = 1
	}
	return v
}

// EncodeAll encodes tasks in order into a matrix suitable for batch inference.
func (c *Codec) EncodeAll(tasks []models.Task, now time.Time) [][]float64 {
	rows := make([][]float64, len(tasks))
	for i, task := range tasks {
		v := c.Encode(task, now)
		rows[i] = v[:]
	}
	return rows
}

// DaysUntil returns the whole-day distance from now to deadline, rounded
// toward negative infinity, so a deadline one hour ago is day -1. The
// second result is false when there is no deadline.
func DaysUntil(deadline *time.Time, now time.Time) (int, bool) {
	if deadline == nil {
		return 0, false
	}
	days := math.Floor(deadline.Sub(now).Hours() / 24)
	return int(days), true
}
