package features

import "strings"

// Level is a normalized low/medium/high rating.
type Level string

const (
	Low    Level = "low"
	Medium Level = "medium"
	High   Level = "high"
)

// LevelTable maps a normalized level onto a number. Tables are values and
// are never mutated after construction.
type LevelTable map[Level]float64

// Lookup returns the value for level, or the medium entry when level is
// missing from the table.
func (t LevelTable) Lookup(level Level) float64 {
	if v, ok := t[level]; ok {
		return v
	}
	return t[Medium]
}

// Encoding maps levels to 0/1/2 feature values.
var Encoding = LevelTable{Low: 0, Medium: 1, High: 2}

// Ordinal maps levels to the classifier labels 1/2/3.
var Ordinal = LevelTable{Low: 1, Medium: 2, High: 3}

var (
	highSynonyms = map[string]struct{}{
		"high": {}, "critical": {}, "crític": {}, "urgent": {}, "crucial": {},
	}
	lowSynonyms = map[string]struct{}{
		"low": {}, "baja": {}, "minimum": {},
	}
)

// Normalize folds free-form level input onto Low, Medium or High.
// Empty and unrecognized values become Medium.
func Normalize(value string) Level {
	v := strings.ToLower(strings.TrimSpace(value))
	if _, ok := highSynonyms[v]; ok {
		return High
	}
	if _, ok := lowSynonyms[v]; ok {
		return Low
	}
	return Medium
}

// OrdinalLabel converts a priority value into the 1/2/3 training label.
func OrdinalLabel(value string) int {
	return int(Ordinal.Lookup(Normalize(value)))
}
