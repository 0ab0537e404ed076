package features

import "strings"

// Keywords holds the substring sets used by the codec, the rule engine and
// the schedule recommender. Matching is case-insensitive.
type Keywords struct {
	Urgent           []string `yaml:"urgent"`
	Bug              []string `yaml:"bug"`
	RuleTitle        []string `yaml:"rule_title"`
	RuleDescription  []string `yaml:"rule_description"`
	ScheduleCritical []string `yaml:"schedule_critical"`
}

func DefaultKeywords() Keywords {
	return Keywords{
		Urgent:           []string{"urgent", "crític", "critical"},
		Bug:              []string{"bug", "fix"},
		RuleTitle:        []string{"bug", "fix", "crític", "critical", "urgent", "hotfix", "error", "caído", "outage", "seguridad", "security"},
		RuleDescription:  []string{"urgent", "important", "critical", "importante", "crític"},
		ScheduleCritical: []string{"bug", "fix", "critical", "error", "caído", "seguridad"},
	}
}

// Merge returns k with every empty set replaced by the one from fallback.
func (k Keywords) Merge(fallback Keywords) Keywords {
	pick := func(a, b []string) []string {
		if len(a) == 0 {
			return b
		}
		return a
	}
	return Keywords{
		Urgent:           pick(k.Urgent, fallback.Urgent),
		Bug:              pick(k.Bug, fallback.Bug),
		RuleTitle:        pick(k.RuleTitle, fallback.RuleTitle),
		RuleDescription:  pick(k.RuleDescription, fallback.RuleDescription),
		ScheduleCritical: pick(k.ScheduleCritical, fallback.ScheduleCritical),
	}
}

// ContainsAny reports whether text contains any of the keywords,
// ignoring case.
func ContainsAny(text string, keywords []string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
