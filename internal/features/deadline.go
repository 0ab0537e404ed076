package features

// DeadlineFactors maps a day delta onto a score multiplier. Only the first
// matching band applies and a zero factor leaves the score unchanged.
type DeadlineFactors struct {
	Overdue  float64 // days < 0
	Today    float64 // days == 0
	Tomorrow float64 // days == 1
	Soon     float64 // days 2 and 3
}

func (f DeadlineFactors) Factor(days int, hasDeadline bool) float64 {
	if !hasDeadline {
		return 1.0
	}
	var factor float64
	switch {
	case days < 0:
		factor = f.Overdue
	case days == 0:
		factor = f.Today
	case days == 1:
		factor = f.Tomorrow
	case days <= 3:
		factor = f.Soon
	}
	if factor == 0 {
		return 1.0
	}
	return factor
}
