package domain

import "time"

// Preference is a normalized preference score with a confidence weight.
// Score is in [0,1], Weight in [0.1,1] scaled by the amount of evidence.
type Preference struct {
	Score  float64
	Weight float64
}

// UserProfile is derived from the trailing interaction history and the
// user's subscriptions. It is built on demand and cached; it is not a
// primary persisted record.
type UserProfile struct {
	UserID         int64
	Topics         map[string]Preference
	Sources        map[string]Preference
	Language       string
	AvgReadTimeSec float64
	ActiveHours    map[int]bool
	BuiltAt        time.Time
}

// ActiveAt reports whether the given hour of day is in the user's active set
func (p *UserProfile) ActiveAt(hour int) bool {
	return p.ActiveHours[hour]
}
