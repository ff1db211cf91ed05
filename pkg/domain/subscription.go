package domain

import "time"

// Combinator joins subscription keywords
type Combinator string

// keyword combinators
const (
	CombinatorAnd Combinator = "and"
	CombinatorOr  Combinator = "or"
)

// Subscription is a user-owned filter with an explicit priority.
// Priority is in [1,10] and feeds the preference profile builder.
// QuietFrom/QuietTo are hours of day; both nil means no quiet window.
type Subscription struct {
	ID         int64
	UserID     int64
	Keywords   []string
	Combinator Combinator
	Topics     []string
	Sources    []string
	Priority   int
	DailyCap   int
	QuietFrom  *int
	QuietTo    *int
	CreatedAt  time.Time
}
