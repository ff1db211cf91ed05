package ranking

import "fmt"

// Sort is the closed set of ranking strategies. Dispatch is an exhaustive
// switch per variant rather than string branching.
type Sort int

// ranking strategies
const (
	SortPersonal Sort = iota
	SortRecency
	SortPopularity
	SortTrending
)

// ParseSort converts the wire-level sort name into a Sort variant
func ParseSort(s string) (Sort, error) {
	switch s {
	case "", "personal":
		return SortPersonal, nil
	case "recency":
		return SortRecency, nil
	case "popularity":
		return SortPopularity, nil
	case "trending":
		return SortTrending, nil
	default:
		return SortPersonal, fmt.Errorf("unknown sort mode %q", s)
	}
}

// String returns the wire-level name of the sort mode
func (s Sort) String() string {
	switch s {
	case SortPersonal:
		return "personal"
	case SortRecency:
		return "recency"
	case SortPopularity:
		return "popularity"
	case SortTrending:
		return "trending"
	}
	return "unknown"
}

// Options control a single ranking call
type Options struct {
	Sort             Sort
	DiversityEnabled bool
	ExplorationRate  float64 // [0,1], probability of applying the exploration pass
}
