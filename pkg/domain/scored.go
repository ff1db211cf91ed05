package domain

// ScoredArticle is an article with its ranking score and the
// human-readable reasons behind it. It exists only for the duration
// of a ranking call and is never persisted.
type ScoredArticle struct {
	Article Article
	Score   float64
	Reasons []string
}
