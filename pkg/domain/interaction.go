package domain

import "time"

// InteractionKind represents the type of a user interaction with an article
type InteractionKind string

// supported interaction kinds, anything else is treated as unknown
const (
	InteractionClick            InteractionKind = "click"
	InteractionLike             InteractionKind = "like"
	InteractionDislike          InteractionKind = "dislike"
	InteractionRead             InteractionKind = "read"
	InteractionShare            InteractionKind = "share"
	InteractionNotificationOpen InteractionKind = "notification_open"
)

// Interaction is a single entry of the append-only interaction log
type Interaction struct {
	ID          int64
	UserID      int64
	ArticleID   int64
	Kind        InteractionKind
	ReadTimeSec int
	CreatedAt   time.Time
}

// InteractionContext is an interaction joined with the context of the
// article it refers to, as returned by the interaction log reader
type InteractionContext struct {
	Interaction
	Topics   []string
	Source   string
	Language string
}
