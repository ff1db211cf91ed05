package domain

import "time"

// ParsedFeed is the result of fetching and parsing a syndication feed
type ParsedFeed struct {
	Title       string
	Description string
	Link        string
	Language    string
	Items       []ParsedItem
}

// ParsedItem is a single validated item from a syndication feed,
// sanitized and ready for the processing pipeline
type ParsedItem struct {
	Title     string
	Link      string
	Summary   string
	Content   string
	Language  string
	Published time.Time
}
