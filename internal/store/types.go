package store

import (
	"time"

	"newsroom/internal/media"
)

// Status is the lifecycle state of a pending article.
//
// scheduled -> publishing -> (row removed on success)
// scheduled -> error (manual republish required; never retried automatically)
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusPublishing Status = "publishing"
	StatusError      Status = "error"
)

// Draft is the full denormalized article payload serialized into the
// pending row. It only needs to round-trip; nothing queries its fields in
// SQL.
type Draft struct {
	Title       string      `json:"title"`
	Body        string      `json:"body"`
	CategoryIDs []int64     `json:"category_ids"`
	VideoURL    string      `json:"video_url,omitempty"`
	MediaFiles  []media.Ref `json:"media_files,omitempty"`
	AuthorID    int64       `json:"author_id"`
}

// PendingArticle is one scheduled-but-unpublished article row.
type PendingArticle struct {
	ID            int64
	Title         string
	ScheduledAt   time.Time
	Payload       Draft
	Status        Status
	OwnerID       int64
	ErrorMessage  string
	LastAttemptAt time.Time
	CreatedAt     time.Time
}

// Article is a live, published article.
type Article struct {
	ID          int64
	Title       string
	Body        string
	OwnerID     int64
	PublishedAt time.Time
	CreatedAt   time.Time
}

// MediaRecord is a media row attached to a published article.
type MediaRecord struct {
	ID   int64
	Kind string
	URL  string
}
