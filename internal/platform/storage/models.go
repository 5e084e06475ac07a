package storage

import (
	"time"

	"gorm.io/datatypes"
)

// FlagRecord is a small key/value row for interaction flags and markers.
type FlagRecord struct {
	Key       string `gorm:"primaryKey;size:190"`
	Value     string
	UpdatedAt time.Time
}

// FeedbackItem is a queued feedback submission awaiting retry.
type FeedbackItem struct {
	ID       uint           `gorm:"primaryKey"`
	DocID    string         `gorm:"index;size:64"`
	Payload  datatypes.JSON // {doc_id, feedback, summary, timestamp}
	QueuedAt time.Time
}
