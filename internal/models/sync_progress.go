package models

import (
	"time"
)

// ProgressNotStarted is the literal a poller sees before any run. Any
// non-numeric value means "not currently progressing".
const ProgressNotStarted = "not started yet"

// SyncProgress is a single-row table holding the last reported progress
// value: an integer 0-100, the not-started sentinel, "unauthenticated",
// "interrupted", or a stringified error.
type SyncProgress struct {
	Key       string    `gorm:"primaryKey;type:varchar(20)"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (SyncProgress) TableName() string {
	return "sync_progress"
}
