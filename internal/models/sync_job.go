package models

import (
	"time"
)

// Sync job lifecycle. NEW and ERROR rows are eligible for pickup; LOCKED
// marks the one row being processed; FINISHED rows are bulk-deleted after
// a clean drain.
const (
	JobStateNew      = "NEW"
	JobStateLocked   = "LOCKED"
	JobStateFinished = "FINISHED"
	JobStateError    = "ERROR"
)

// JobCollectionAll is the catch-all job name covering every allowed
// collection. At most one may be pending.
const JobCollectionAll = "ALL"

// SyncJob is one durable queue row. Insertion order (id) is processing
// order.
type SyncJob struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	PublicID   string    `gorm:"type:uuid;not null;uniqueIndex"`
	Collection string    `gorm:"type:varchar(40);not null;index"`
	State      string    `gorm:"type:varchar(10);not null;index"`
	LastError  *string   `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (SyncJob) TableName() string {
	return "sync_jobs"
}
