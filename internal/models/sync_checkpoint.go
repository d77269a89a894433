package models

import (
	"time"

	"gorm.io/datatypes"
)

// SyncCheckpoint marks the newest already-synced point for one
// (collection, account) or (collection, symbol) pair. AccountID 0 and an
// empty Symbol mean "not applicable", keeping one table for both shapes.
// BaseStartFrom/BaseStartTo describe a pending backfill window for public
// collections whose locally stored history starts after the point upstream
// can still serve.
type SyncCheckpoint struct {
	ID            uint64         `gorm:"primaryKey;autoIncrement"`
	Collection    string         `gorm:"type:varchar(40);not null;uniqueIndex:uq_checkpoint_scope,priority:1"`
	AccountID     uint64         `gorm:"not null;default:0;uniqueIndex:uq_checkpoint_scope,priority:2"`
	Symbol        string         `gorm:"type:varchar(30);not null;default:'';uniqueIndex:uq_checkpoint_scope,priority:3"`
	Cursor        int64          `gorm:"not null;default:0"`
	BaseStartFrom int64          `gorm:"not null;default:0"`
	BaseStartTo   int64          `gorm:"not null;default:0"`
	LastSuccessAt *time.Time     `gorm:"type:timestamptz"`
	LastAttemptAt *time.Time     `gorm:"type:timestamptz"`
	LastError     *string        `gorm:"type:text"`
	StatsJSON     datatypes.JSON `gorm:"type:jsonb"`
}

func (SyncCheckpoint) TableName() string {
	return "sync_checkpoints"
}
