package models

import (
	"github.com/shopspring/decimal"
)

// PositionHistory is one snapshot of a closed position. The same position
// id recurs across snapshots, so mts_update joins the key.
type PositionHistory struct {
	ID        int64           `gorm:"primaryKey;autoIncrement:false"`
	AccountID uint64          `gorm:"primaryKey;autoIncrement:false;index"`
	MtsUpdate int64           `gorm:"primaryKey;autoIncrement:false"`
	Symbol    string          `gorm:"type:varchar(30);not null;index"`
	Status    string          `gorm:"type:varchar(30)"`
	Amount    decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	BasePrice decimal.Decimal `gorm:"type:numeric(20,10)"`
	MtsCreate int64           `gorm:"not null"`
}

func (PositionHistory) TableName() string {
	return "positions_history"
}

func (p PositionHistory) ItemDate() int64 { return p.MtsUpdate }
