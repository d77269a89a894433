package models

import (
	"github.com/shopspring/decimal"
)

// Trade is one executed private trade. Rows are append-only; the upstream
// trade id is unique per account.
type Trade struct {
	ID          int64           `gorm:"primaryKey;autoIncrement:false"`
	AccountID   uint64          `gorm:"primaryKey;autoIncrement:false;index"`
	Symbol      string          `gorm:"type:varchar(30);not null;index"`
	MtsCreate   int64           `gorm:"not null;index"`
	OrderID     int64           `gorm:"not null"`
	ExecAmount  decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	ExecPrice   decimal.Decimal `gorm:"type:numeric(20,10);not null"`
	OrderType   string          `gorm:"type:varchar(30)"`
	OrderPrice  decimal.Decimal `gorm:"type:numeric(20,10)"`
	Maker       int             `gorm:"not null;default:0"`
	Fee         decimal.Decimal `gorm:"type:numeric(30,10)"`
	FeeCurrency string          `gorm:"type:varchar(10)"`
}

func (Trade) TableName() string {
	return "trades"
}

func (t Trade) ItemDate() int64 { return t.MtsCreate }
