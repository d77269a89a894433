package models

import (
	"github.com/shopspring/decimal"
)

// Ledger is one balance-affecting ledger entry.
type Ledger struct {
	ID          int64           `gorm:"primaryKey;autoIncrement:false"`
	AccountID   uint64          `gorm:"primaryKey;autoIncrement:false;index"`
	Currency    string          `gorm:"type:varchar(10);not null;index"`
	Mts         int64           `gorm:"not null;index"`
	Amount      decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Balance     decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Description string          `gorm:"type:text"`
}

func (Ledger) TableName() string {
	return "ledgers"
}

func (l Ledger) ItemDate() int64 { return l.Mts }
