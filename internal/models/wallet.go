package models

import (
	"github.com/shopspring/decimal"
)

// WalletBalance is one end-of-day wallet snapshot row. The upstream has no
// cursor for these; novelty is decided by the (account, type, currency,
// mts) key during the backward day walk.
type WalletBalance struct {
	ID        uint64          `gorm:"primaryKey;autoIncrement"`
	AccountID uint64          `gorm:"not null;uniqueIndex:uq_wallets_key,priority:1"`
	Type      string          `gorm:"type:varchar(20);not null;uniqueIndex:uq_wallets_key,priority:2"`
	Currency  string          `gorm:"type:varchar(10);not null;uniqueIndex:uq_wallets_key,priority:3"`
	Mts       int64           `gorm:"not null;uniqueIndex:uq_wallets_key,priority:4;index"`
	Balance   decimal.Decimal `gorm:"type:numeric(30,10);not null"`
}

func (WalletBalance) TableName() string {
	return "wallets"
}

func (w WalletBalance) ItemDate() int64 { return w.Mts }
