package models

import (
	"github.com/shopspring/decimal"
)

// PublicTrade is one shared market trade; ids are unique per symbol.
type PublicTrade struct {
	ID     int64           `gorm:"primaryKey;autoIncrement:false"`
	Symbol string          `gorm:"primaryKey;type:varchar(30)"`
	Mts    int64           `gorm:"not null;index"`
	Amount decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Price  decimal.Decimal `gorm:"type:numeric(20,10);not null"`
}

func (PublicTrade) TableName() string {
	return "public_trades"
}

func (t PublicTrade) ItemDate() int64 { return t.Mts }

// TickerHistory is one best-bid/ask sample for a symbol.
type TickerHistory struct {
	Symbol    string          `gorm:"primaryKey;type:varchar(30)"`
	MtsUpdate int64           `gorm:"primaryKey;autoIncrement:false"`
	Bid       decimal.Decimal `gorm:"type:numeric(20,10)"`
	Ask       decimal.Decimal `gorm:"type:numeric(20,10)"`
}

func (TickerHistory) TableName() string {
	return "tickers_history"
}

func (t TickerHistory) ItemDate() int64 { return t.MtsUpdate }
