package models

import (
	"github.com/shopspring/decimal"
)

// Order is one historical order row (closed or cancelled upstream).
type Order struct {
	ID         int64           `gorm:"primaryKey;autoIncrement:false"`
	AccountID  uint64          `gorm:"primaryKey;autoIncrement:false;index"`
	GroupID    *int64          `gorm:"column:gid"`
	ClientID   *int64          `gorm:"column:cid"`
	Symbol     string          `gorm:"type:varchar(30);not null;index"`
	MtsCreate  int64           `gorm:"not null"`
	MtsUpdate  int64           `gorm:"not null;index"`
	Amount     decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	AmountOrig decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Type       string          `gorm:"type:varchar(30)"`
	Status     string          `gorm:"type:varchar(50)"`
	Price      decimal.Decimal `gorm:"type:numeric(20,10)"`
	PriceAvg   decimal.Decimal `gorm:"type:numeric(20,10)"`
}

func (Order) TableName() string {
	return "orders"
}

func (o Order) ItemDate() int64 { return o.MtsUpdate }
