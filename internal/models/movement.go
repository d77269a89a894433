package models

import (
	"github.com/shopspring/decimal"
)

// Movement is one deposit or withdrawal row.
type Movement struct {
	ID                 int64           `gorm:"primaryKey;autoIncrement:false"`
	AccountID          uint64          `gorm:"primaryKey;autoIncrement:false;index"`
	Currency           string          `gorm:"type:varchar(10);not null;index"`
	CurrencyName       string          `gorm:"type:varchar(30)"`
	MtsStarted         int64           `gorm:"not null"`
	MtsUpdated         int64           `gorm:"not null;index"`
	Status             string          `gorm:"type:varchar(50)"`
	Amount             decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Fees               decimal.Decimal `gorm:"type:numeric(30,10)"`
	DestinationAddress *string         `gorm:"type:text"`
	TransactionID      *string         `gorm:"type:text"`
}

func (Movement) TableName() string {
	return "movements"
}

func (m Movement) ItemDate() int64 { return m.MtsUpdated }
