package models

import (
	"github.com/shopspring/decimal"
)

// FundingOffer is one historical funding offer.
type FundingOffer struct {
	ID         int64           `gorm:"primaryKey;autoIncrement:false"`
	AccountID  uint64          `gorm:"primaryKey;autoIncrement:false;index"`
	Symbol     string          `gorm:"type:varchar(30);not null;index"`
	MtsCreate  int64           `gorm:"not null"`
	MtsUpdate  int64           `gorm:"not null;index"`
	Amount     decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	AmountOrig decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Rate       decimal.Decimal `gorm:"type:numeric(20,10)"`
	Period     int             `gorm:"not null;default:0"`
	Status     string          `gorm:"type:varchar(50)"`
}

func (FundingOffer) TableName() string {
	return "funding_offers"
}

func (f FundingOffer) ItemDate() int64 { return f.MtsUpdate }

// FundingLoan is one historical funding loan (funds provided).
type FundingLoan struct {
	ID        int64           `gorm:"primaryKey;autoIncrement:false"`
	AccountID uint64          `gorm:"primaryKey;autoIncrement:false;index"`
	Symbol    string          `gorm:"type:varchar(30);not null;index"`
	Side      int             `gorm:"not null;default:0"`
	MtsCreate int64           `gorm:"not null"`
	MtsUpdate int64           `gorm:"not null;index"`
	Amount    decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Rate      decimal.Decimal `gorm:"type:numeric(20,10)"`
	Period    int             `gorm:"not null;default:0"`
	Status    string          `gorm:"type:varchar(50)"`
}

func (FundingLoan) TableName() string {
	return "funding_loans"
}

func (f FundingLoan) ItemDate() int64 { return f.MtsUpdate }

// FundingCredit is one historical funding credit (funds used in a
// position), distinguished from a loan by the position pair.
type FundingCredit struct {
	ID           int64           `gorm:"primaryKey;autoIncrement:false"`
	AccountID    uint64          `gorm:"primaryKey;autoIncrement:false;index"`
	Symbol       string          `gorm:"type:varchar(30);not null;index"`
	Side         int             `gorm:"not null;default:0"`
	MtsCreate    int64           `gorm:"not null"`
	MtsUpdate    int64           `gorm:"not null;index"`
	Amount       decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	Rate         decimal.Decimal `gorm:"type:numeric(20,10)"`
	Period       int             `gorm:"not null;default:0"`
	Status       string          `gorm:"type:varchar(50)"`
	PositionPair string          `gorm:"type:varchar(30)"`
}

func (FundingCredit) TableName() string {
	return "funding_credits"
}

func (f FundingCredit) ItemDate() int64 { return f.MtsUpdate }
