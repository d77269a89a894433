package db

import (
	"tradesync/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Account{},
		&models.Trade{},
		&models.Order{},
		&models.Ledger{},
		&models.Movement{},
		&models.FundingOffer{},
		&models.FundingLoan{},
		&models.FundingCredit{},
		&models.PositionHistory{},
		&models.PublicTrade{},
		&models.TickerHistory{},
		&models.SymbolPair{},
		&models.Currency{},
		&models.WalletBalance{},
		&models.SyncCheckpoint{},
		&models.SyncJob{},
		&models.SyncProgress{},
	)
}
