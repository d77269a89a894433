package models

import (
	"time"
)

// Account is one upstream API credential pair. Credential lifecycle is
// owned by the authentication subsystem; the sync core only reads rows.
type Account struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Label     string    `gorm:"type:varchar(100);not null"`
	APIKey    string    `gorm:"type:text;not null;uniqueIndex"`
	APISecret string    `gorm:"type:text;not null"`
	Active    bool      `gorm:"not null;default:true;index"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (Account) TableName() string {
	return "accounts"
}

// HasCredentials reports whether the row can sign upstream calls.
func (a Account) HasCredentials() bool {
	return a.APIKey != "" && a.APISecret != ""
}
