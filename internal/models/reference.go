package models

// SymbolPair is one tradable pair from the shared master list. The table
// mirrors upstream exactly: rows appear and disappear with the listing.
type SymbolPair struct {
	Pair string `gorm:"primaryKey;type:varchar(30)"`
}

func (SymbolPair) TableName() string {
	return "symbols"
}

// Currency is one entry of the shared currency master list.
type Currency struct {
	Code string `gorm:"primaryKey;type:varchar(10)"`
	Name string `gorm:"type:varchar(100)"`
}

func (Currency) TableName() string {
	return "currencies"
}
