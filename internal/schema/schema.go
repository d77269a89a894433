// Package schema declares the per-collection metadata the sync core
// dispatches on: storage model, cursor field, page ceiling, visibility and
// reconciliation kind.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"tradesync/internal/models"
)

var (
	ErrUnknownCollection    = errors.New("unknown collection")
	ErrCollectionNotAllowed = errors.New("collection not allowed")
)

type Kind int

const (
	// KindAppendOnly collections grow forward from a checkpoint and rows
	// are never mutated.
	KindAppendOnly Kind = iota
	// KindReplaceSet collections are scalar master lists reconciled
	// in full on every run.
	KindReplaceSet
	// KindReplaceObjectSet is like KindReplaceSet for object rows keyed
	// by one field.
	KindReplaceObjectSet
	// KindDayWalk collections have no natural cursor and are synced by
	// walking backward one UTC day at a time.
	KindDayWalk
)

type Visibility int

const (
	Private Visibility = iota
	Public
)

// Collection describes one synced collection. Model is a pointer
// prototype the storage layer hands to gorm.
type Collection struct {
	Name         string
	Kind         Kind
	Visibility   Visibility
	DateColumn   string
	SymbolColumn string
	KeyColumns   []string
	PageLimit    int
	// ConfName selects the per-symbol "track from" configuration block
	// for public collections with configurable start points.
	ConfName string
	Model    any
}

func (c Collection) IsPublic() bool {
	return c.Visibility == Public
}

// Configurable reports whether the collection syncs per configured symbol.
func (c Collection) Configurable() bool {
	return c.ConfName != ""
}

// Registry holds the static process-wide collection set in declaration
// order.
type Registry struct {
	byName map[string]Collection
	order  []string
}

func NewRegistry() *Registry {
	r := &Registry{byName: map[string]Collection{}}
	for _, c := range []Collection{
		{Name: "trades", Kind: KindAppendOnly, Visibility: Private, DateColumn: "mts_create", SymbolColumn: "symbol", KeyColumns: []string{"id", "account_id"}, PageLimit: 1000, Model: &models.Trade{}},
		{Name: "orders", Kind: KindAppendOnly, Visibility: Private, DateColumn: "mts_update", SymbolColumn: "symbol", KeyColumns: []string{"id", "account_id"}, PageLimit: 500, Model: &models.Order{}},
		{Name: "ledgers", Kind: KindAppendOnly, Visibility: Private, DateColumn: "mts", SymbolColumn: "currency", KeyColumns: []string{"id", "account_id"}, PageLimit: 500, Model: &models.Ledger{}},
		{Name: "movements", Kind: KindAppendOnly, Visibility: Private, DateColumn: "mts_updated", SymbolColumn: "currency", KeyColumns: []string{"id", "account_id"}, PageLimit: 250, Model: &models.Movement{}},
		{Name: "fundingOfferHistory", Kind: KindAppendOnly, Visibility: Private, DateColumn: "mts_update", SymbolColumn: "symbol", KeyColumns: []string{"id", "account_id"}, PageLimit: 500, Model: &models.FundingOffer{}},
		{Name: "fundingLoanHistory", Kind: KindAppendOnly, Visibility: Private, DateColumn: "mts_update", SymbolColumn: "symbol", KeyColumns: []string{"id", "account_id"}, PageLimit: 500, Model: &models.FundingLoan{}},
		{Name: "fundingCreditHistory", Kind: KindAppendOnly, Visibility: Private, DateColumn: "mts_update", SymbolColumn: "symbol", KeyColumns: []string{"id", "account_id"}, PageLimit: 500, Model: &models.FundingCredit{}},
		{Name: "positionsHistory", Kind: KindAppendOnly, Visibility: Private, DateColumn: "mts_update", SymbolColumn: "symbol", KeyColumns: []string{"id", "account_id", "mts_update"}, PageLimit: 100, Model: &models.PositionHistory{}},
		{Name: "publicTrades", Kind: KindAppendOnly, Visibility: Public, DateColumn: "mts", SymbolColumn: "symbol", KeyColumns: []string{"id", "symbol"}, PageLimit: 1000, ConfName: "publicTrades", Model: &models.PublicTrade{}},
		{Name: "tickersHistory", Kind: KindAppendOnly, Visibility: Public, DateColumn: "mts_update", SymbolColumn: "symbol", KeyColumns: []string{"symbol", "mts_update"}, PageLimit: 250, ConfName: "tickersHistory", Model: &models.TickerHistory{}},
		{Name: "symbols", Kind: KindReplaceSet, Visibility: Public, KeyColumns: []string{"pair"}, Model: &models.SymbolPair{}},
		{Name: "currencies", Kind: KindReplaceObjectSet, Visibility: Public, KeyColumns: []string{"code"}, Model: &models.Currency{}},
		{Name: "wallets", Kind: KindDayWalk, Visibility: Private, DateColumn: "mts", SymbolColumn: "currency", KeyColumns: []string{"account_id", "type", "currency", "mts"}, Model: &models.WalletBalance{}},
	} {
		r.byName[strings.ToLower(c.Name)] = c
		r.order = append(r.order, c.Name)
	}
	return r
}

func (r *Registry) Get(name string) (Collection, error) {
	c, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Collection{}, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
	}
	return c, nil
}

func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// IsMeta reports whether name is one of the ALL/PUBLIC/PRIVATE
// meta-values.
func IsMeta(name string) bool {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "ALL", "PUBLIC", "PRIVATE":
		return true
	}
	return false
}

// Expand resolves a collection name or meta-value into concrete
// collections, in declaration order.
func (r *Registry) Expand(name string) ([]Collection, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "ALL":
		return r.list(func(Collection) bool { return true }), nil
	case "PUBLIC":
		return r.list(Collection.IsPublic), nil
	case "PRIVATE":
		return r.list(func(c Collection) bool { return !c.IsPublic() }), nil
	}
	c, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return []Collection{c}, nil
}

func (r *Registry) list(keep func(Collection) bool) []Collection {
	out := make([]Collection, 0, len(r.order))
	for _, name := range r.order {
		c := r.byName[strings.ToLower(name)]
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// Allowed filters the expansion of name through the configured allow-list
// (itself a mix of names and meta-values). The check runs before any
// network I/O; a name outside the allow-list fails with
// ErrCollectionNotAllowed.
func (r *Registry) Allowed(allowList []string, name string) ([]Collection, error) {
	wanted, err := r.Expand(name)
	if err != nil {
		return nil, err
	}
	allowed := map[string]bool{}
	for _, entry := range allowList {
		cols, err := r.Expand(entry)
		if err != nil {
			return nil, fmt.Errorf("allow-list entry %q: %w", entry, err)
		}
		for _, c := range cols {
			allowed[c.Name] = true
		}
	}
	out := make([]Collection, 0, len(wanted))
	for _, c := range wanted {
		if allowed[c.Name] {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotAllowed, name)
	}
	if !IsMeta(name) && len(out) != len(wanted) {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotAllowed, name)
	}
	return out, nil
}
