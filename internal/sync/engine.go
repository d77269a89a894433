// Package sync drives checkpointed replication of every collection: it
// expands a requested name through the allow-list, runs the private
// collections account by account, then the public ones, and reports
// coarse progress as passes complete.
package sync

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"tradesync/internal/client/exchange"
	"tradesync/internal/config"
	"tradesync/internal/fetcher"
	"tradesync/internal/models"
	"tradesync/internal/repository"
	"tradesync/internal/schema"
)

type Engine struct {
	cfg      config.SyncConfig
	registry *schema.Registry
	client   *exchange.Client
	fetcher  *fetcher.Fetcher
	store    repository.Storage
	logger   *zap.Logger
	// track indexes cfg.Track by lowercased conf name.
	track map[string]map[string]int64
}

func NewEngine(cfg config.SyncConfig, registry *schema.Registry, client *exchange.Client, f *fetcher.Fetcher, store repository.Storage, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	track := map[string]map[string]int64{}
	for _, tr := range cfg.Track {
		coll := strings.ToLower(strings.TrimSpace(tr.Collection))
		if coll == "" || tr.Symbol == "" {
			continue
		}
		if track[coll] == nil {
			track[coll] = map[string]int64{}
		}
		track[coll][tr.Symbol] = tr.Start
	}
	return &Engine{
		cfg:      cfg,
		registry: registry,
		client:   client,
		fetcher:  f,
		store:    store,
		logger:   logger,
		track:    track,
	}
}

// Registry exposes the collection set for surfaces that validate names.
func (e *Engine) Registry() *schema.Registry {
	return e.registry
}

// Allowed resolves name through the configured allow-list.
func (e *Engine) Allowed(name string) ([]schema.Collection, error) {
	return e.registry.Allowed(e.cfg.Allowed, name)
}

// Sync replicates name (a collection or meta-value) end to end. Accounts
// are processed sequentially, each running every requested private
// collection before the next account starts; public collections run once
// afterward, their progress rescaled between the private share and 100.
// onProgress receives 0-100; the first non-skippable error aborts the
// run, leaving per-pass checkpoints behind for the next attempt.
func (e *Engine) Sync(ctx context.Context, name string, onProgress func(int)) error {
	cols, err := e.Allowed(name)
	if err != nil {
		return err
	}
	accounts, err := e.store.ActiveAccounts(ctx)
	if err != nil {
		return err
	}
	creds := accounts[:0:0]
	for _, a := range accounts {
		if a.HasCredentials() {
			creds = append(creds, a)
		}
	}

	var priv, pub []schema.Collection
	for _, coll := range cols {
		if coll.IsPublic() {
			pub = append(pub, coll)
		} else {
			priv = append(priv, coll)
		}
	}

	privPasses := 0
	if len(priv) > 0 {
		privPasses = len(creds) * len(priv)
	}
	pubPasses := 0
	for _, coll := range pub {
		if coll.Kind == schema.KindAppendOnly {
			pubPasses += len(e.symbolsFor(coll))
		} else {
			pubPasses++
		}
	}
	total := privPasses + pubPasses

	report := func(p int) {
		if onProgress != nil {
			onProgress(p)
		}
	}
	if total == 0 {
		report(100)
		return nil
	}
	report(0)

	// Private phase, account-major: progress is (accounts completed +
	// fraction within the current account) over all accounts, scaled onto
	// the private share of the run.
	privShare := privPasses * 100 / total
	for i, acct := range creds {
		for j, coll := range priv {
			var passErr error
			if coll.Kind == schema.KindDayWalk {
				passErr = e.walletPass(ctx, coll, acct)
			} else {
				passErr = e.privatePass(ctx, coll, acct)
			}
			if passErr != nil && !e.skipAccount(ctx, coll, acct, passErr) {
				return passErr
			}
			frac := float64(j+1) / float64(len(priv))
			report(int((float64(i) + frac) / float64(len(creds)) * float64(privShare)))
		}
	}

	done := privPasses
	tick := func() {
		done++
		report(done * 100 / total)
	}
	for _, coll := range pub {
		switch coll.Kind {
		case schema.KindReplaceSet, schema.KindReplaceObjectSet:
			if err := e.replacePass(ctx, coll); err != nil {
				return err
			}
			tick()
		default:
			conf := e.track[strings.ToLower(coll.ConfName)]
			for _, sym := range e.symbolsFor(coll) {
				if err := e.publicPass(ctx, coll, sym, conf[sym]); err != nil {
					return err
				}
				tick()
			}
		}
	}
	report(100)
	return nil
}

// symbolsFor returns the configured symbols of a public collection in
// stable order.
func (e *Engine) symbolsFor(coll schema.Collection) []string {
	if !coll.Configurable() {
		return nil
	}
	conf := e.track[strings.ToLower(coll.ConfName)]
	out := make([]string, 0, len(conf))
	for sym := range conf {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// skipAccount reports whether err is a rejected credential, which skips
// the account without failing the whole run. The "unauthenticated"
// sentinel is written to the shared progress slot and the checkpoint
// keeps the error for the operator.
func (e *Engine) skipAccount(ctx context.Context, coll schema.Collection, acct models.Account, err error) bool {
	if !fetcher.IsAuth(err) {
		return false
	}
	if perr := e.store.SetProgress(ctx, "unauthenticated"); perr != nil {
		e.logger.Error("save progress", zap.Error(perr))
	}
	e.logger.Warn("account unauthenticated, skipping",
		zap.Uint64("account_id", acct.ID),
		zap.String("collection", coll.Name),
		zap.Error(err))
	return true
}

// privatePass binds the collection to its typed client call with the
// account's credentials stamped onto every row.
func (e *Engine) privatePass(ctx context.Context, coll schema.Collection, acct models.Account) error {
	auth := exchange.Auth{Key: acct.APIKey, Secret: acct.APISecret}
	sc := passScope{
		op:        fmt.Sprintf("%s acct=%d", coll.Name, acct.ID),
		accountID: acct.ID,
	}

	switch coll.Name {
	case "trades":
		return runPass(ctx, e, coll, sc, func(ctx context.Context, q exchange.Query) ([]models.Trade, int64, error) {
			items, next, err := e.client.Trades(ctx, auth, q)
			for i := range items {
				items[i].AccountID = acct.ID
			}
			return items, next, err
		})
	case "orders":
		return runPass(ctx, e, coll, sc, func(ctx context.Context, q exchange.Query) ([]models.Order, int64, error) {
			items, next, err := e.client.Orders(ctx, auth, q)
			for i := range items {
				items[i].AccountID = acct.ID
			}
			return items, next, err
		})
	case "ledgers":
		return runPass(ctx, e, coll, sc, func(ctx context.Context, q exchange.Query) ([]models.Ledger, int64, error) {
			items, next, err := e.client.Ledgers(ctx, auth, q)
			for i := range items {
				items[i].AccountID = acct.ID
			}
			return items, next, err
		})
	case "movements":
		return runPass(ctx, e, coll, sc, func(ctx context.Context, q exchange.Query) ([]models.Movement, int64, error) {
			items, next, err := e.client.Movements(ctx, auth, q)
			for i := range items {
				items[i].AccountID = acct.ID
			}
			return items, next, err
		})
	case "fundingOfferHistory":
		return runPass(ctx, e, coll, sc, func(ctx context.Context, q exchange.Query) ([]models.FundingOffer, int64, error) {
			items, next, err := e.client.FundingOffers(ctx, auth, q)
			for i := range items {
				items[i].AccountID = acct.ID
			}
			return items, next, err
		})
	case "fundingLoanHistory":
		return runPass(ctx, e, coll, sc, func(ctx context.Context, q exchange.Query) ([]models.FundingLoan, int64, error) {
			items, next, err := e.client.FundingLoans(ctx, auth, q)
			for i := range items {
				items[i].AccountID = acct.ID
			}
			return items, next, err
		})
	case "fundingCreditHistory":
		return runPass(ctx, e, coll, sc, func(ctx context.Context, q exchange.Query) ([]models.FundingCredit, int64, error) {
			items, next, err := e.client.FundingCredits(ctx, auth, q)
			for i := range items {
				items[i].AccountID = acct.ID
			}
			return items, next, err
		})
	case "positionsHistory":
		return runPass(ctx, e, coll, sc, func(ctx context.Context, q exchange.Query) ([]models.PositionHistory, int64, error) {
			items, next, err := e.client.PositionsHistory(ctx, auth, q)
			for i := range items {
				items[i].AccountID = acct.ID
			}
			return items, next, err
		})
	}
	return fmt.Errorf("no private pass for collection %s", coll.Name)
}

func (e *Engine) publicPass(ctx context.Context, coll schema.Collection, symbol string, trackFrom int64) error {
	sc := passScope{
		op:        fmt.Sprintf("%s %s", coll.Name, symbol),
		symbol:    symbol,
		trackFrom: trackFrom,
	}

	switch coll.Name {
	case "publicTrades":
		return runPass(ctx, e, coll, sc, func(ctx context.Context, q exchange.Query) ([]models.PublicTrade, int64, error) {
			return e.client.PublicTrades(ctx, symbol, q)
		})
	case "tickersHistory":
		return runPass(ctx, e, coll, sc, func(ctx context.Context, q exchange.Query) ([]models.TickerHistory, int64, error) {
			return e.client.TickersHistory(ctx, symbol, q)
		})
	}
	return fmt.Errorf("no public pass for collection %s", coll.Name)
}
