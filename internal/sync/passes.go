package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"tradesync/internal/client/exchange"
	"tradesync/internal/fetcher"
	"tradesync/internal/models"
	"tradesync/internal/repository"
	"tradesync/internal/replicator"
	"tradesync/internal/schema"
)

// passScope identifies one (collection, account|symbol) pass.
type passScope struct {
	op        string
	accountID uint64
	symbol    string
	// trackFrom is the configured history floor (unix ms) for public
	// collections; 0 for private ones.
	trackFrom int64
}

type passStats struct {
	Pages           int   `json:"pages"`
	Records         int   `json:"records"`
	MaxDate         int64 `json:"max_date,omitempty"`
	MinDate         int64 `json:"min_date,omitempty"`
	BackfillRecords int   `json:"backfill_records,omitempty"`
	Days            int   `json:"days,omitempty"`
	Added           int64 `json:"added,omitempty"`
	Removed         int64 `json:"removed,omitempty"`
}

type pullFunc[T replicator.Item] func(ctx context.Context, q exchange.Query) ([]T, int64, error)

// runPass replicates one append-only collection scope. Order of work:
// resume any persisted pending window (BaseStartFrom/BaseStartTo) first,
// then probe and pull forward from the checkpoint cursor, then open the
// configured-floor backfill window when the stored history starts above
// it. The cursor only advances past rows already persisted; gaps a
// truncated pass leaves behind are recorded as the pending window and
// drained on the next run.
func runPass[T replicator.Item](ctx context.Context, e *Engine, coll schema.Collection, sc passScope, pull pullFunc[T]) error {
	cp, err := e.loadCheckpoint(ctx, coll, sc)
	if err != nil {
		return err
	}

	sink := func(ctx context.Context, items []T) error {
		_, err := e.store.InsertRecords(ctx, coll, items)
		return err
	}
	var stats passStats

	if cp.BaseStartTo > 0 {
		n, err := drainWindow(ctx, e, coll, sc, cp, pull, sink)
		stats.BackfillRecords += n
		if err != nil {
			return e.failCheckpoint(ctx, cp, err)
		}
	}

	start := cp.Cursor
	if start == 0 {
		// Bootstrap: trust pre-existing rows, else the configured floor.
		last, err := e.store.LastRecordDate(ctx, coll, repository.Filter{AccountID: sc.accountID, Symbol: sc.symbol})
		if err != nil {
			return err
		}
		switch {
		case last > 0:
			start = last
		case sc.trackFrom > 0:
			start = sc.trackFrom - 1
		}
	}

	var newest int64
	err = e.fetcher.Run(ctx, sc.op+" probe", func(ctx context.Context) error {
		items, _, err := pull(ctx, exchange.Query{Limit: 1})
		if err != nil {
			return err
		}
		if len(items) > 0 {
			newest = items[0].ItemDate()
		}
		return nil
	})
	if err != nil {
		return e.failCheckpoint(ctx, cp, err)
	}

	if newest > start {
		rs, err := replicator.Replicate(ctx, e.fetcher, sc.op, pageFunc(pull), sink, replicator.Options{
			Start:        start,
			PageLimit:    coll.PageLimit,
			OverallLimit: e.cfg.OverallLimit,
		})
		stats.Pages = rs.Pages
		stats.Records = rs.Records
		stats.MaxDate = rs.MaxDate
		stats.MinDate = rs.MinDate
		if rs.MaxDate > cp.Cursor {
			cp.Cursor = rs.MaxDate
		}
		if err != nil {
			return e.failCheckpoint(ctx, cp, err)
		}
		if truncated(e.cfg.OverallLimit, rs) && cp.BaseStartTo == 0 && rs.MinDate > start+1 {
			// The per-run cap stopped the pass above the checkpoint;
			// remember the hole so the next run drains it.
			cp.BaseStartFrom = start + 1
			cp.BaseStartTo = rs.MinDate - 1
		}
		e.logger.Info("forward pass complete", zap.String("op", sc.op),
			zap.Int("pages", rs.Pages), zap.Int("records", rs.Records))
	}

	if cp.BaseStartTo == 0 {
		if opened, err := e.openFloorWindow(ctx, coll, sc, cp); err != nil {
			return e.failCheckpoint(ctx, cp, err)
		} else if opened {
			n, err := drainWindow(ctx, e, coll, sc, cp, pull, sink)
			stats.BackfillRecords += n
			if err != nil {
				return e.failCheckpoint(ctx, cp, err)
			}
		}
	}

	return e.succeedCheckpoint(ctx, cp, stats)
}

func pageFunc[T replicator.Item](pull pullFunc[T]) replicator.PullFunc[T] {
	return func(ctx context.Context, start, end int64, limit int) (replicator.Page[T], error) {
		items, next, err := pull(ctx, exchange.Query{Start: start, End: end, Limit: limit})
		if err != nil {
			return replicator.Page[T]{}, err
		}
		return replicator.Page[T]{Items: items, NextPage: next}, nil
	}
}

func truncated(overallLimit int, rs replicator.Stats) bool {
	return overallLimit > 0 && rs.Records >= overallLimit
}

// openFloorWindow detects the gap between the configured floor and the
// oldest stored row. A checkpoint whose window equals exactly the floor
// with no upper bound marks the floor as already drained.
func (e *Engine) openFloorWindow(ctx context.Context, coll schema.Collection, sc passScope, cp *models.SyncCheckpoint) (bool, error) {
	if sc.trackFrom <= 0 {
		return false, nil
	}
	if cp.BaseStartFrom == sc.trackFrom && cp.BaseStartTo == 0 && cp.LastSuccessAt != nil {
		return false, nil
	}
	first, err := e.store.FirstRecordDate(ctx, coll, repository.Filter{AccountID: sc.accountID, Symbol: sc.symbol})
	if err != nil {
		return false, err
	}
	if first == 0 || first <= sc.trackFrom {
		cp.BaseStartFrom = sc.trackFrom
		cp.BaseStartTo = 0
		return false, nil
	}
	cp.BaseStartFrom = sc.trackFrom
	cp.BaseStartTo = first - 1
	if err := e.store.SaveCheckpoint(ctx, cp); err != nil {
		return false, err
	}
	return true, nil
}

// drainWindow replicates the pending (BaseStartFrom, BaseStartTo] window.
// When the per-run cap truncates it, the upper bound shrinks to just
// below the oldest row pulled; when drained the window closes, keeping
// the floor done-marker for floor-originated windows.
func drainWindow[T replicator.Item](ctx context.Context, e *Engine, coll schema.Collection, sc passScope, cp *models.SyncCheckpoint, pull pullFunc[T], sink replicator.SinkFunc[T]) (int, error) {
	rs, err := replicator.Replicate(ctx, e.fetcher, sc.op+" backfill", pageFunc(pull), sink, replicator.Options{
		Start:        cp.BaseStartFrom - 1,
		End:          cp.BaseStartTo,
		PageLimit:    coll.PageLimit,
		OverallLimit: e.cfg.OverallLimit,
	})
	if err != nil {
		return rs.Records, err
	}
	if truncated(e.cfg.OverallLimit, rs) && rs.MinDate > cp.BaseStartFrom {
		cp.BaseStartTo = rs.MinDate - 1
		if err := e.store.SaveCheckpoint(ctx, cp); err != nil {
			return rs.Records, err
		}
		return rs.Records, nil
	}
	if sc.trackFrom > 0 && cp.BaseStartFrom == sc.trackFrom {
		cp.BaseStartTo = 0
	} else {
		cp.BaseStartFrom, cp.BaseStartTo = 0, 0
	}
	e.logger.Info("backfill window drained", zap.String("op", sc.op),
		zap.Int("records", rs.Records))
	return rs.Records, nil
}

func (e *Engine) loadCheckpoint(ctx context.Context, coll schema.Collection, sc passScope) (*models.SyncCheckpoint, error) {
	cp, err := e.store.GetCheckpoint(ctx, coll.Name, sc.accountID, sc.symbol)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		cp = &models.SyncCheckpoint{
			Collection: coll.Name,
			AccountID:  sc.accountID,
			Symbol:     sc.symbol,
		}
	}
	now := time.Now().UTC()
	cp.LastAttemptAt = &now
	return cp, nil
}

func (e *Engine) succeedCheckpoint(ctx context.Context, cp *models.SyncCheckpoint, stats passStats) error {
	now := time.Now().UTC()
	cp.LastSuccessAt = &now
	cp.LastError = nil
	if raw, err := json.Marshal(stats); err == nil {
		cp.StatsJSON = datatypes.JSON(raw)
	}
	return e.store.SaveCheckpoint(ctx, cp)
}

// failCheckpoint records the failure and hands the original error back.
func (e *Engine) failCheckpoint(ctx context.Context, cp *models.SyncCheckpoint, cause error) error {
	msg := cause.Error()
	cp.LastError = &msg
	if err := e.store.SaveCheckpoint(ctx, cp); err != nil {
		e.logger.Error("save checkpoint after failure", zap.String("collection", cp.Collection), zap.Error(err))
	}
	return cause
}

// walletPass snapshots wallet balances walking backward one UTC day at a
// time. The endpoint has no cursor; novelty is detected by insert count,
// so the walk stops at the first day whose rows are all already stored.
func (e *Engine) walletPass(ctx context.Context, coll schema.Collection, acct models.Account) error {
	auth := exchange.Auth{Key: acct.APIKey, Secret: acct.APISecret}
	sc := passScope{op: fmt.Sprintf("%s acct=%d", coll.Name, acct.ID), accountID: acct.ID}
	cp, err := e.loadCheckpoint(ctx, coll, sc)
	if err != nil {
		return err
	}

	maxDays := e.cfg.WalletMaxDays
	if maxDays <= 0 {
		maxDays = 365
	}

	var stats passStats
	end := time.Now().UnixMilli()
	for day := 0; day < maxDays; day++ {
		var snap []models.WalletBalance
		err := e.fetcher.Run(ctx, sc.op, func(ctx context.Context) error {
			rows, err := e.client.Wallets(ctx, auth, end)
			if err != nil {
				return err
			}
			snap = rows
			return nil
		})
		if err != nil {
			return e.failCheckpoint(ctx, cp, err)
		}
		if len(snap) == 0 {
			break
		}
		for i := range snap {
			snap[i].AccountID = acct.ID
		}
		inserted, err := e.store.InsertRecords(ctx, coll, snap)
		if err != nil {
			return e.failCheckpoint(ctx, cp, err)
		}
		stats.Days++
		stats.Records += int(inserted)
		for _, w := range snap {
			if w.Mts > cp.Cursor {
				cp.Cursor = w.Mts
			}
		}
		if inserted == 0 {
			// Every row of this day is known: the walk has met the
			// stored history.
			break
		}

		// step to the end of the previous UTC day
		dayStart := time.UnixMilli(end).UTC().Truncate(24 * time.Hour).UnixMilli()
		end = dayStart - 1
		if end <= 0 {
			break
		}

		if e.cfg.WalletIdleEvery > 0 && stats.Days%e.cfg.WalletIdleEvery == 0 && e.cfg.WalletIdleDelay > 0 {
			if err := sleepCtx(ctx, e.cfg.WalletIdleDelay); err != nil {
				return e.failCheckpoint(ctx, cp, err)
			}
		}
	}

	e.logger.Info("wallet walk complete", zap.String("op", sc.op),
		zap.Int("days", stats.Days), zap.Int("records", stats.Records))
	return e.succeedCheckpoint(ctx, cp, stats)
}

// replacePass reconciles one of the shared master lists in full.
func (e *Engine) replacePass(ctx context.Context, coll schema.Collection) error {
	sc := passScope{op: coll.Name}
	cp, err := e.loadCheckpoint(ctx, coll, sc)
	if err != nil {
		return err
	}

	var stats passStats
	switch coll.Kind {
	case schema.KindReplaceSet:
		var pairs []string
		err = e.fetcher.Run(ctx, sc.op, func(ctx context.Context) error {
			p, err := e.client.Symbols(ctx)
			if err != nil {
				return err
			}
			pairs = p
			return nil
		})
		if err == nil {
			stats.Added, stats.Removed, err = e.store.ReplaceSymbols(ctx, pairs)
			stats.Records = len(pairs)
		}

	case schema.KindReplaceObjectSet:
		var items []models.Currency
		err = e.fetcher.Run(ctx, sc.op, func(ctx context.Context) error {
			cs, err := e.client.Currencies(ctx)
			if err != nil {
				return err
			}
			items = cs
			return nil
		})
		if err == nil {
			stats.Added, stats.Removed, err = e.store.ReplaceCurrencies(ctx, items)
			stats.Records = len(items)
		}

	default:
		err = fmt.Errorf("collection %s is not a replace set", coll.Name)
	}
	if err != nil {
		return e.failCheckpoint(ctx, cp, err)
	}
	e.logger.Info("replace pass complete", zap.String("op", sc.op),
		zap.Int64("added", stats.Added), zap.Int64("removed", stats.Removed))
	return e.succeedCheckpoint(ctx, cp, stats)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fetcher.ErrInterrupted
	case <-t.C:
		return nil
	}
}
