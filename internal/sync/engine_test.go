package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"tradesync/internal/client/exchange"
	"tradesync/internal/config"
	"tradesync/internal/fetcher"
	"tradesync/internal/models"
	"tradesync/internal/schema"
)

func fastFetchConfig() config.FetchConfig {
	return config.FetchConfig{
		RateLimitBase:     time.Millisecond,
		RateLimitCap:      10 * time.Millisecond,
		NonceDelay:        time.Millisecond,
		NetworkInterval:   time.Millisecond,
		NetworkWindow:     50 * time.Millisecond,
		UnexpectedDelay:   time.Millisecond,
		UnexpectedRetries: 1,
	}
}

func newTestEngine(srv *httptest.Server, store *stubStore, cfg config.SyncConfig) *Engine {
	client := exchange.NewClient(srv.Client(), srv.URL)
	f := fetcher.New(fastFetchConfig(), zap.NewNop())
	return NewEngine(cfg, schema.NewRegistry(), client, f, store, zap.NewNop())
}

// upstreamFixture serves a small but faithful slice of the wire format.
type upstreamFixture struct {
	publicTrades [][]any // [id, mts, amount, price], newest first
	trades       [][]any // private trade rows, newest first
	wallets      [][]any // [type, currency, balance, mts]
}

func (u *upstreamFixture) handler(t *testing.T) http.Handler {
	rangeFilter := func(rows [][]any, start, end int64, limit int, dateIdx int) [][]any {
		var out [][]any
		for _, r := range rows {
			ts := r[dateIdx].(int64)
			if end > 0 && ts > end {
				continue
			}
			if start > 0 && ts < start {
				continue
			}
			out = append(out, r)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		if out == nil {
			out = [][]any{}
		}
		return out
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/trades/{symbol}/hist", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		start, _ := strconv.ParseInt(q.Get("start"), 10, 64)
		end, _ := strconv.ParseInt(q.Get("end"), 10, 64)
		limit, _ := strconv.Atoi(q.Get("limit"))
		json.NewEncoder(w).Encode(rangeFilter(u.publicTrades, start, end, limit, 1))
	})
	mux.HandleFunc("POST /v2/auth/r/trades/hist", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Start int64 `json:"start"`
			End   int64 `json:"end"`
			Limit int   `json:"limit"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(rangeFilter(u.trades, body.Start, body.End, body.Limit, 2))
	})
	mux.HandleFunc("POST /v2/auth/r/wallets/hist", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(u.wallets)
	})
	mux.HandleFunc("GET /v2/conf/pub:list:pair:exchange", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[["BTCUSD","ETHUSD"]]`)
	})
	mux.HandleFunc("GET /v2/conf/pub:map:currency:label", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[[["BTC","Bitcoin"],["ETH","Ethereum"]]]`)
	})
	return mux
}

func publicTradeRows(n int, newestTs int64) [][]any {
	rows := make([][]any, 0, n)
	for i := 0; i < n; i++ {
		id := int64(n - i)
		rows = append(rows, []any{id, newestTs - int64(i), "0.5", "42000.1"})
	}
	return rows
}

func TestSyncPublicTradesEndToEnd(t *testing.T) {
	fixture := &upstreamFixture{publicTrades: publicTradeRows(30, 1029)}
	srv := httptest.NewServer(fixture.handler(t))
	defer srv.Close()

	store := newStubStore()
	engine := newTestEngine(srv, store, config.SyncConfig{
		Allowed: []string{"ALL"},
		Track:   []config.TrackConfig{{Collection: "publicTrades", Symbol: "tBTCUSD", Start: 1000}},
	})

	var progress []int
	err := engine.Sync(t.Context(), "publicTrades", func(p int) { progress = append(progress, p) })
	if err != nil {
		t.Fatalf("sync: %v", err)
	}

	if len(store.publicTrades) != 30 {
		t.Fatalf("stored %d public trades, want 30", len(store.publicTrades))
	}
	cp := store.checkpoint("publicTrades", 0, "tBTCUSD")
	if cp == nil {
		t.Fatalf("checkpoint missing")
	}
	if cp.Cursor != 1029 {
		t.Fatalf("cursor = %d, want 1029", cp.Cursor)
	}
	if cp.LastSuccessAt == nil || cp.LastError != nil {
		t.Fatalf("checkpoint not marked successful: %+v", cp)
	}
	if len(progress) == 0 || progress[len(progress)-1] != 100 {
		t.Fatalf("progress = %v, want trailing 100", progress)
	}

	// A second run probes, finds nothing newer and leaves everything
	// untouched.
	if err := engine.Sync(t.Context(), "publicTrades", nil); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if len(store.publicTrades) != 30 {
		t.Fatalf("second run changed stored rows: %d", len(store.publicTrades))
	}
	cp2 := store.checkpoint("publicTrades", 0, "tBTCUSD")
	if cp2.Cursor != 1029 {
		t.Fatalf("second run moved cursor to %d", cp2.Cursor)
	}
}

func TestSyncBackfillsBelowStoredHistory(t *testing.T) {
	fixture := &upstreamFixture{publicTrades: publicTradeRows(30, 1029)}
	srv := httptest.NewServer(fixture.handler(t))
	defer srv.Close()

	// History from ts 1010 up is already stored; the configured floor
	// sits below it at 1000.
	store := newStubStore()
	for ts := int64(1010); ts <= 1029; ts++ {
		id := ts - 999
		store.publicTrades[fmt.Sprintf("%d/tBTCUSD", id)] = models.PublicTrade{ID: id, Symbol: "tBTCUSD", Mts: ts}
	}
	engine := newTestEngine(srv, store, config.SyncConfig{
		Allowed: []string{"ALL"},
		Track:   []config.TrackConfig{{Collection: "publicTrades", Symbol: "tBTCUSD", Start: 1000}},
	})

	if err := engine.Sync(t.Context(), "publicTrades", nil); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(store.publicTrades) != 30 {
		t.Fatalf("stored %d public trades, want the gap down to the floor filled (30)", len(store.publicTrades))
	}
	oldest := int64(0)
	for _, r := range store.publicTrades {
		if oldest == 0 || r.Mts < oldest {
			oldest = r.Mts
		}
	}
	if oldest != 1000 {
		t.Fatalf("oldest stored row = %d, want the floor 1000", oldest)
	}
	cp := store.checkpoint("publicTrades", 0, "tBTCUSD")
	if cp == nil || cp.LastSuccessAt == nil {
		t.Fatalf("checkpoint = %+v, want success", cp)
	}
	if cp.BaseStartFrom != 1000 || cp.BaseStartTo != 0 {
		t.Fatalf("window = [%d,%d], want the drained floor marker [1000,0]", cp.BaseStartFrom, cp.BaseStartTo)
	}

	// The drained-floor marker keeps a second run from reopening the
	// window.
	if err := engine.Sync(t.Context(), "publicTrades", nil); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if len(store.publicTrades) != 30 {
		t.Fatalf("second run changed stored rows: %d", len(store.publicTrades))
	}
}

func TestSyncTruncatedRunDrainsHoleNextRun(t *testing.T) {
	fixture := &upstreamFixture{publicTrades: publicTradeRows(30, 1029)}
	srv := httptest.NewServer(fixture.handler(t))
	defer srv.Close()

	store := newStubStore()
	engine := newTestEngine(srv, store, config.SyncConfig{
		Allowed:      []string{"ALL"},
		OverallLimit: 10,
		Track:        []config.TrackConfig{{Collection: "publicTrades", Symbol: "tBTCUSD", Start: 1000}},
	})

	// First run stops at the per-run cap: the newest ten rows land, the
	// cursor advances to the newest date and the hole below it is
	// recorded on the checkpoint.
	if err := engine.Sync(t.Context(), "publicTrades", nil); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if len(store.publicTrades) != 10 {
		t.Fatalf("stored %d rows after capped run, want 10", len(store.publicTrades))
	}
	cp := store.checkpoint("publicTrades", 0, "tBTCUSD")
	if cp == nil || cp.Cursor != 1029 {
		t.Fatalf("checkpoint = %+v, want cursor 1029", cp)
	}
	if cp.BaseStartFrom != 1000 || cp.BaseStartTo != 1019 {
		t.Fatalf("window = [%d,%d], want the hole [1000,1019]", cp.BaseStartFrom, cp.BaseStartTo)
	}

	// The second run drains the window first; the cap shrinks its upper
	// bound instead of re-recording a new hole.
	if err := engine.Sync(t.Context(), "publicTrades", nil); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if len(store.publicTrades) != 20 {
		t.Fatalf("stored %d rows after second run, want 20", len(store.publicTrades))
	}
	cp = store.checkpoint("publicTrades", 0, "tBTCUSD")
	if cp.BaseStartFrom != 1000 || cp.BaseStartTo != 1009 {
		t.Fatalf("window = [%d,%d], want shrunk to [1000,1009]", cp.BaseStartFrom, cp.BaseStartTo)
	}

	// The third run reaches the floor and closes the window.
	if err := engine.Sync(t.Context(), "publicTrades", nil); err != nil {
		t.Fatalf("third sync: %v", err)
	}
	if len(store.publicTrades) != 30 {
		t.Fatalf("stored %d rows after third run, want 30", len(store.publicTrades))
	}
	cp = store.checkpoint("publicTrades", 0, "tBTCUSD")
	if cp.BaseStartFrom != 1000 || cp.BaseStartTo != 0 || cp.Cursor != 1029 {
		t.Fatalf("checkpoint = %+v, want closed window at the floor", cp)
	}
}

func TestSyncPrivateTradesStampsAccount(t *testing.T) {
	rows := [][]any{
		{int64(105), "tBTCUSD", int64(2005), int64(9005), "0.1", "40000", "LIMIT", "40000", 1, "-0.01", "USD"},
		{int64(104), "tBTCUSD", int64(2004), int64(9004), "0.1", "40000", "LIMIT", "40000", 1, "-0.01", "USD"},
		{int64(103), "tBTCUSD", int64(2003), int64(9003), "0.1", "40000", "LIMIT", "40000", 0, "-0.01", "USD"},
		{int64(102), "tETHUSD", int64(2002), int64(9002), "1", "2500", "MARKET", "0", 0, "-0.02", "USD"},
		{int64(101), "tETHUSD", int64(2001), int64(9001), "1", "2500", "MARKET", "0", 0, "-0.02", "USD"},
	}
	fixture := &upstreamFixture{trades: rows}
	srv := httptest.NewServer(fixture.handler(t))
	defer srv.Close()

	store := newStubStore()
	store.accounts = []models.Account{
		{ID: 7, Label: "main", APIKey: "k", APISecret: "s", Active: true},
		{ID: 8, Label: "no-creds", Active: true},
	}
	engine := newTestEngine(srv, store, config.SyncConfig{Allowed: []string{"PRIVATE"}})

	if err := engine.Sync(t.Context(), "trades", nil); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(store.trades) != 5 {
		t.Fatalf("stored %d trades, want 5", len(store.trades))
	}
	for _, tr := range store.trades {
		if tr.AccountID != 7 {
			t.Fatalf("trade %d stamped with account %d, want 7", tr.ID, tr.AccountID)
		}
	}
	cp := store.checkpoint("trades", 7, "")
	if cp == nil || cp.Cursor != 2005 {
		t.Fatalf("checkpoint = %+v, want cursor 2005", cp)
	}
	if store.checkpoint("trades", 8, "") != nil {
		t.Fatalf("credential-less account should not get a pass")
	}
}

func TestSyncRunsAccountsInSequence(t *testing.T) {
	// Every upstream call answers empty, so each pass settles after its
	// first request and the request order exposes the iteration order.
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("api-key"))
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	store := newStubStore()
	store.accounts = []models.Account{
		{ID: 1, APIKey: "k1", APISecret: "s", Active: true},
		{ID: 2, APIKey: "k2", APISecret: "s", Active: true},
	}
	engine := newTestEngine(srv, store, config.SyncConfig{Allowed: []string{"PRIVATE"}, WalletMaxDays: 5})

	var progress []int
	if err := engine.Sync(t.Context(), "PRIVATE", func(p int) { progress = append(progress, p) }); err != nil {
		t.Fatalf("sync: %v", err)
	}

	// Account-major: every request of the first account precedes every
	// request of the second.
	if len(keys) == 0 || len(keys)%2 != 0 {
		t.Fatalf("requests = %v", keys)
	}
	for i, k := range keys {
		want := "k1"
		if i >= len(keys)/2 {
			want = "k2"
		}
		if k != want {
			t.Fatalf("request %d used key %s, want %s (order: %v)", i, k, want, keys)
		}
	}

	// Progress is the completed-account fraction: halfway after the
	// first account, 100 at the end, never decreasing.
	last := -1
	saw50 := false
	for _, p := range progress {
		if p < last {
			t.Fatalf("progress went backward: %v", progress)
		}
		last = p
		if p == 50 {
			saw50 = true
		}
	}
	if !saw50 || last != 100 {
		t.Fatalf("progress = %v, want 50 after the first account and trailing 100", progress)
	}
}

func TestSyncWalletsStopsAtKnownHistory(t *testing.T) {
	fixture := &upstreamFixture{wallets: [][]any{
		{"exchange", "BTC", "1.5", int64(5000)},
		{"margin", "USD", "100", int64(5000)},
	}}
	srv := httptest.NewServer(fixture.handler(t))
	defer srv.Close()

	store := newStubStore()
	store.accounts = []models.Account{{ID: 3, APIKey: "k", APISecret: "s", Active: true}}
	engine := newTestEngine(srv, store, config.SyncConfig{Allowed: []string{"wallets"}, WalletMaxDays: 30})

	if err := engine.Sync(t.Context(), "wallets", nil); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(store.wallets) != 2 {
		t.Fatalf("stored %d wallet rows, want 2", len(store.wallets))
	}
	for _, w := range store.wallets {
		if w.AccountID != 3 {
			t.Fatalf("wallet row for account %d, want 3", w.AccountID)
		}
	}
	cp := store.checkpoint("wallets", 3, "")
	if cp == nil || cp.Cursor != 5000 || cp.LastSuccessAt == nil {
		t.Fatalf("checkpoint = %+v", cp)
	}
}

func TestSyncReplaceSets(t *testing.T) {
	fixture := &upstreamFixture{}
	srv := httptest.NewServer(fixture.handler(t))
	defer srv.Close()

	store := newStubStore()
	store.symbols["OLDUSD"] = true
	engine := newTestEngine(srv, store, config.SyncConfig{Allowed: []string{"ALL"}})

	if err := engine.Sync(t.Context(), "symbols", nil); err != nil {
		t.Fatalf("sync symbols: %v", err)
	}
	if !store.symbols["BTCUSD"] || !store.symbols["ETHUSD"] || store.symbols["OLDUSD"] {
		t.Fatalf("symbols not reconciled: %v", store.symbols)
	}

	if err := engine.Sync(t.Context(), "currencies", nil); err != nil {
		t.Fatalf("sync currencies: %v", err)
	}
	if len(store.currencies) != 2 || store.currencies["ETH"].Name != "Ethereum" {
		t.Fatalf("currencies not reconciled: %v", store.currencies)
	}
}

func TestSyncRejectsNamesOutsideAllowList(t *testing.T) {
	fixture := &upstreamFixture{}
	srv := httptest.NewServer(fixture.handler(t))
	defer srv.Close()

	engine := newTestEngine(srv, newStubStore(), config.SyncConfig{Allowed: []string{"trades"}})

	if err := engine.Sync(t.Context(), "publicTrades", nil); !errors.Is(err, schema.ErrCollectionNotAllowed) {
		t.Fatalf("err = %v, want ErrCollectionNotAllowed", err)
	}
	if err := engine.Sync(t.Context(), "bogus", nil); !errors.Is(err, schema.ErrUnknownCollection) {
		t.Fatalf("err = %v, want ErrUnknownCollection", err)
	}
}

func TestSyncAuthFailureSkipsAccount(t *testing.T) {
	var authed bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-key") == "bad" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `["error","ERR_AUTH_FAIL","apikey: invalid"]`)
			return
		}
		authed = true
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	store := newStubStore()
	store.accounts = []models.Account{
		{ID: 1, APIKey: "bad", APISecret: "bad", Active: true},
		{ID: 2, APIKey: "good", APISecret: "s", Active: true},
	}
	engine := newTestEngine(srv, store, config.SyncConfig{Allowed: []string{"trades"}})

	// A rejected credential skips the account without failing the run.
	if err := engine.Sync(t.Context(), "trades", nil); err != nil {
		t.Fatalf("sync: %v", err)
	}
	cp := store.checkpoint("trades", 1, "")
	if cp == nil || cp.LastError == nil {
		t.Fatalf("failure not recorded on checkpoint: %+v", cp)
	}
	if p, _ := store.GetProgress(t.Context()); p != "unauthenticated" {
		t.Fatalf("progress = %q, want the unauthenticated sentinel", p)
	}
	if !authed {
		t.Fatalf("remaining account was not processed")
	}
	cp2 := store.checkpoint("trades", 2, "")
	if cp2 == nil || cp2.LastError != nil || cp2.LastSuccessAt == nil {
		t.Fatalf("second account checkpoint = %+v", cp2)
	}
}
