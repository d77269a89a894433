package sync

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"tradesync/internal/models"
	"tradesync/internal/repository"
	"tradesync/internal/schema"
)

// stubStore keeps synced records and checkpoints in memory with the same
// insert-once semantics the real store gets from unique keys.
type stubStore struct {
	mu sync.Mutex

	accounts []models.Account

	trades       map[string]models.Trade
	publicTrades map[string]models.PublicTrade
	wallets      map[string]models.WalletBalance
	symbols      map[string]bool
	currencies   map[string]models.Currency

	checkpoints map[string]models.SyncCheckpoint
	progress    string
}

var _ repository.Storage = (*stubStore)(nil)

func newStubStore() *stubStore {
	return &stubStore{
		trades:       map[string]models.Trade{},
		publicTrades: map[string]models.PublicTrade{},
		wallets:      map[string]models.WalletBalance{},
		symbols:      map[string]bool{},
		currencies:   map[string]models.Currency{},
		checkpoints:  map[string]models.SyncCheckpoint{},
		progress:     models.ProgressNotStarted,
	}
}

func (s *stubStore) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func (s *stubStore) dates(coll schema.Collection, f repository.Filter) []int64 {
	var out []int64
	switch coll.Name {
	case "trades":
		for _, r := range s.trades {
			if f.AccountID == 0 || r.AccountID == f.AccountID {
				out = append(out, r.MtsCreate)
			}
		}
	case "publicTrades":
		for _, r := range s.publicTrades {
			if f.Symbol == "" || r.Symbol == f.Symbol {
				out = append(out, r.Mts)
			}
		}
	case "wallets":
		for _, r := range s.wallets {
			if f.AccountID == 0 || r.AccountID == f.AccountID {
				out = append(out, r.Mts)
			}
		}
	}
	return out
}

func (s *stubStore) LastRecordDate(_ context.Context, coll schema.Collection, f repository.Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var max int64
	for _, d := range s.dates(coll, f) {
		if d > max {
			max = d
		}
	}
	return max, nil
}

func (s *stubStore) FirstRecordDate(_ context.Context, coll schema.Collection, f repository.Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var min int64
	for _, d := range s.dates(coll, f) {
		if min == 0 || d < min {
			min = d
		}
	}
	return min, nil
}

func (s *stubStore) InsertRecords(_ context.Context, coll schema.Collection, records any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var inserted int64
	switch rows := records.(type) {
	case []models.Trade:
		for _, r := range rows {
			key := fmt.Sprintf("%d/%d", r.ID, r.AccountID)
			if _, ok := s.trades[key]; !ok {
				s.trades[key] = r
				inserted++
			}
		}
	case []models.PublicTrade:
		for _, r := range rows {
			key := fmt.Sprintf("%d/%s", r.ID, r.Symbol)
			if _, ok := s.publicTrades[key]; !ok {
				s.publicTrades[key] = r
				inserted++
			}
		}
	case []models.WalletBalance:
		for _, r := range rows {
			key := fmt.Sprintf("%d/%s/%s/%d", r.AccountID, r.Type, r.Currency, r.Mts)
			if _, ok := s.wallets[key]; !ok {
				s.wallets[key] = r
				inserted++
			}
		}
	default:
		return 0, fmt.Errorf("stub store cannot hold %T", records)
	}
	return inserted, nil
}

func (s *stubStore) QueryRecords(context.Context, schema.Collection, repository.QueryParams) ([]map[string]any, int64, error) {
	return nil, 0, nil
}

func (s *stubStore) ReplaceSymbols(_ context.Context, pairs []string) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var added, removed int64
	next := map[string]bool{}
	for _, p := range pairs {
		next[p] = true
		if !s.symbols[p] {
			added++
		}
	}
	for p := range s.symbols {
		if !next[p] {
			removed++
		}
	}
	s.symbols = next
	return added, removed, nil
}

func (s *stubStore) ReplaceCurrencies(_ context.Context, items []models.Currency) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var added, removed int64
	next := map[string]models.Currency{}
	for _, c := range items {
		next[c.Code] = c
		if _, ok := s.currencies[c.Code]; !ok {
			added++
		}
	}
	for code := range s.currencies {
		if _, ok := next[code]; !ok {
			removed++
		}
	}
	s.currencies = next
	return added, removed, nil
}

func (s *stubStore) ActiveAccounts(context.Context) ([]models.Account, error) {
	return s.accounts, nil
}

func cpKey(collection string, accountID uint64, symbol string) string {
	return fmt.Sprintf("%s/%d/%s", collection, accountID, symbol)
}

func (s *stubStore) GetCheckpoint(_ context.Context, collection string, accountID uint64, symbol string) (*models.SyncCheckpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[cpKey(collection, accountID, symbol)]
	if !ok {
		return nil, nil
	}
	out := cp
	return &out, nil
}

func (s *stubStore) SaveCheckpoint(_ context.Context, cp *models.SyncCheckpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[cpKey(cp.Collection, cp.AccountID, cp.Symbol)] = *cp
	return nil
}

func (s *stubStore) ListCheckpoints(context.Context) ([]models.SyncCheckpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SyncCheckpoint, 0, len(s.checkpoints))
	for _, cp := range s.checkpoints {
		out = append(out, cp)
	}
	return out, nil
}

func (s *stubStore) GetProgress(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress, nil
}

func (s *stubStore) SetProgress(_ context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = value
	return nil
}

func (s *stubStore) InsertJob(context.Context, *models.SyncJob) error { return nil }

func (s *stubStore) ListJobsByStates(context.Context, []string, int) ([]models.SyncJob, error) {
	return nil, nil
}

func (s *stubStore) UpdateJobState(context.Context, uint64, []string, string, *string) error {
	return nil
}

func (s *stubStore) DeleteJobsByState(context.Context, string) (int64, error) { return 0, nil }

func (s *stubStore) checkpoint(collection string, accountID uint64, symbol string) *models.SyncCheckpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[cpKey(collection, accountID, symbol)]
	if !ok {
		return nil
	}
	out := cp
	return &out
}
