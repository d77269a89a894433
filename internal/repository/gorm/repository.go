// Package gormrepository implements repository.Storage on gorm/postgres.
package gormrepository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradesync/internal/models"
	"tradesync/internal/repository"
	"tradesync/internal/schema"
)

const progressKey = "sync"

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

type Store struct {
	db *gorm.DB
}

var _ repository.Storage = (*Store)(nil)

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return gorm.ErrInvalidDB
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// recordScope builds the shared WHERE base for generic record reads.
func (s *Store) recordScope(ctx context.Context, coll schema.Collection, f repository.Filter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(coll.Model)
	if f.AccountID != 0 {
		q = q.Where("account_id = ?", f.AccountID)
	}
	if f.Symbol != "" && coll.SymbolColumn != "" {
		q = q.Where(coll.SymbolColumn+" = ?", f.Symbol)
	}
	return q
}

func (s *Store) LastRecordDate(ctx context.Context, coll schema.Collection, f repository.Filter) (int64, error) {
	return s.boundaryDate(ctx, coll, f, "max")
}

func (s *Store) FirstRecordDate(ctx context.Context, coll schema.Collection, f repository.Filter) (int64, error) {
	return s.boundaryDate(ctx, coll, f, "min")
}

func (s *Store) boundaryDate(ctx context.Context, coll schema.Collection, f repository.Filter, agg string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, gorm.ErrInvalidDB
	}
	if coll.DateColumn == "" {
		return 0, fmt.Errorf("collection %s has no date column", coll.Name)
	}
	var v sql.NullInt64
	err := s.recordScope(ctx, coll, f).
		Select(agg + "(" + coll.DateColumn + ")").
		Scan(&v).Error
	if err != nil {
		return 0, fmt.Errorf("%s %s date: %w", agg, coll.Name, err)
	}
	if !v.Valid {
		return 0, nil
	}
	return v.Int64, nil
}

func (s *Store) InsertRecords(ctx context.Context, coll schema.Collection, records any) (int64, error) {
	if s == nil || s.db == nil {
		return 0, gorm.ErrInvalidDB
	}
	rv := reflect.ValueOf(records)
	if rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Slice && rv.Len() == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Model(coll.Model).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(records)
	if res.Error != nil {
		return 0, fmt.Errorf("insert %s: %w", coll.Name, res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) QueryRecords(ctx context.Context, coll schema.Collection, p repository.QueryParams) ([]map[string]any, int64, error) {
	if s == nil || s.db == nil {
		return nil, 0, gorm.ErrInvalidDB
	}
	scoped := func() *gorm.DB {
		q := s.recordScope(ctx, coll, repository.Filter{AccountID: p.AccountID, Symbol: p.Symbol})
		if coll.DateColumn != "" {
			if p.Start > 0 {
				q = q.Where(coll.DateColumn+" >= ?", p.Start)
			}
			if p.End > 0 {
				q = q.Where(coll.DateColumn+" <= ?", p.End)
			}
		}
		return q
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", coll.Name, err)
	}

	q := scoped()
	if coll.DateColumn != "" {
		dir := "DESC"
		if p.Asc {
			dir = "ASC"
		}
		q = q.Order(coll.DateColumn + " " + dir)
	}
	rows := []map[string]any{}
	err := q.Limit(normalizeLimit(p.Limit)).
		Offset(normalizeOffset(p.Offset)).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("query %s: %w", coll.Name, err)
	}
	return rows, total, nil
}

// ReplaceSymbols reconciles the stored pair list against the upstream one.
// An empty upstream list is treated as a failed read, never a full wipe.
func (s *Store) ReplaceSymbols(ctx context.Context, pairs []string) (added, removed int64, err error) {
	if len(pairs) == 0 {
		return 0, 0, nil
	}
	rows := make([]models.SymbolPair, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, models.SymbolPair{Pair: p})
	}
	err = s.InTx(ctx, func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
		if res.Error != nil {
			return res.Error
		}
		added = res.RowsAffected
		del := tx.Where("pair NOT IN ?", pairs).Delete(&models.SymbolPair{})
		if del.Error != nil {
			return del.Error
		}
		removed = del.RowsAffected
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("replace symbols: %w", err)
	}
	return added, removed, nil
}

func (s *Store) ReplaceCurrencies(ctx context.Context, items []models.Currency) (added, removed int64, err error) {
	if len(items) == 0 {
		return 0, 0, nil
	}
	codes := make([]string, 0, len(items))
	for _, c := range items {
		codes = append(codes, c.Code)
	}
	err = s.InTx(ctx, func(tx *gorm.DB) error {
		var before int64
		if err := tx.Model(&models.Currency{}).Count(&before).Error; err != nil {
			return err
		}
		// Upsert so label changes upstream flow through.
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"name"}),
		}).Create(&items)
		if res.Error != nil {
			return res.Error
		}
		var after int64
		if err := tx.Model(&models.Currency{}).Count(&after).Error; err != nil {
			return err
		}
		added = after - before
		del := tx.Where("code NOT IN ?", codes).Delete(&models.Currency{})
		if del.Error != nil {
			return del.Error
		}
		removed = del.RowsAffected
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("replace currencies: %w", err)
	}
	return added, removed, nil
}

func (s *Store) ActiveAccounts(ctx context.Context) ([]models.Account, error) {
	if s == nil || s.db == nil {
		return nil, gorm.ErrInvalidDB
	}
	var out []models.Account
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("active accounts: %w", err)
	}
	return out, nil
}

func (s *Store) GetCheckpoint(ctx context.Context, collection string, accountID uint64, symbol string) (*models.SyncCheckpoint, error) {
	if s == nil || s.db == nil {
		return nil, gorm.ErrInvalidDB
	}
	var cp models.SyncCheckpoint
	err := s.db.WithContext(ctx).
		Where("collection = ? AND account_id = ? AND symbol = ?", collection, accountID, symbol).
		First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %s: %w", collection, err)
	}
	return &cp, nil
}

func (s *Store) SaveCheckpoint(ctx context.Context, cp *models.SyncCheckpoint) error {
	if s == nil || s.db == nil {
		return gorm.ErrInvalidDB
	}
	if cp == nil {
		return errors.New("nil checkpoint")
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "collection"}, {Name: "account_id"}, {Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"cursor", "base_start_from", "base_start_to",
			"last_success_at", "last_attempt_at", "last_error", "stats_json",
		}),
	}).Create(cp).Error
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.Collection, err)
	}
	return nil
}

func (s *Store) ListCheckpoints(ctx context.Context) ([]models.SyncCheckpoint, error) {
	if s == nil || s.db == nil {
		return nil, gorm.ErrInvalidDB
	}
	var out []models.SyncCheckpoint
	err := s.db.WithContext(ctx).
		Order("collection ASC, account_id ASC, symbol ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	return out, nil
}

func (s *Store) GetProgress(ctx context.Context) (string, error) {
	if s == nil || s.db == nil {
		return "", gorm.ErrInvalidDB
	}
	var row models.SyncProgress
	err := s.db.WithContext(ctx).Where("key = ?", progressKey).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ProgressNotStarted, nil
	}
	if err != nil {
		return "", fmt.Errorf("get progress: %w", err)
	}
	return row.Value, nil
}

func (s *Store) SetProgress(ctx context.Context, value string) error {
	if s == nil || s.db == nil {
		return gorm.ErrInvalidDB
	}
	row := models.SyncProgress{Key: progressKey, Value: value}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("set progress: %w", err)
	}
	return nil
}

func (s *Store) InsertJob(ctx context.Context, job *models.SyncJob) error {
	if s == nil || s.db == nil {
		return gorm.ErrInvalidDB
	}
	if job == nil {
		return errors.New("nil job")
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("insert job %s: %w", job.Collection, err)
	}
	return nil
}

func (s *Store) ListJobsByStates(ctx context.Context, states []string, limit int) ([]models.SyncJob, error) {
	if s == nil || s.db == nil {
		return nil, gorm.ErrInvalidDB
	}
	q := s.db.WithContext(ctx).
		Where("state IN ?", states).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.SyncJob
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateJobState(ctx context.Context, id uint64, from []string, to string, lastErr *string) error {
	if s == nil || s.db == nil {
		return gorm.ErrInvalidDB
	}
	res := s.db.WithContext(ctx).
		Model(&models.SyncJob{}).
		Where("id = ? AND state IN ?", id, from).
		Updates(map[string]any{"state": to, "last_error": lastErr})
	if res.Error != nil {
		return fmt.Errorf("update job %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %d to %s: %w", id, to, repository.ErrJobStateConflict)
	}
	return nil
}

func (s *Store) DeleteJobsByState(ctx context.Context, state string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, gorm.ErrInvalidDB
	}
	res := s.db.WithContext(ctx).
		Where("state = ?", state).
		Delete(&models.SyncJob{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete %s jobs: %w", state, res.Error)
	}
	return res.RowsAffected, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultQueryLimit
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
