package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"tradesync/internal/models"
	"tradesync/internal/schema"
)

// ErrJobStateConflict means an expected queue row was not found during a
// state transition; fatal for that job only.
var ErrJobStateConflict = errors.New("job state conflict")

// Filter narrows generic record operations to one account and/or symbol.
// Zero values are ignored.
type Filter struct {
	AccountID uint64
	Symbol    string
}

// QueryParams shapes paginated local reads for the HTTP surface.
type QueryParams struct {
	AccountID uint64
	Symbol    string
	Start     int64
	End       int64
	Limit     int
	Offset    int
	Asc       bool
}

// Storage is everything the sync core needs from the relational store.
// Record operations are keyed by the schema descriptor so one
// implementation serves every collection.
type Storage interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// LastRecordDate returns the newest stored date for the collection
	// under the filter, 0 when nothing is stored.
	LastRecordDate(ctx context.Context, coll schema.Collection, f Filter) (int64, error)
	// FirstRecordDate is the backfill-boundary counterpart.
	FirstRecordDate(ctx context.Context, coll schema.Collection, f Filter) (int64, error)
	// InsertRecords persists a typed slice idempotently: duplicate-key
	// conflicts are no-ops. Returns the number of rows actually inserted.
	InsertRecords(ctx context.Context, coll schema.Collection, records any) (int64, error)
	// QueryRecords serves paginated local reads.
	QueryRecords(ctx context.Context, coll schema.Collection, p QueryParams) ([]map[string]any, int64, error)

	// ReplaceSymbols and ReplaceCurrencies reconcile the replace-whole-set
	// collections: missing-locally inserted, missing-upstream deleted.
	ReplaceSymbols(ctx context.Context, pairs []string) (added, removed int64, err error)
	ReplaceCurrencies(ctx context.Context, items []models.Currency) (added, removed int64, err error)

	ActiveAccounts(ctx context.Context) ([]models.Account, error)

	GetCheckpoint(ctx context.Context, collection string, accountID uint64, symbol string) (*models.SyncCheckpoint, error)
	SaveCheckpoint(ctx context.Context, cp *models.SyncCheckpoint) error
	ListCheckpoints(ctx context.Context) ([]models.SyncCheckpoint, error)

	GetProgress(ctx context.Context) (string, error)
	SetProgress(ctx context.Context, value string) error

	InsertJob(ctx context.Context, job *models.SyncJob) error
	// ListJobsByStates returns rows in insertion order.
	ListJobsByStates(ctx context.Context, states []string, limit int) ([]models.SyncJob, error)
	// UpdateJobState transitions id from one of the expected states;
	// ErrJobStateConflict when no such row exists.
	UpdateJobState(ctx context.Context, id uint64, from []string, to string, lastErr *string) error
	DeleteJobsByState(ctx context.Context, state string) (int64, error)
}
