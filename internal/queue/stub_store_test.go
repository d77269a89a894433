package queue

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"tradesync/internal/models"
	"tradesync/internal/repository"
	"tradesync/internal/schema"
)

// stubStore is an in-memory Storage good enough for queue behavior: jobs
// and progress are real, record operations are inert.
type stubStore struct {
	mu       sync.Mutex
	nextID   uint64
	jobs     map[uint64]*models.SyncJob
	progress string
}

var _ repository.Storage = (*stubStore)(nil)

func newStubStore() *stubStore {
	return &stubStore{jobs: map[uint64]*models.SyncJob{}, progress: models.ProgressNotStarted}
}

func (s *stubStore) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func (s *stubStore) LastRecordDate(context.Context, schema.Collection, repository.Filter) (int64, error) {
	return 0, nil
}

func (s *stubStore) FirstRecordDate(context.Context, schema.Collection, repository.Filter) (int64, error) {
	return 0, nil
}

func (s *stubStore) InsertRecords(context.Context, schema.Collection, any) (int64, error) {
	return 0, nil
}

func (s *stubStore) QueryRecords(context.Context, schema.Collection, repository.QueryParams) ([]map[string]any, int64, error) {
	return nil, 0, nil
}

func (s *stubStore) ReplaceSymbols(context.Context, []string) (int64, int64, error) {
	return 0, 0, nil
}

func (s *stubStore) ReplaceCurrencies(context.Context, []models.Currency) (int64, int64, error) {
	return 0, 0, nil
}

func (s *stubStore) ActiveAccounts(context.Context) ([]models.Account, error) {
	return nil, nil
}

func (s *stubStore) GetCheckpoint(context.Context, string, uint64, string) (*models.SyncCheckpoint, error) {
	return nil, nil
}

func (s *stubStore) SaveCheckpoint(context.Context, *models.SyncCheckpoint) error {
	return nil
}

func (s *stubStore) ListCheckpoints(context.Context) ([]models.SyncCheckpoint, error) {
	return nil, nil
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

func (s *stubStore) InsertJob(_ context.Context, job *models.SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	job.ID = s.nextID
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *stubStore) ListJobsByStates(_ context.Context, states []string, limit int) ([]models.SyncJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := map[string]bool{}
	for _, st := range states {
		wanted[st] = true
	}
	var out []models.SyncJob
	for id := uint64(1); id <= s.nextID; id++ {
		job, ok := s.jobs[id]
		if !ok || !wanted[job.State] {
			continue
		}
		out = append(out, *job)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *stubStore) UpdateJobState(_ context.Context, id uint64, from []string, to string, lastErr *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %d: %w", id, repository.ErrJobStateConflict)
	}
	match := false
	for _, st := range from {
		if job.State == st {
			match = true
			break
		}
	}
	if !match {
		return fmt.Errorf("job %d in %s: %w", id, job.State, repository.ErrJobStateConflict)
	}
	job.State = to
	job.LastError = lastErr
	return nil
}

func (s *stubStore) DeleteJobsByState(_ context.Context, state string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, job := range s.jobs {
		if job.State == state {
			delete(s.jobs, id)
			n++
		}
	}
	return n, nil
}

func (s *stubStore) jobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *stubStore) jobByCollection(name string) *models.SyncJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := uint64(1); id <= s.nextID; id++ {
		if job, ok := s.jobs[id]; ok && job.Collection == name {
			cp := *job
			return &cp
		}
	}
	return nil
}
