// Package queue is the durable sync job queue. Jobs survive restarts in
// the sync_jobs table; a drain processes them in insertion order, one at
// a time, blending per-job progress into the single reported value.
package queue

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tradesync/internal/fetcher"
	"tradesync/internal/models"
	"tradesync/internal/repository"
	"tradesync/internal/schema"
)

// Syncer runs validated sync passes. Satisfied by the sync engine.
type Syncer interface {
	Registry() *schema.Registry
	Allowed(name string) ([]schema.Collection, error)
	Sync(ctx context.Context, name string, onProgress func(int)) error
}

// drainCap bounds one drain so a runaway producer cannot starve the
// process loop.
const drainCap = 100

type Queue struct {
	store  repository.Storage
	engine Syncer
	logger *zap.Logger

	mu        sync.Mutex
	recovered bool
}

func New(store repository.Storage, engine Syncer, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{store: store, engine: engine, logger: logger}
}

// Add enqueues a sync of name (a collection or meta-value). The name is
// validated against the registry and allow-list before any row is
// written. A pending job for the same collection, or a pending catch-all,
// makes Add a no-op returning the pending job's public id.
func (q *Queue) Add(ctx context.Context, name string) (string, error) {
	canonical, err := q.canonicalName(name)
	if err != nil {
		return "", err
	}

	pending, err := q.store.ListJobsByStates(ctx, []string{models.JobStateNew, models.JobStateLocked, models.JobStateError}, 0)
	if err != nil {
		return "", err
	}
	for _, job := range pending {
		if job.Collection == models.JobCollectionAll || job.Collection == canonical {
			return job.PublicID, nil
		}
	}

	job := &models.SyncJob{
		PublicID:   uuid.NewString(),
		Collection: canonical,
		State:      models.JobStateNew,
	}
	if err := q.store.InsertJob(ctx, job); err != nil {
		return "", err
	}
	q.logger.Info("sync job queued", zap.String("collection", canonical),
		zap.String("job_id", job.PublicID))
	return job.PublicID, nil
}

// canonicalName validates name and normalizes it: meta-values uppercase,
// concrete collections to their registry spelling.
func (q *Queue) canonicalName(name string) (string, error) {
	if _, err := q.engine.Allowed(name); err != nil {
		return "", err
	}
	if schema.IsMeta(name) {
		return strings.ToUpper(strings.TrimSpace(name)), nil
	}
	coll, err := q.engine.Registry().Get(name)
	if err != nil {
		return "", err
	}
	return coll.Name, nil
}

// Process drains pending jobs. Concurrent calls are collapsed: a drain
// already in flight makes Process return immediately. The first drain
// after startup requeues jobs a crash left LOCKED.
func (q *Queue) Process(ctx context.Context) error {
	if !q.mu.TryLock() {
		return nil
	}
	defer q.mu.Unlock()

	if !q.recovered {
		if err := q.recoverStale(ctx); err != nil {
			return err
		}
		q.recovered = true
	}

	// ERROR rows stay eligible for re-pick until they succeed.
	jobs, err := q.store.ListJobsByStates(ctx, []string{models.JobStateNew, models.JobStateError}, drainCap)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return nil
	}

	total := len(jobs)
	clean := true
	for i, job := range jobs {
		if err := q.store.UpdateJobState(ctx, job.ID, []string{models.JobStateNew, models.JobStateError}, models.JobStateLocked, nil); err != nil {
			if errors.Is(err, repository.ErrJobStateConflict) {
				// someone else took it
				continue
			}
			return err
		}

		runErr := q.engine.Sync(ctx, job.Collection, func(p int) {
			q.setProgress(ctx, strconv.Itoa(blend(i, total, p)))
		})
		if runErr == nil {
			if err := q.store.UpdateJobState(ctx, job.ID, []string{models.JobStateLocked}, models.JobStateFinished, nil); err != nil {
				if !errors.Is(err, repository.ErrJobStateConflict) {
					return err
				}
				// lost the row to another actor; the drain moves on
				q.logger.Warn("job state changed underneath",
					zap.String("job_id", job.PublicID), zap.Error(err))
			}
			continue
		}

		clean = false
		msg := runErr.Error()
		switch {
		case errors.Is(runErr, fetcher.ErrInterrupted):
			q.setProgress(ctx, "interrupted")
		case fetcher.IsAuth(runErr):
			q.setProgress(ctx, "unauthenticated")
		default:
			q.setProgress(ctx, msg)
		}
		if err := q.store.UpdateJobState(ctx, job.ID, []string{models.JobStateLocked}, models.JobStateError, &msg); err != nil {
			if !errors.Is(err, repository.ErrJobStateConflict) {
				return err
			}
			q.logger.Warn("job state changed underneath",
				zap.String("job_id", job.PublicID), zap.Error(err))
		}
		q.logger.Warn("sync job failed", zap.String("collection", job.Collection),
			zap.String("job_id", job.PublicID), zap.Error(runErr))
		if errors.Is(runErr, fetcher.ErrInterrupted) {
			return runErr
		}
	}

	if _, err := q.store.DeleteJobsByState(ctx, models.JobStateFinished); err != nil {
		return err
	}
	if clean {
		q.setProgress(ctx, "100")
	}
	return nil
}

// recoverStale requeues jobs a previous process crashed while holding.
func (q *Queue) recoverStale(ctx context.Context) error {
	stale, err := q.store.ListJobsByStates(ctx, []string{models.JobStateLocked}, 0)
	if err != nil {
		return err
	}
	for _, job := range stale {
		q.logger.Warn("requeueing job left locked by a previous run",
			zap.String("collection", job.Collection), zap.String("job_id", job.PublicID))
		err := q.store.UpdateJobState(ctx, job.ID, []string{models.JobStateLocked}, models.JobStateNew, nil)
		if err != nil && !errors.Is(err, repository.ErrJobStateConflict) {
			return err
		}
	}
	return nil
}

// setProgress must land even when the run was cancelled, so it detaches
// from ctx's cancellation.
func (q *Queue) setProgress(ctx context.Context, value string) {
	if err := q.store.SetProgress(context.WithoutCancel(ctx), value); err != nil {
		q.logger.Error("save progress", zap.Error(err))
	}
}

// blend folds job i's own 0-100 progress into the whole-drain value.
func blend(i, total, p int) int {
	if total <= 0 {
		return 0
	}
	v := int(math.Round((float64(i) + float64(p)/100) / float64(total) * 100))
	if v > 100 {
		v = 100
	}
	return v
}

// Progress returns the last reported progress value.
func (q *Queue) Progress(ctx context.Context) (string, error) {
	return q.store.GetProgress(ctx)
}
