// Package replicator implements the cursor-based bulk-fetch loop. Naive
// "continue from last timestamp" pagination drops or duplicates records
// that share a boundary timestamp; this loop trims against the checkpoint,
// persists before advancing, and never steps past a boundary the upstream
// cursor has not drained.
package replicator

import (
	"context"
	"fmt"
	"time"

	"tradesync/internal/fetcher"
)

// Item is one fetched record positioned on the collection's date field.
type Item interface {
	ItemDate() int64
}

// Page is one upstream response: records sorted descending by date, plus
// an optional cursor for the next page.
type Page[T Item] struct {
	Items    []T
	NextPage int64
}

// PullFunc fetches one page in (start, end] with at most limit items.
type PullFunc[T Item] func(ctx context.Context, start, end int64, limit int) (Page[T], error)

// SinkFunc persists one page. It must be idempotent per unique key:
// replaying an overlapping range may hand it rows it has already seen.
type SinkFunc[T Item] func(ctx context.Context, items []T) error

type Options struct {
	// Start is the checkpoint lower bound; items at or before it are
	// already stored and get trimmed.
	Start int64
	// End is the initial upper cursor; 0 means now.
	End       int64
	PageLimit int
	// OverallLimit caps the records of one pass; 0 means unbounded.
	OverallLimit int
}

type Stats struct {
	Pages   int
	Records int
	// MaxDate is the newest persisted date, the caller's next checkpoint.
	MaxDate int64
	MinDate int64
}

// Replicate pulls every record newer than opts.Start into sink, paging
// backward from opts.End. Each page is persisted before the cursor
// advances, so an interrupted pass resumes without loss.
func Replicate[T Item](ctx context.Context, f *fetcher.Fetcher, op string, pull PullFunc[T], sink SinkFunc[T], opts Options) (Stats, error) {
	var stats Stats
	if opts.PageLimit <= 0 {
		return stats, fmt.Errorf("page limit must be positive")
	}
	end := opts.End
	if end == 0 {
		end = time.Now().UnixMilli()
	}

	emptyRetried := false
	for {
		var page Page[T]
		err := f.Run(ctx, op, func(ctx context.Context) error {
			p, err := pull(ctx, opts.Start, end, opts.PageLimit)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return stats, err
		}

		if len(page.Items) == 0 {
			// Upstream pagination can surface a transient empty
			// intermediate page while still suggesting a cursor; retry
			// once at it.
			if page.NextPage > 0 && !emptyRetried {
				emptyRetried = true
				end = page.NextPage
				continue
			}
			return stats, nil
		}
		emptyRetried = false

		items := page.Items
		drained := false
		for opts.Start > 0 && len(items) > 0 && items[len(items)-1].ItemDate() <= opts.Start {
			items = items[:len(items)-1]
			drained = true
		}
		if opts.OverallLimit > 0 && stats.Records+len(items) >= opts.OverallLimit {
			items = items[:opts.OverallLimit-stats.Records]
			drained = true
		}
		if len(items) == 0 {
			return stats, nil
		}

		if err := sink(ctx, items); err != nil {
			return stats, err
		}

		stats.Pages++
		stats.Records += len(items)
		if first := items[0].ItemDate(); first > stats.MaxDate {
			stats.MaxDate = first
		}
		last := items[len(items)-1].ItemDate()
		stats.MinDate = last

		if drained {
			return stats, nil
		}
		if page.NextPage > 0 {
			end = page.NextPage
			continue
		}
		if len(page.Items) < opts.PageLimit {
			// A short page with no cursor means the upstream is drained.
			return stats, nil
		}
		end = last - 1
	}
}
