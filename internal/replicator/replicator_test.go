package replicator

import (
	"context"
	"errors"
	"testing"
	"time"

	"tradesync/internal/config"
	"tradesync/internal/fetcher"
)

type rec struct {
	id int64
	ts int64
}

func (r rec) ItemDate() int64 { return r.ts }

// dataset is a descending-by-date record set served page by page the way
// the upstream does: everything at or below end, newest first.
func dataset(n int, newest int64) []rec {
	out := make([]rec, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, rec{id: int64(n - i), ts: newest - int64(i)})
	}
	return out
}

func servePages(data []rec) PullFunc[rec] {
	return func(ctx context.Context, start, end int64, limit int) (Page[rec], error) {
		var page []rec
		for _, r := range data {
			if r.ts <= end {
				page = append(page, r)
			}
			if len(page) == limit {
				break
			}
		}
		return Page[rec]{Items: page}, nil
	}
}

func collector() (SinkFunc[rec], *[]rec) {
	var sunk []rec
	return func(ctx context.Context, items []rec) error {
		sunk = append(sunk, items...)
		return nil
	}, &sunk
}

func newTestFetcher(t *testing.T) *fetcher.Fetcher {
	t.Helper()
	return fetcher.New(config.FetchConfig{
		RateLimitBase:   time.Millisecond,
		NonceDelay:      time.Millisecond,
		NetworkInterval: time.Millisecond,
		UnexpectedDelay: time.Millisecond,
	}, nil)
}

func TestReplicateMultiPage(t *testing.T) {
	data := dataset(1120, 1120)
	sink, sunk := collector()

	stats, err := Replicate(context.Background(), newTestFetcher(t), "test", servePages(data), sink, Options{
		PageLimit: 500,
	})
	if err != nil {
		t.Fatalf("replicate: %v", err)
	}
	if stats.Records != 1120 || len(*sunk) != 1120 {
		t.Fatalf("records = %d (sunk %d), want 1120", stats.Records, len(*sunk))
	}
	if stats.Pages != 3 {
		t.Fatalf("pages = %d, want 3", stats.Pages)
	}
	if stats.MaxDate != 1120 {
		t.Fatalf("max date = %d, want 1120", stats.MaxDate)
	}
	if stats.MinDate != 1 {
		t.Fatalf("min date = %d, want 1", stats.MinDate)
	}
}

func TestReplicateResumesFromCheckpoint(t *testing.T) {
	data := dataset(1120, 1120)
	sink, sunk := collector()

	stats, err := Replicate(context.Background(), newTestFetcher(t), "test", servePages(data), sink, Options{
		Start:     1000,
		PageLimit: 500,
	})
	if err != nil {
		t.Fatalf("replicate: %v", err)
	}
	if stats.Records != 120 {
		t.Fatalf("records = %d, want 120", stats.Records)
	}
	for _, r := range *sunk {
		if r.ts <= 1000 {
			t.Fatalf("sunk record at %d, at or below checkpoint 1000", r.ts)
		}
	}
	if stats.MinDate != 1001 {
		t.Fatalf("min date = %d, want 1001", stats.MinDate)
	}
}

// Records sharing a timestamp across a page boundary must all survive.
// The upstream signals the safe resume point with its page cursor; the
// sink dedupes by key, so re-seeing a boundary row is harmless.
func TestReplicateSharedBoundaryTimestamp(t *testing.T) {
	pages := []Page[rec]{
		{Items: []rec{{id: 6, ts: 100}, {id: 5, ts: 100}, {id: 4, ts: 100}}, NextPage: 100},
		{Items: []rec{{id: 3, ts: 100}, {id: 2, ts: 90}, {id: 1, ts: 80}}},
	}
	call := 0
	pull := func(ctx context.Context, start, end int64, limit int) (Page[rec], error) {
		if call >= len(pages) {
			return Page[rec]{}, nil
		}
		p := pages[call]
		call++
		return p, nil
	}

	seen := map[int64]bool{}
	sink := func(ctx context.Context, items []rec) error {
		for _, r := range items {
			seen[r.id] = true
		}
		return nil
	}

	_, err := Replicate(context.Background(), newTestFetcher(t), "test", pull, sink, Options{PageLimit: 3})
	if err != nil {
		t.Fatalf("replicate: %v", err)
	}
	for id := int64(1); id <= 6; id++ {
		if !seen[id] {
			t.Fatalf("record %d lost at the page boundary", id)
		}
	}
}

func TestReplicateEmptyPageWithCursorRetriesOnce(t *testing.T) {
	var ends []int64
	call := 0
	pull := func(ctx context.Context, start, end int64, limit int) (Page[rec], error) {
		ends = append(ends, end)
		call++
		if call == 1 {
			return Page[rec]{NextPage: 500}, nil
		}
		return Page[rec]{Items: []rec{{id: 2, ts: 450}, {id: 1, ts: 440}}}, nil
	}
	sink, sunk := collector()

	stats, err := Replicate(context.Background(), newTestFetcher(t), "test", pull, sink, Options{PageLimit: 10})
	if err != nil {
		t.Fatalf("replicate: %v", err)
	}
	if stats.Records != 2 || len(*sunk) != 2 {
		t.Fatalf("records = %d, want 2", stats.Records)
	}
	if len(ends) != 2 || ends[1] != 500 {
		t.Fatalf("retry should reuse the suggested cursor, got ends %v", ends)
	}
}

func TestReplicateStopsAfterSecondEmptyPage(t *testing.T) {
	call := 0
	pull := func(ctx context.Context, start, end int64, limit int) (Page[rec], error) {
		call++
		return Page[rec]{NextPage: int64(1000 - call)}, nil
	}
	sink, _ := collector()

	stats, err := Replicate(context.Background(), newTestFetcher(t), "test", pull, sink, Options{PageLimit: 10})
	if err != nil {
		t.Fatalf("replicate: %v", err)
	}
	if stats.Records != 0 {
		t.Fatalf("records = %d, want 0", stats.Records)
	}
	if call != 2 {
		t.Fatalf("pull called %d times, want 2", call)
	}
}

func TestReplicateOverallLimit(t *testing.T) {
	data := dataset(1000, 1000)
	sink, sunk := collector()

	stats, err := Replicate(context.Background(), newTestFetcher(t), "test", servePages(data), sink, Options{
		PageLimit:    500,
		OverallLimit: 600,
	})
	if err != nil {
		t.Fatalf("replicate: %v", err)
	}
	if stats.Records != 600 || len(*sunk) != 600 {
		t.Fatalf("records = %d, want 600", stats.Records)
	}
	// newest 600 of 1000, so the oldest kept is 401
	if stats.MinDate != 401 {
		t.Fatalf("min date = %d, want 401", stats.MinDate)
	}
}

func TestReplicateSinkErrorStopsPass(t *testing.T) {
	data := dataset(100, 100)
	sinkErr := errors.New("disk full")
	sink := func(ctx context.Context, items []rec) error { return sinkErr }

	_, err := Replicate(context.Background(), newTestFetcher(t), "test", servePages(data), sink, Options{PageLimit: 50})
	if !errors.Is(err, sinkErr) {
		t.Fatalf("err = %v, want sink error", err)
	}
}

func TestReplicateRejectsZeroPageLimit(t *testing.T) {
	sink, _ := collector()
	if _, err := Replicate(context.Background(), newTestFetcher(t), "test", servePages(nil), sink, Options{}); err == nil {
		t.Fatalf("expected error for zero page limit")
	}
}
