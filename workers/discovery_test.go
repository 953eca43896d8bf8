package workers

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"rc_harvester/models"
	"rc_harvester/scraper"
	"rc_harvester/storage"
)

const testSearchKey = "test-search"

func newDiscovery(t *testing.T, searcher *fakeSearcher, cursors *memCursors, store storage.TableStore, sleep scraper.SleepFunc) *Discovery {
	t.Helper()
	acc, err := NewAccumulator("discovery", store)
	if err != nil {
		t.Fatalf("accumulator: %v", err)
	}
	if sleep == nil {
		sleep = noSleep
	}
	return NewDiscovery(searcher, cursors, acc, DiscoveryConfig{
		SearchKey:    testSearchKey,
		PageDelayMin: 10 * time.Second,
		PageDelayMax: 15 * time.Second,
		Retry:        &scraper.RetryPolicy{MaxAttempts: 3, BaseDelay: 30 * time.Second, Sleep: sleep},
		Sleep:        sleep,
	})
}

func loadRows(t *testing.T, path string) *storage.Table {
	t.Helper()
	tbl, err := storage.NewCSVStore(path).Load()
	if err != nil {
		t.Fatalf("load %s: %v", path, err)
	}
	return tbl
}

func TestDiscovery_StopsAfterLastPage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.csv")
	searcher := &fakeSearcher{total: 250, size: 100}
	cursors := newMemCursors()

	d := newDiscovery(t, searcher, cursors, storage.NewCSVStore(path), nil)
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if !slices.Equal(searcher.requests, []int{1, 2, 3}) {
		t.Fatalf("expected pages 1..3, got %v", searcher.requests)
	}
	if res.Pages != 3 || res.Records != 250 || res.TotalResults != 250 {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := loadRows(t, path).Len(); got != 250 {
		t.Fatalf("expected 250 rows on disk, got %d", got)
	}
	if c := cursors.cursors[testSearchKey]; c == nil || c.LastPage != 3 || c.TotalResults != 250 {
		t.Fatalf("unexpected marker %+v", c)
	}
}

func TestDiscovery_ResumesFromMarker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.csv")
	cursors := newMemCursors()
	cursors.SetCursor(&models.DiscoveryCursor{SearchKey: testSearchKey, LastPage: 2, TotalResults: 250})

	searcher := &fakeSearcher{total: 250, size: 100}
	d := newDiscovery(t, searcher, cursors, storage.NewCSVStore(path), nil)
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.StartPage != 3 {
		t.Fatalf("expected start page 3, got %d", res.StartPage)
	}
	if !slices.Equal(searcher.requests, []int{3}) {
		t.Fatalf("expected only page 3, got %v", searcher.requests)
	}
	if got := loadRows(t, path).Len(); got != 50 {
		t.Fatalf("expected 50 rows, got %d", got)
	}
}

func TestDiscovery_FallsBackToRowCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.csv")
	store := storage.NewCSVStore(path)
	tbl := storage.NewTable([]string{models.ColListingURL})
	for i := 0; i < 200; i++ {
		tbl.Rows = append(tbl.Rows, storage.Row{models.ColListingURL: "/for-sale/x-1"})
	}
	if err := store.Save(tbl); err != nil {
		t.Fatalf("seed: %v", err)
	}

	searcher := &fakeSearcher{total: 250, size: 100}
	d := newDiscovery(t, searcher, newMemCursors(), storage.NewCSVStore(path), nil)
	start, err := d.StartPage()
	if err != nil {
		t.Fatalf("start page: %v", err)
	}
	if start != 3 {
		t.Fatalf("expected start page 3 from 200 rows, got %d", start)
	}
}

func TestDiscovery_StopsOnEmptyPage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.csv")
	searcher := &fakeSearcher{total: 150, claimed: 1000, size: 100}

	d := newDiscovery(t, searcher, newMemCursors(), storage.NewCSVStore(path), nil)
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !slices.Equal(searcher.requests, []int{1, 2, 3}) {
		t.Fatalf("expected pages 1..3, got %v", searcher.requests)
	}
	if res.Records != 150 || res.LastPage != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestDiscovery_FailedAppendStaysPending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.csv")
	store := &flakyStore{TableStore: storage.NewCSVStore(path), failNext: 1}
	cursors := newMemCursors()
	searcher := &fakeSearcher{total: 250, size: 100}

	d := newDiscovery(t, searcher, cursors, store, nil)
	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if cursors.sets != 2 {
		t.Fatalf("marker must not advance past an unsaved page: %d sets", cursors.sets)
	}
	if got := loadRows(t, path).Len(); got != 250 {
		t.Fatalf("expected pending rows flushed with the next page, got %d rows", got)
	}
}

func TestDiscovery_RetriesTransientFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.csv")
	searcher := &fakeSearcher{
		total:    250,
		size:     100,
		failures: map[int]error{2: &scraper.FetchError{Endpoint: "search", StatusCode: 503}},
	}

	var sleeps []time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	d := newDiscovery(t, searcher, newMemCursors(), storage.NewCSVStore(path), sleep)
	d.cfg.RandIntN = func(n int) int { return n - 1 }
	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if !slices.Equal(searcher.requests, []int{1, 2, 2, 3}) {
		t.Fatalf("expected page 2 retried once, got %v", searcher.requests)
	}
	want := []time.Duration{15 * time.Second, 30 * time.Second, 15 * time.Second}
	if !slices.Equal(sleeps, want) {
		t.Fatalf("expected sleeps %v, got %v", want, sleeps)
	}
}

func TestDiscovery_FatalErrorKeepsProgress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.csv")
	cursors := newMemCursors()
	searcher := &fakeSearcher{
		total:    250,
		size:     100,
		failures: map[int]error{2: &scraper.FetchError{Endpoint: "search", StatusCode: 403}},
	}

	d := newDiscovery(t, searcher, cursors, storage.NewCSVStore(path), nil)
	_, err := d.Run(context.Background())
	var fe *scraper.FetchError
	if !errors.As(err, &fe) || fe.StatusCode != 403 {
		t.Fatalf("expected fatal 403, got %v", err)
	}
	if c := cursors.cursors[testSearchKey]; c == nil || c.LastPage != 1 {
		t.Fatalf("expected marker at page 1, got %+v", c)
	}
	if got := loadRows(t, path).Len(); got != 100 {
		t.Fatalf("expected page 1 rows kept, got %d", got)
	}
}

func TestDiscovery_PageDelayRange(t *testing.T) {
	d := &Discovery{cfg: DiscoveryConfig{PageDelayMin: 10 * time.Second, PageDelayMax: 15 * time.Second}}
	d.cfg.RandIntN = func(n int) int {
		if n != 6 {
			t.Fatalf("expected 6 whole-second choices, got %d", n)
		}
		return 0
	}
	if got := d.pageDelay(); got != 10*time.Second {
		t.Fatalf("expected 10s, got %v", got)
	}
}
