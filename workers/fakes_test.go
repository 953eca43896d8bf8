package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rc_harvester/models"
	"rc_harvester/scraper"
	"rc_harvester/storage"
)

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

// fakeSearcher serves total results in pages of size. Listing URLs end in
// their 1-based position.
type fakeSearcher struct {
	total    int
	claimed  int // reported availableResults when it differs from total
	size     int
	requests []int
	failures map[int]error // page -> error returned once
}

func (f *fakeSearcher) PageSize() int { return f.size }

func (f *fakeSearcher) FetchPage(ctx context.Context, page int) (*scraper.SearchPage, error) {
	f.requests = append(f.requests, page)
	if err, ok := f.failures[page]; ok {
		delete(f.failures, page)
		return nil, err
	}
	sp := &scraper.SearchPage{Page: page, TotalResults: f.total}
	if f.claimed > 0 {
		sp.TotalResults = f.claimed
	}
	for i := (page-1)*f.size + 1; i <= page*f.size && i <= f.total; i++ {
		sp.URLs = append(sp.URLs, fmt.Sprintf("/for-sale/property-%d", 500000+i))
	}
	return sp, nil
}

type memCursors struct {
	cursors map[string]*models.DiscoveryCursor
	sets    int
}

func newMemCursors() *memCursors {
	return &memCursors{cursors: make(map[string]*models.DiscoveryCursor)}
}

func (m *memCursors) GetCursor(key string) (*models.DiscoveryCursor, error) {
	c, ok := m.cursors[key]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memCursors) SetCursor(c *models.DiscoveryCursor) error {
	cp := *c
	m.cursors[c.SearchKey] = &cp
	m.sets++
	return nil
}

// fakeDetails answers from a fixed map; unknown ids get a 404.
type fakeDetails struct {
	listings map[string]*scraper.DetailListing
	calls    []string
}

func (f *fakeDetails) FetchDetail(ctx context.Context, id string) (*scraper.DetailListing, error) {
	f.calls = append(f.calls, id)
	if d, ok := f.listings[id]; ok {
		return d, nil
	}
	return nil, &scraper.FetchError{Endpoint: "detail", StatusCode: 404}
}

func detailFor(id, street string) *scraper.DetailListing {
	d := &scraper.DetailListing{
		CanonicalPath:     "/for-sale/property-" + id,
		AvailableChannels: []string{"buy"},
		PropertyTypes:     []string{"Offices"},
	}
	d.Address.StreetAddress = street
	d.Address.Suburb = "Ryde"
	d.Address.SuburbAddress = "Ryde, NSW 2112"
	d.Price.ForSale.Display = "$1,000,000"
	return d
}

// flakyStore wraps a TableStore and fails the next n appends.
type flakyStore struct {
	storage.TableStore
	failNext int
	appends  int
}

func (f *flakyStore) Append(t *storage.Table, rows []storage.Row) error {
	f.appends++
	if f.failNext > 0 {
		f.failNext--
		return errors.New("disk full")
	}
	return f.TableStore.Append(t, rows)
}

type recordingMirror struct {
	ids     []string
	counted int
}

func (m *recordingMirror) CountListings(ctx context.Context) (int, error) {
	m.counted++
	return len(m.ids), nil
}

func (m *recordingMirror) UpsertListing(ctx context.Context, l *models.EnrichedListing) error {
	m.ids = append(m.ids, l.ID)
	return nil
}
