package workers

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"rc_harvester/metrics"
	"rc_harvester/models"
	"rc_harvester/scraper"
	"rc_harvester/storage"
)

// CursorStore persists the last page whose rows reached the table.
type CursorStore interface {
	GetCursor(searchKey string) (*models.DiscoveryCursor, error)
	SetCursor(c *models.DiscoveryCursor) error
}

type DiscoveryConfig struct {
	SearchKey    string
	PageDelayMin time.Duration
	PageDelayMax time.Duration
	Retry        *scraper.RetryPolicy
	Sleep        scraper.SleepFunc
	RandIntN     func(n int) int
}

// Discovery pages through search results and appends one row per listing
// URL to the discovery table.
type Discovery struct {
	searcher scraper.Searcher
	cursors  CursorStore
	acc      *Accumulator
	cfg      DiscoveryConfig
	logFn    LogFunc
}

type DiscoveryResult struct {
	StartPage    int
	LastPage     int
	Pages        int
	Records      int
	TotalResults int
}

func NewDiscovery(searcher scraper.Searcher, cursors CursorStore, acc *Accumulator, cfg DiscoveryConfig) *Discovery {
	if cfg.Retry == nil {
		cfg.Retry = &scraper.RetryPolicy{MaxAttempts: 5, BaseDelay: 30 * time.Second, MaxDelay: 5 * time.Minute}
	}
	if cfg.Sleep == nil {
		cfg.Sleep = scraper.Sleep
	}
	if cfg.RandIntN == nil {
		cfg.RandIntN = rand.IntN
	}
	return &Discovery{
		searcher: searcher,
		cursors:  cursors,
		acc:      acc,
		cfg:      cfg,
		logFn:    NoOpLogger,
	}
}

// SetLogger sets the journal logger
func (d *Discovery) SetLogger(fn LogFunc) {
	d.logFn = fn
}

// StartPage is one past the stored marker. Without a marker it is inferred
// from the rows already in the table.
func (d *Discovery) StartPage() (int, error) {
	cursor, err := d.cursors.GetCursor(d.cfg.SearchKey)
	if err != nil {
		return 0, fmt.Errorf("read page marker: %w", err)
	}
	if cursor != nil {
		return cursor.LastPage + 1, nil
	}
	size := d.searcher.PageSize()
	if size <= 0 {
		return 1, nil
	}
	return d.acc.Len()/size + 1, nil
}

func (d *Discovery) Run(ctx context.Context) (*DiscoveryResult, error) {
	d.acc.EnsureColumns(models.ColListingURL)

	page, err := d.StartPage()
	if err != nil {
		return nil, err
	}
	size := d.searcher.PageSize()
	result := &DiscoveryResult{StartPage: page}
	d.log(models.LogLevelInfo, fmt.Sprintf("Discovery: starting at page %d (%d rows in %s)", page, d.acc.Len(), d.acc.Path()))

	totalKnown := false
	for {
		var sp *scraper.SearchPage
		outcome, err := d.cfg.Retry.Do(ctx, fmt.Sprintf("search page %d", page), func(ctx context.Context) error {
			var fetchErr error
			sp, fetchErr = d.searcher.FetchPage(ctx, page)
			return fetchErr
		})
		if outcome != scraper.OutcomeSuccess {
			d.flushPending(page-1, result)
			return result, fmt.Errorf("discovery page %d (%s): %w", page, outcome, err)
		}

		if !totalKnown {
			result.TotalResults = sp.TotalResults
			totalKnown = true
			d.log(models.LogLevelInfo, fmt.Sprintf("Discovery: %d results available", sp.TotalResults))
		}

		if len(sp.URLs) == 0 {
			d.log(models.LogLevelInfo, fmt.Sprintf("Discovery: page %d returned no results, stopping", page))
			break
		}

		rows := make([]storage.Row, 0, len(sp.URLs))
		for _, u := range sp.URLs {
			if u == "" {
				continue
			}
			rows = append(rows, storage.Row{models.ColListingURL: u})
		}
		d.acc.Add(rows...)
		metrics.PagesFetched.Inc()
		result.Pages++
		result.Records += len(rows)

		if err := d.flush(page, result); err != nil {
			d.log(models.LogLevelWarn, fmt.Sprintf("Discovery: page %d not saved, %d rows pending: %v", page, d.acc.Pending(), err))
		} else {
			log.Printf("Discovery: page %d saved, %d listings so far", page, d.acc.Len())
		}

		page++
		if size > 0 && (page-1)*size >= result.TotalResults {
			break
		}

		delay := d.pageDelay()
		log.Printf("Discovery: waiting %v before page %d", delay, page)
		if err := d.cfg.Sleep(ctx, delay); err != nil {
			d.flushPending(page-1, result)
			return result, err
		}
	}

	if err := d.flushPending(page-1, result); err != nil {
		return result, fmt.Errorf("final write: %w", err)
	}
	d.log(models.LogLevelInfo, fmt.Sprintf("Discovery: complete, %d pages fetched, %d listings in %s", result.Pages, d.acc.Len(), d.acc.Path()))
	return result, nil
}

// flush writes pending rows and, once they are on disk, moves the marker to
// page.
func (d *Discovery) flush(page int, result *DiscoveryResult) error {
	if _, err := d.acc.Commit(); err != nil {
		return err
	}
	result.LastPage = page
	cursor := &models.DiscoveryCursor{SearchKey: d.cfg.SearchKey, LastPage: page, TotalResults: result.TotalResults}
	if err := d.cursors.SetCursor(cursor); err != nil {
		d.log(models.LogLevelWarn, fmt.Sprintf("Discovery: failed to save page marker %d: %v", page, err))
	}
	return nil
}

func (d *Discovery) flushPending(page int, result *DiscoveryResult) error {
	if d.acc.Pending() == 0 {
		return nil
	}
	if err := d.flush(page, result); err != nil {
		d.log(models.LogLevelError, fmt.Sprintf("Discovery: %d rows could not be written: %v", d.acc.Pending(), err))
		return err
	}
	return nil
}

// pageDelay is a whole number of seconds in [PageDelayMin, PageDelayMax].
func (d *Discovery) pageDelay() time.Duration {
	lo := int(d.cfg.PageDelayMin / time.Second)
	hi := int(d.cfg.PageDelayMax / time.Second)
	if hi <= lo {
		return d.cfg.PageDelayMin
	}
	return time.Duration(lo+d.cfg.RandIntN(hi-lo+1)) * time.Second
}

func (d *Discovery) log(level models.LogLevel, message string) {
	log.Printf("[%s] %s", level, message)
	d.logFn(level, models.StageDiscovery, message)
}
