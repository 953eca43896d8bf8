package workers

import (
	"context"
	"fmt"
	"log"
	"time"

	"rc_harvester/identity"
	"rc_harvester/metrics"
	"rc_harvester/models"
	"rc_harvester/scraper"
	"rc_harvester/storage"
)

// ListingMirror receives every enriched listing once it is in the table.
type ListingMirror interface {
	UpsertListing(ctx context.Context, l *models.EnrichedListing) error
}

type EnrichmentConfig struct {
	SiteURL     string
	RecordDelay time.Duration
	Sleep       scraper.SleepFunc
	Now         func() time.Time
}

// EnrichmentWorker fetches the detail record of every discovered listing that
// is not yet in the enriched table.
type EnrichmentWorker struct {
	fetcher scraper.DetailFetcher
	input   storage.TableStore
	acc     *Accumulator
	mirror  ListingMirror
	cfg     EnrichmentConfig
	logFn   LogFunc
}

type EnrichmentResult struct {
	InputRows int
	Dropped   int // no identifier in the URL
	Skipped   int // already enriched or repeated in the input
	Enriched  int
	Failed    int
	Unsaved   int
}

func NewEnrichmentWorker(fetcher scraper.DetailFetcher, input storage.TableStore, acc *Accumulator, cfg EnrichmentConfig) *EnrichmentWorker {
	if cfg.Sleep == nil {
		cfg.Sleep = scraper.Sleep
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &EnrichmentWorker{
		fetcher: fetcher,
		input:   input,
		acc:     acc,
		cfg:     cfg,
		logFn:   NoOpLogger,
	}
}

// SetLogger sets the journal logger
func (w *EnrichmentWorker) SetLogger(fn LogFunc) {
	w.logFn = fn
}

// SetMirror sets an optional secondary store for enriched listings.
func (w *EnrichmentWorker) SetMirror(m ListingMirror) {
	w.mirror = m
}

type workItem struct {
	id  string
	row storage.Row
}

func (w *EnrichmentWorker) Run(ctx context.Context) (*EnrichmentResult, error) {
	in, err := w.input.Load()
	if err != nil {
		return nil, fmt.Errorf("load input table %s: %w", w.input.Path(), err)
	}
	if !in.HasColumn(models.ColListingURL) {
		return nil, fmt.Errorf("input table %s has no %q column", w.input.Path(), models.ColListingURL)
	}

	result := &EnrichmentResult{InputRows: in.Len()}
	processed := ProcessedIDs(w.acc.Table())
	queue := w.buildQueue(in, processed, result)

	w.acc.EnsureColumns(extraColumns(in.Columns)...)
	w.acc.EnsureColumns(models.EnrichedColumns...)

	w.log(models.LogLevelInfo, fmt.Sprintf("Enrichment: %d input rows, %d already enriched, %d to fetch",
		result.InputRows, len(processed), len(queue)))

	pending := make(map[string]*models.EnrichedListing)
	for i, item := range queue {
		if err := ctx.Err(); err != nil {
			result.Unsaved = w.acc.Pending()
			w.acc.Close()
			return result, err
		}

		detail, err := w.fetcher.FetchDetail(ctx, item.id)
		var listing *models.EnrichedListing
		if err != nil {
			if ctx.Err() != nil {
				result.Unsaved = w.acc.Pending()
				w.acc.Close()
				return result, ctx.Err()
			}
			result.Failed++
			metrics.RecordsEnriched.WithLabelValues("failure").Inc()
			w.log(models.LogLevelError, fmt.Sprintf("Enrichment: listing %s failed: %v", item.id, err))
		} else {
			listing = detail.Enriched(item.id, w.cfg.SiteURL, w.cfg.Now())
			pending[item.id] = listing
			result.Enriched++
			metrics.RecordsEnriched.WithLabelValues("success").Inc()
			log.Printf("Enrichment: [%d/%d] %s %s, %s", i+1, len(queue), item.id, listing.StreetName, listing.Suburb)
		}

		w.acc.Add(mergeRow(item.row, listing))
		flushed, err := w.acc.Commit()
		if err != nil {
			w.log(models.LogLevelWarn, fmt.Sprintf("Enrichment: write failed, %d rows pending: %v", w.acc.Pending(), err))
		}
		for _, row := range flushed {
			id := row[models.ColListingID]
			if id == "" {
				continue
			}
			processed[id] = struct{}{}
			if l, ok := pending[id]; ok {
				w.mirrorListing(ctx, l)
				delete(pending, id)
			}
		}

		if err := w.cfg.Sleep(ctx, w.cfg.RecordDelay); err != nil {
			result.Unsaved = w.acc.Pending()
			w.acc.Close()
			return result, err
		}
	}

	if err := w.acc.Close(); err != nil {
		result.Unsaved = w.acc.Pending()
	}
	w.log(models.LogLevelInfo, fmt.Sprintf("Enrichment: complete, %d enriched, %d failed, %d skipped, %d rows in %s",
		result.Enriched, result.Failed, result.Skipped, w.acc.Len(), w.acc.Path()))
	return result, nil
}

// buildQueue keeps the first input row of every identifier that is not yet
// processed.
func (w *EnrichmentWorker) buildQueue(in *storage.Table, processed map[string]struct{}, result *EnrichmentResult) []workItem {
	seen := make(map[string]struct{}, in.Len())
	var queue []workItem
	for _, row := range in.Rows {
		id, ok := identity.ExtractListingID(row[models.ColListingURL])
		if !ok {
			result.Dropped++
			continue
		}
		if _, done := processed[id]; done {
			result.Skipped++
			metrics.RecordsEnriched.WithLabelValues("skipped").Inc()
			continue
		}
		if _, dup := seen[id]; dup {
			result.Skipped++
			continue
		}
		seen[id] = struct{}{}
		queue = append(queue, workItem{id: id, row: row})
	}
	return queue
}

func (w *EnrichmentWorker) mirrorListing(ctx context.Context, l *models.EnrichedListing) {
	if w.mirror == nil {
		return
	}
	if err := w.mirror.UpsertListing(ctx, l); err != nil {
		w.log(models.LogLevelWarn, fmt.Sprintf("Enrichment: mirror upsert %s failed: %v", l.ID, err))
	}
}

func (w *EnrichmentWorker) log(level models.LogLevel, message string) {
	log.Printf("[%s] %s", level, message)
	w.logFn(level, models.StageEnrichment, message)
}

// ProcessedIDs is the identifier set of an enriched table. Rows written
// before the Listing ID column existed fall back to their URL.
func ProcessedIDs(t *storage.Table) map[string]struct{} {
	ids := make(map[string]struct{}, t.Len())
	for _, row := range t.Rows {
		id := row[models.ColListingID]
		if id == "" {
			id, _ = identity.ExtractListingID(row[models.ColListingURL])
		}
		if id != "" {
			ids[id] = struct{}{}
		}
	}
	return ids
}

// mergeRow overlays the enriched fields on the input row minus its URL and
// identifier. A nil listing yields empty enriched fields.
func mergeRow(input storage.Row, l *models.EnrichedListing) storage.Row {
	out := make(storage.Row, len(input)+len(models.EnrichedColumns))
	for k, v := range input {
		if k == models.ColListingURL || k == models.ColListingID {
			continue
		}
		out[k] = v
	}
	for k, v := range l.Fields() {
		out[k] = v
	}
	return out
}

func extraColumns(cols []string) []string {
	var out []string
	for _, c := range cols {
		if c == models.ColListingURL || c == models.ColListingID {
			continue
		}
		out = append(out, c)
	}
	return out
}
