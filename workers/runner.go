package workers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"rc_harvester/config"
	"rc_harvester/models"
	"rc_harvester/scraper"
	"rc_harvester/storage"
)

const lockTTL = 10 * time.Minute

// TableUploader publishes an exported table file.
type TableUploader interface {
	UploadTable(ctx context.Context, filePath string, now time.Time) (string, error)
}

// listingCounter is implemented by mirrors that can report their size.
type listingCounter interface {
	CountListings(ctx context.Context) (int, error)
}

// Runner ties the stages to their tables and the journal. Only one stage runs
// at a time.
type Runner struct {
	cfg       *config.Config
	journal   *storage.SQLiteStore
	searcher  scraper.Searcher
	fetcher   scraper.DetailFetcher
	mirror    ListingMirror
	searchKey string
	sleep     scraper.SleepFunc
	mu        sync.Mutex
}

func NewRunner(cfg *config.Config, journal *storage.SQLiteStore, searcher scraper.Searcher, fetcher scraper.DetailFetcher, searchKey string) *Runner {
	return &Runner{
		cfg:       cfg,
		journal:   journal,
		searcher:  searcher,
		fetcher:   fetcher,
		searchKey: searchKey,
		sleep:     scraper.Sleep,
	}
}

// SetMirror injects the optional Postgres mirror
func (r *Runner) SetMirror(m ListingMirror) {
	r.mirror = m
}

// SetSleep replaces the pacing and back-off sleep.
func (r *Runner) SetSleep(fn scraper.SleepFunc) {
	r.sleep = fn
}

func (r *Runner) RunDiscovery(ctx context.Context, restart bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runDiscovery(ctx, restart)
}

func (r *Runner) RunEnrichment(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runEnrichment(ctx)
}

// RunAll runs discovery to completion, then enrichment. Enrichment is skipped
// when discovery fails.
func (r *Runner) RunAll(ctx context.Context, restart bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.runDiscovery(ctx, restart); err != nil {
		return err
	}
	return r.runEnrichment(ctx)
}

// RunScheduled is one daemon pass. A crawl that reached the end of its
// results starts again from page 1; an unfinished one resumes.
func (r *Runner) RunScheduled(ctx context.Context) error {
	restart, err := r.crawlComplete()
	if err != nil {
		return err
	}
	return r.RunAll(ctx, restart)
}

func (r *Runner) crawlComplete() (bool, error) {
	cursor, err := r.journal.GetCursor(r.searchKey)
	if err != nil {
		return false, err
	}
	if cursor == nil || cursor.TotalResults == 0 {
		return false, nil
	}
	return cursor.LastPage*r.searcher.PageSize() >= cursor.TotalResults, nil
}

func (r *Runner) runDiscovery(ctx context.Context, restart bool) error {
	return r.runStage(ctx, models.StageDiscovery, r.cfg.Tables.Discovery, func(ctx context.Context, run *models.StageRun, logFn LogFunc) error {
		if restart {
			if err := r.journal.ResetCursor(r.searchKey); err != nil {
				return fmt.Errorf("reset page marker: %w", err)
			}
			logFn(models.LogLevelInfo, models.StageDiscovery, "Discovery: page marker reset")
		}

		acc, err := r.openTable("discovery", r.cfg.Tables.Discovery)
		if err != nil {
			return err
		}

		d := NewDiscovery(r.searcher, r.journal, acc, DiscoveryConfig{
			SearchKey:    r.searchKey,
			PageDelayMin: r.cfg.Pacing.PageDelayMin,
			PageDelayMax: r.cfg.Pacing.PageDelayMax,
			Retry: &scraper.RetryPolicy{
				MaxAttempts: r.cfg.Retry.MaxAttempts,
				BaseDelay:   r.cfg.Retry.BaseDelay,
				MaxDelay:    r.cfg.Retry.MaxDelay,
				Sleep:       r.sleep,
			},
			Sleep: r.sleep,
		})
		d.SetLogger(logFn)

		res, err := d.Run(ctx)
		if res != nil {
			run.Pages = res.Pages
			run.Records = res.Records
		}
		return err
	})
}

func (r *Runner) runEnrichment(ctx context.Context) error {
	return r.runStage(ctx, models.StageEnrichment, r.cfg.Tables.Enriched, func(ctx context.Context, run *models.StageRun, logFn LogFunc) error {
		input, err := storage.OpenTable(r.cfg.Tables.Discovery)
		if err != nil {
			return err
		}
		acc, err := r.openTable("enriched", r.cfg.Tables.Enriched)
		if err != nil {
			return err
		}

		w := NewEnrichmentWorker(r.fetcher, input, acc, EnrichmentConfig{
			SiteURL:     r.cfg.Search.SiteURL,
			RecordDelay: r.cfg.Pacing.RecordDelay,
			Sleep:       r.sleep,
		})
		w.SetLogger(logFn)
		if r.mirror != nil {
			w.SetMirror(r.mirror)
		}

		res, err := w.Run(ctx)
		if res != nil {
			run.Records = res.Enriched
			run.Skipped = res.Skipped
			run.Errors = res.Failed
		}
		if counter, ok := r.mirror.(listingCounter); ok && err == nil {
			if n, cerr := counter.CountListings(ctx); cerr != nil {
				logFn(models.LogLevelWarn, models.StageEnrichment, fmt.Sprintf("Enrichment: mirror count failed: %v", cerr))
			} else {
				log.Printf("Enrichment: mirror holds %d listings", n)
				logFn(models.LogLevelInfo, models.StageEnrichment, fmt.Sprintf("Enrichment: mirror holds %d listings", n))
			}
		}
		return err
	})
}

func (r *Runner) openTable(name, path string) (*Accumulator, error) {
	store, err := storage.OpenTable(path)
	if err != nil {
		return nil, err
	}
	return NewAccumulator(name, store)
}

// runStage holds the output table's lock and journals the run around fn.
func (r *Runner) runStage(ctx context.Context, stage models.Stage, tablePath string, fn func(context.Context, *models.StageRun, LogFunc) error) error {
	lock, err := storage.AcquireLock(tablePath, lockTTL)
	if err != nil {
		return err
	}
	defer lock.Release()
	log.Printf("Lock: holding %s", lock.Path())

	run := models.NewStageRun(stage)
	if err := r.journal.CreateRun(run); err != nil {
		log.Printf("Warning: failed to journal %s run: %v", stage, err)
	}
	logFn := func(level models.LogLevel, stage models.Stage, message string) {
		if err := r.journal.Log(run.ID, stage, level, message); err != nil {
			log.Printf("Warning: failed to journal log line: %v", err)
		}
	}

	err = fn(ctx, run, logFn)

	now := time.Now()
	run.FinishedAt = &now
	switch {
	case err == nil:
		run.Status = models.RunStatusCompleted
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		run.Status = models.RunStatusInterrupted
		run.Message = err.Error()
	default:
		run.Status = models.RunStatusFailed
		run.Message = err.Error()
	}
	if uerr := r.journal.UpdateRun(run); uerr != nil {
		log.Printf("Warning: failed to update %s run: %v", stage, uerr)
	}
	log.Printf("%s run %s: %s (pages %d, records %d, skipped %d, errors %d)",
		stage, run.ID.String()[:8], run.Status, run.Pages, run.Records, run.Skipped, run.Errors)
	return err
}

// Export writes an .xlsx copy of each table next to it and uploads the
// copies when an uploader is set. Tables that are already .xlsx are uploaded
// as they are.
func (r *Runner) Export(ctx context.Context, uploader TableUploader) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var exported []string
	for _, path := range []string{r.cfg.Tables.Discovery, r.cfg.Tables.Enriched} {
		out := path
		if !strings.EqualFold(filepath.Ext(path), ".xlsx") {
			src, err := storage.OpenTable(path)
			if err != nil {
				return exported, err
			}
			out = strings.TrimSuffix(path, filepath.Ext(path)) + ".xlsx"
			n, err := storage.Convert(src, storage.NewXLSXStore(out))
			if err != nil {
				return exported, fmt.Errorf("export %s: %w", path, err)
			}
			log.Printf("Export: %s -> %s (%d rows)", path, out, n)
		}
		exported = append(exported, out)

		if uploader != nil {
			key, err := uploader.UploadTable(ctx, out, time.Now())
			if err != nil {
				return exported, fmt.Errorf("upload %s: %w", out, err)
			}
			log.Printf("Export: uploaded %s to %s", out, key)
		}
	}
	return exported, nil
}
