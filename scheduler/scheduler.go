package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"rc_harvester/config"
)

// Job is one scheduled pass.
type Job func(ctx context.Context) error

type Scheduler struct {
	cfg    *config.SchedulerConfig
	job    Job
	cron   *cron.Cron
	ticker *time.Ticker
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func New(cfg *config.SchedulerConfig, job Job) *Scheduler {
	logger := cron.VerbosePrintfLogger(log.Default())
	return &Scheduler{
		cfg:    cfg,
		job:    job,
		cron:   cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		stopCh: make(chan struct{}),
	}
}

// Start registers the job on SCRAPE_CRON, or SCRAPE_INTERVAL when no cron
// expression is set. Passes never overlap.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.Cron != "" {
		log.Printf("Starting scheduler with cron: %s", s.cfg.Cron)
		_, err := s.cron.AddFunc(s.cfg.Cron, func() { s.run(ctx) })
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
		return nil
	}

	if s.cfg.Interval <= 0 {
		return fmt.Errorf("no schedule configured: set SCRAPE_CRON or SCRAPE_INTERVAL")
	}

	log.Printf("Starting scheduler with interval: %s", s.cfg.Interval)
	s.ticker = time.NewTicker(s.cfg.Interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.ticker.C:
				s.run(ctx)
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// TriggerNow runs the job on the caller's goroutine.
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	return s.job(ctx)
}

// StartImmediate runs one pass right away, then starts the schedule. A failed
// pass is logged and does not stop the schedule.
func (s *Scheduler) StartImmediate(ctx context.Context) error {
	if err := s.TriggerNow(ctx); err != nil {
		log.Printf("Initial run error: %v", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Start(ctx)
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := s.job(ctx); err != nil {
		log.Printf("Scheduled run error: %v", err)
		return
	}
	log.Printf("Scheduled run finished in %v", time.Since(start).Round(time.Second))
}

// Stop halts the schedule and waits for a running pass to return.
func (s *Scheduler) Stop() {
	s.once.Do(func() {
		<-s.cron.Stop().Done()
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.wg.Wait()
	})
}
