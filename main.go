package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rc_harvester/config"
	"rc_harvester/httputil"
	"rc_harvester/identity"
	"rc_harvester/logging"
	"rc_harvester/metrics"
	"rc_harvester/models"
	"rc_harvester/scheduler"
	"rc_harvester/scraper"
	"rc_harvester/storage"
	"rc_harvester/workers"
)

var (
	stage   = flag.String("stage", "all", "Stage to run: discover, enrich or all")
	daemon  = flag.Bool("daemon", false, "Run on SCRAPE_CRON / SCRAPE_INTERVAL until stopped")
	restart = flag.Bool("restart", false, "Reset the discovery page marker and start from page 1")
	export  = flag.Bool("export", false, "Write .xlsx copies of both tables (and upload when S3_BUCKET is set)")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.LogFile)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	if err := run(cfg); err != nil {
		log.Printf("Error: %v", err)
		if logFile != nil {
			logFile.Close()
		}
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	log.Println("Starting rc_harvester...")
	log.Printf("Tables: discovery=%s enriched=%s", cfg.Tables.Discovery, cfg.Tables.Enriched)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	journal, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer journal.Close()
	log.Printf("SQLite journal: %s", cfg.DBPath)
	logLastRuns(journal)

	clients := httputil.NewClients(&cfg.HTTP)
	if cfg.HTTP.ProxyURL != "" {
		log.Printf("Proxy: %s", maskConnectionString(cfg.HTTP.ProxyURL))
	}

	searcher := scraper.NewSearchClient(cfg.Search, clients.Search)
	fetcher := scraper.NewDetailClient(cfg.Search, clients.Detail)
	searchKey := identity.SearchFingerprint(cfg.Search)
	log.Printf("Search %s: %d localities, page size %d", searchKey, len(cfg.Search.Localities), searcher.PageSize())

	runner := workers.NewRunner(cfg, journal, searcher, fetcher, searchKey)

	if cfg.Postgres.DSN != "" {
		pgStore, err := storage.NewPostgresStore(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("connect to Postgres: %w", err)
		}
		defer pgStore.Close()
		runner.SetMirror(pgStore)
		log.Printf("Mirroring listings to Postgres: %s", maskConnectionString(cfg.Postgres.DSN))
	}

	if cfg.MetricsAddr != "" {
		srv := metrics.Serve(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		log.Printf("Metrics on %s/metrics", cfg.MetricsAddr)
	}

	if *export {
		return runExport(ctx, cfg, runner)
	}

	if *daemon {
		return runDaemon(ctx, cfg, runner)
	}

	switch *stage {
	case "discover":
		return runner.RunDiscovery(ctx, *restart)
	case "enrich":
		return runner.RunEnrichment(ctx)
	case "all":
		return runner.RunAll(ctx, *restart)
	default:
		return fmt.Errorf("unknown stage %q (want discover, enrich or all)", *stage)
	}
}

func runDaemon(ctx context.Context, cfg *config.Config, runner *workers.Runner) error {
	job := runner.RunScheduled
	if *restart {
		restarted := false
		job = func(ctx context.Context) error {
			if !restarted {
				restarted = true
				return runner.RunAll(ctx, true)
			}
			return runner.RunScheduled(ctx)
		}
	}

	sched := scheduler.New(&cfg.Scheduler, job)
	if err := sched.StartImmediate(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("start scheduler: %w", err)
	}

	log.Println("Daemon running. Press Ctrl+C to stop.")
	<-ctx.Done()

	log.Println("Shutting down...")
	sched.Stop()
	log.Println("Goodbye!")
	return nil
}

func runExport(ctx context.Context, cfg *config.Config, runner *workers.Runner) error {
	var uploader workers.TableUploader
	if cfg.S3.Bucket != "" {
		s3Uploader, err := storage.NewS3Uploader(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Prefix:          cfg.S3.Prefix,
		})
		if err != nil {
			return fmt.Errorf("s3 uploader: %w", err)
		}
		uploader = s3Uploader
	}

	exported, err := runner.Export(ctx, uploader)
	if err != nil {
		return err
	}
	log.Printf("Exported %d tables", len(exported))
	return nil
}

func logLastRuns(journal *storage.SQLiteStore) {
	for _, s := range []models.Stage{models.StageDiscovery, models.StageEnrichment} {
		run, err := journal.GetLastRun(s)
		if err != nil {
			log.Printf("Warning: could not read last %s run: %v", s, err)
			continue
		}
		if run == nil {
			continue
		}
		log.Printf("Last %s run: %s at %s (records %d, errors %d)",
			s, run.Status, run.StartedAt.Format(time.RFC3339), run.Records, run.Errors)
	}
}

// maskConnectionString masks password in connection string for logging
func maskConnectionString(connStr string) string {
	start := 0
	for i := 0; i < len(connStr)-3; i++ {
		if connStr[i:i+3] == "://" {
			start = i + 3
			break
		}
	}
	if start == 0 {
		return connStr
	}

	colonIdx := -1
	atIdx := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' && colonIdx == -1 {
			colonIdx = i
		}
		if connStr[i] == '@' {
			atIdx = i
			break
		}
	}

	if colonIdx > 0 && atIdx > colonIdx {
		return connStr[:colonIdx+1] + "****" + connStr[atIdx:]
	}
	return connStr
}
