package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PagesFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_pages_fetched_total",
			Help: "Search result pages fetched and saved.",
		},
	)

	RecordsEnriched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_records_enriched_total",
			Help: "Listings processed by enrichment.",
		},
		[]string{"result"}, // success, failure, skipped
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvester_fetch_duration_seconds",
			Help:    "Duration of API calls.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"endpoint", "status"},
	)

	FetchRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_fetch_retries_total",
			Help: "Retried API calls.",
		},
		[]string{"operation"},
	)

	TableWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_table_writes_total",
			Help: "Table append/rewrite attempts.",
		},
		[]string{"table", "result"},
	)
)

// Serve exposes /metrics on addr. Errors are logged, never fatal.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server error: %v", err)
		}
	}()
	return srv
}
