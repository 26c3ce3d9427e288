// Package metrics defines the Prometheus collectors used by the ingestion
// pipeline and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the ingestion service.
type Metrics struct {
	FetchRequestsTotal *prometheus.CounterVec
	FetchDuration      *prometheus.HistogramVec
	FetchRetriesTotal  *prometheus.CounterVec
	FetchesInFlight    prometheus.Gauge
	MakesProcessed     *prometheus.CounterVec
	UpsertsTotal       *prometheus.CounterVec
	RunsTotal          *prometheus.CounterVec
	RunDuration        prometheus.Histogram
	LastSuccessfulRun  prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg means
// the Prometheus default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		FetchRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_fetch_requests_total",
				Help: "Upstream GET requests by endpoint and outcome (ok, http_status, transport).",
			},
			[]string{"endpoint", "outcome"},
		),
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_fetch_duration_seconds",
				Help:    "Upstream GET latency in seconds.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
			},
			[]string{"endpoint"},
		),
		FetchRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_fetch_retries_total",
				Help: "Backoff retries scheduled by endpoint.",
			},
			[]string{"endpoint"},
		),
		FetchesInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_fetches_in_flight",
				Help: "Upstream GET requests currently in flight.",
			},
		),
		MakesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_makes_processed_total",
				Help: "Makes whose vehicle types were fetched, by result (ok, failed).",
			},
			[]string{"result"},
		),
		UpsertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_upserts_total",
				Help: "Store upserts by entity (make, vehicle_type) and result (ok, integrity, store).",
			},
			[]string{"entity", "result"},
		),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_ingestion_runs_total",
				Help: "Ingestion runs by final status.",
			},
			[]string{"status"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "catalog_ingestion_run_duration_seconds",
				Help:    "Wall-clock duration of ingestion runs.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 14),
			},
		),
		LastSuccessfulRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_ingestion_last_success_timestamp_seconds",
				Help: "Unix time of the last run that completed without failures.",
			},
		),
	}

	reg.MustRegister(
		m.FetchRequestsTotal,
		m.FetchDuration,
		m.FetchRetriesTotal,
		m.FetchesInFlight,
		m.MakesProcessed,
		m.UpsertsTotal,
		m.RunsTotal,
		m.RunDuration,
		m.LastSuccessfulRun,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
