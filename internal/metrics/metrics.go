// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Catalog
	AggregateRecomputes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "movieweb_aggregate_recomputes_total",
			Help: "Total number of community rating recomputations",
		},
	)

	MoviesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "movieweb_movies_created_total",
			Help: "Total number of catalog movies created from provider metadata",
		},
	)

	// External providers
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movieweb_provider_requests_total",
			Help: "Total number of calls to external providers",
		},
		[]string{"provider", "outcome"}, // outcome: success, not_found, error, rejected
	)

	ProviderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "movieweb_provider_request_duration_seconds",
			Help:    "Duration of external provider calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "movieweb_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Discovery
	DiscoveryTitlesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movieweb_discovery_titles_recorded_total",
			Help: "Titles appended to discovery histories",
		},
		[]string{"backend"},
	)

	// HTTP
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movieweb_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "movieweb_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// ObserveProvider records the outcome and latency of one provider call.
func ObserveProvider(provider, outcome string, start time.Time) {
	ProviderRequests.WithLabelValues(provider, outcome).Inc()
	ProviderDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}

// ObserveHTTP records one served request.
func ObserveHTTP(method, route string, status int, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RegisterPoolStats exports connection pool gauges read from stat on every
// scrape. Registering twice is a no-op.
func RegisterPoolStats(reg prometheus.Registerer, stat func() *pgxpool.Stat) error {
	gauge := func(name, help string, read func(*pgxpool.Stat) int32) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			st := stat()
			if st == nil {
				return 0
			}
			return float64(read(st))
		})
	}
	collectors := []prometheus.Collector{
		gauge("movieweb_db_conns_total", "Connections currently open in the pool",
			(*pgxpool.Stat).TotalConns),
		gauge("movieweb_db_conns_acquired", "Connections currently checked out",
			(*pgxpool.Stat).AcquiredConns),
		gauge("movieweb_db_conns_idle", "Idle connections in the pool",
			(*pgxpool.Stat).IdleConns),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}
