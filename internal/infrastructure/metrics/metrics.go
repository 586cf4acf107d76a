package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal tracks ledger operations by name and outcome code
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nameregistry_operations_total",
		Help: "Total number of ledger operations processed",
	}, []string{"op", "result"})

	// OperationDuration tracks ledger operation latency
	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nameregistry_operation_duration_seconds",
		Help:    "Histogram of ledger operation duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// CacheOperations tracks L1/L2 cache hits and misses
	CacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nameregistry_cache_operations_total",
		Help: "Total number of cache hits and misses",
	}, []string{"level", "result"})

	// NamesRegistered counts successful registrations
	NamesRegistered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nameregistry_names_registered_total",
		Help: "Total number of successful name registrations",
	})

	// Paused mirrors the ledger pause flag
	Paused = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nameregistry_paused",
		Help: "Binary indicator of the pause flag (1 = paused)",
	})

	// EventsPublished tracks post-commit event delivery per publisher
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nameregistry_events_published_total",
		Help: "Total number of ledger events handed to publishers",
	}, []string{"publisher", "result"})

	// RateLimited counts requests rejected by the API rate limiter
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nameregistry_rate_limited_total",
		Help: "Total number of API requests rejected by the rate limiter",
	})

	// DBConnectionsActive tracks open database connections
	DBConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nameregistry_db_connections_active",
		Help: "Number of active database connections",
	})

	// BGPAnnounced indicates if the node is currently announcing routes via BGP
	BGPAnnounced = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nameregistry_bgp_announced",
		Help: "Binary indicator of BGP announcement status (1 = announcing, 0 = withdrawn)",
	})
)
