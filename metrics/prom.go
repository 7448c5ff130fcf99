package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PasteCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "burnbin_paste_created_total",
		Help: "no. of pastes created",
	})
	PasteRetrieved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burnbin_paste_retrieved_total",
			Help: "no. of successful retrievals",
		},
		[]string{"form"},
	)
	PasteDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burnbin_paste_denied_total",
			Help: "no. of retrievals refused, by internal reason",
		},
		[]string{"reason"},
	)
	ValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burnbin_validation_failures_total",
			Help: "no. of rejected create requests",
		},
		[]string{"code"},
	)
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burnbin_store_errors_total",
			Help: "no. of backing store failures",
		},
		[]string{"op"},
	)
	TombstoneHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "burnbin_tombstone_hits_total",
		Help: "no. of lookups answered from the exhausted-id cache",
	})
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burnbin_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burnbin_rate_limit_hits_total",
			Help: "no. of rate limit violations",
		},
		[]string{"endpoint"},
	)
	WALCheckpoints = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burnbin_wal_checkpoints_total",
			Help: "no. of sqlite WAL checkpoints, by mode",
		},
		[]string{"mode"},
	)
	RecentErrorRatePercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "burnbin_recent_error_rate_percent",
		Help: "5min rolling avg error rate percentage",
	})
)
