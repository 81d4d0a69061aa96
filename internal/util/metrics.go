package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ClaimsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "claims_created_total",
		Help: "Total number of claims created",
	})

	ViewsReservedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "views_reserved_total",
		Help: "Total number of campaign views reserved by agents",
	})

	InventoryReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "inventory_reserve_latency_seconds",
		Help:    "Latency of view reservation operations",
		Buckets: prometheus.DefBuckets,
	})

	InventoryReservationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_reservations_failed_total",
		Help: "Total number of failed view reservations",
	}, []string{"reason"})

	ProofSubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proof_submissions_total",
		Help: "Total number of claim submissions by outcome",
	}, []string{"result"})

	FingerprintFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fingerprint_failures_total",
		Help: "Total number of proofs that could not be fingerprinted",
	})

	FingerprintLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fingerprint_latency_seconds",
		Help:    "Latency of decoding and hashing a proof image",
		Buckets: prometheus.DefBuckets,
	})

	DuplicateScanLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "duplicate_scan_latency_seconds",
		Help:    "Latency of the near-duplicate fingerprint lookup",
		Buckets: prometheus.DefBuckets,
	})

	ClaimsDecidedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claims_decided_total",
		Help: "Total number of claims approved or rejected",
	}, []string{"decision"})

	PaymentsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_created_total",
		Help: "Total number of payout records created",
	})

	PaymentsMarkedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_marked_total",
		Help: "Total number of payments marked by business owners",
	}, []string{"status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

// RegisterFingerprintCacheHitRate exposes the fingerprint cache hit ratio
// reported by hitRate. Call it once per process.
func RegisterFingerprintCacheHitRate(hitRate func() float64) prometheus.GaugeFunc {
	return promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "fingerprint_cache_hit_ratio",
		Help: "Share of proof fingerprint lookups answered from cache",
	}, hitRate)
}
