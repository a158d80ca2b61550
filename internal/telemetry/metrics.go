package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency across every mounted route.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "paygate",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// --- Webhook ingestion / dispatcher (I, J) ---

var (
	UpdatesEnqueuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "paygate", Subsystem: "updates", Name: "enqueued_total",
		Help: "Total number of updates accepted into the dispatch queue.",
	})
	UpdatesDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "paygate", Subsystem: "updates", Name: "dropped_total",
		Help: "Total number of updates dropped due to queue overflow.",
	})
	UpdatesDuplicateTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "paygate", Subsystem: "updates", Name: "duplicate_total",
		Help: "Total number of updates discarded as duplicates within the dedup TTL.",
	})
	UpdatesProcessedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "paygate", Subsystem: "updates", Name: "processed_total",
		Help: "Total number of updates successfully handled by a worker.",
	})
	UpdateQueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "paygate", Subsystem: "updates", Name: "queue_size",
		Help: "Instantaneous number of updates waiting in the dispatch queue.",
	})
	UpdateHandleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "paygate", Subsystem: "updates", Name: "handle_duration_seconds",
		Help:    "Time taken by a worker to handle a single update.",
		Buckets: prometheus.DefBuckets,
	})
)

// --- Antifraud (B, C, D) ---

var (
	RateLimitDeniedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paygate", Subsystem: "antifraud", Name: "rate_limit_denied_total",
		Help: "Total number of requests denied by the token bucket limiter.",
	}, []string{"type"}) // ip | subject

	VelocityActionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paygate", Subsystem: "antifraud", Name: "velocity_action_total",
		Help: "Total number of velocity check outcomes by action.",
	}, []string{"action"}) // log_only | soft_cap | hard_block_before_payment

	SuspiciousIPBansTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "paygate", Subsystem: "antifraud", Name: "ip_bans_total",
		Help: "Total number of IP bans issued.",
	})
)

// --- Payments state machine (L, M, N, O, P) ---

var (
	InvoiceCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "paygate", Subsystem: "invoice", Name: "created_total",
		Help: "Total number of invoice links issued.",
	})
	InvoiceFailedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paygate", Subsystem: "invoice", Name: "failed_total",
		Help: "Total number of invoice creation attempts that failed, by reason.",
	}, []string{"reason"})

	PreCheckoutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paygate", Subsystem: "pay", Name: "pre_checkout_total",
		Help: "Total number of pre-checkout outcomes.",
	}, []string{"result"}) // ok | fail

	PaySuccessTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "paygate", Subsystem: "pay", Name: "success_total",
		Help: "Total number of successful-payment messages that produced an award.",
	})
	PaySuccessIdempotentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "paygate", Subsystem: "pay", Name: "success_idempotent_total",
		Help: "Total number of successful-payment messages absorbed as duplicates.",
	})
	PayFailureTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paygate", Subsystem: "pay", Name: "failure_total",
		Help: "Total number of successful-payment messages that ended in a terminal failure.",
	}, []string{"reason"})

	AwardGiftTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "paygate", Subsystem: "award", Name: "gift_total",
		Help: "Total number of gift prizes awarded.",
	})
	AwardPremiumTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paygate", Subsystem: "award", Name: "premium_total",
		Help: "Total number of premium-subscription prizes awarded.",
	}, []string{"tier"})
	AwardInternalTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "paygate", Subsystem: "award", Name: "internal_total",
		Help: "Total number of internal-only prizes recorded.",
	})
	AwardFailureTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "paygate", Subsystem: "award", Name: "failure_total",
		Help: "Total number of award attempts that failed.",
	})

	RefundTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "paygate", Subsystem: "refund", Name: "total",
		Help: "Total number of refund attempts.",
	})
	RefundFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "paygate", Subsystem: "refund", Name: "fail_total",
		Help: "Total number of refund attempts that failed.",
	})
)

// --- Fairness / RNG (E) ---

var (
	RNGDrawTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "paygate", Subsystem: "rng", Name: "draw_total",
		Help: "Total number of RNG draws performed (including idempotent replays).",
	})
	RNGDrawIdempotentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "paygate", Subsystem: "rng", Name: "draw_idempotent_total",
		Help: "Total number of RNG draws that returned a pre-existing record.",
	})
)

// --- Platform client / long polling (G, H) ---

var (
	PlatformRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paygate", Subsystem: "platform", Name: "requests_total",
		Help: "Total number of platform API requests by method.",
	}, []string{"method"})
	PlatformRetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paygate", Subsystem: "platform", Name: "retries_total",
		Help: "Total number of platform API request retries by method.",
	}, []string{"method"})
	PlatformErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paygate", Subsystem: "platform", Name: "errors_total",
		Help: "Total number of platform API requests that ultimately failed.",
	}, []string{"method"})

	LongPollBatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{Namespace: "paygate", Subsystem: "longpoll", Name: "batches_total", Help: "Total getUpdates batches received."})
	LongPollUpdatesTotal = prometheus.NewCounter(prometheus.CounterOpts{Namespace: "paygate", Subsystem: "longpoll", Name: "updates_total", Help: "Total updates received via long polling."})
	LongPollCyclesTotal  = prometheus.NewCounter(prometheus.CounterOpts{Namespace: "paygate", Subsystem: "longpoll", Name: "cycles_total", Help: "Total long-poll loop iterations."})
	LongPollOffsetGauge  = prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "paygate", Subsystem: "longpoll", Name: "offset", Help: "Current getUpdates offset (-1 when not started)."})
)

// All returns every paygate metric for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		UpdatesEnqueuedTotal, UpdatesDroppedTotal, UpdatesDuplicateTotal, UpdatesProcessedTotal,
		UpdateQueueSize, UpdateHandleDuration,
		RateLimitDeniedTotal, VelocityActionTotal, SuspiciousIPBansTotal,
		InvoiceCreatedTotal, InvoiceFailedTotal,
		PreCheckoutTotal, PaySuccessTotal, PaySuccessIdempotentTotal, PayFailureTotal,
		AwardGiftTotal, AwardPremiumTotal, AwardInternalTotal, AwardFailureTotal,
		RefundTotal, RefundFailTotal,
		RNGDrawTotal, RNGDrawIdempotentTotal,
		PlatformRequestsTotal, PlatformRetriesTotal, PlatformErrorsTotal,
		LongPollBatchesTotal, LongPollUpdatesTotal, LongPollCyclesTotal, LongPollOffsetGauge,
	}
}

// NewRegistry creates a Prometheus registry with Go/process collectors, the
// shared HTTP request duration histogram, and all paygate-specific metrics.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range All() {
		reg.MustRegister(c)
	}
	return reg
}
