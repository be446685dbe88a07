package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicketsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_tickets_processed_total",
			Help: "Total number of tickets that reached a terminal state",
		},
		[]string{"outcome", "category"},
	)

	TicketsAutoResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_tickets_auto_resolved_total",
			Help: "Tickets resolved without a human, by classifier confidence tier",
		},
		[]string{"confidence_tier"},
	)

	TicketsEscalated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_tickets_escalated_total",
			Help: "Escalation reasons recorded on escalated tickets",
		},
		[]string{"reason"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "support_stage_duration_seconds",
			Help:    "Duration of each decision stage",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)

	InFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "support_tickets_in_flight",
			Help: "Tickets currently holding a processing slot",
		},
	)

	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_cache_requests_total",
			Help: "Cache lookups by tier and result",
		},
		[]string{"tier", "result"},
	)

	RateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "support_rate_limit_rejections_total",
			Help: "Tickets rejected by the per-customer token bucket",
		},
	)

	VectorSearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "support_search_duration_seconds",
			Help:    "Knowledge index query duration",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"kind"},
	)

	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_llm_requests_total",
			Help: "Model provider calls",
		},
		[]string{"provider", "model", "status"},
	)

	LLMTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_llm_tokens_total",
			Help: "Tokens consumed by model calls",
		},
		[]string{"provider", "model", "direction"},
	)

	LLMCost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_llm_cost_usd_total",
			Help: "Estimated spend on model calls in USD",
		},
		[]string{"provider", "model"},
	)

	AuditDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_audit_events_dropped_total",
			Help: "Audit events dropped because the dispatch buffer was full or a sink failed",
		},
		[]string{"sink"},
	)

	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)
)

// ConfidenceTier buckets classifier confidence for the auto-resolve counter.
func ConfidenceTier(confidence float64) string {
	switch {
	case confidence > 0.85:
		return "high"
	case confidence > 0.70:
		return "medium"
	default:
		return "low"
	}
}
