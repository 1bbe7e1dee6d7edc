// Package metrics exposes the engine's Prometheus instrumentation.
// Grounded on the teacher's promauto-based metrics registration idiom
// (internal/metrics/metrics.go), rewritten against this engine's own
// concerns: unit-of-work execution, the streaming interceptor, the
// persistence orchestrator, and the per-platform browser lock instead of
// multi-agent workflow/session/vector-memory metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksSubmitted counts successful Task Engine submissions (§4.1 submit()).
	TasksSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "citation_engine_tasks_submitted_total",
			Help: "Total number of tasks submitted to the engine",
		},
	)

	// TasksCompleted counts tasks that reached status=done, partitioned by
	// whether the terminal result_data carries an error marker.
	TasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citation_engine_tasks_completed_total",
			Help: "Total number of tasks that reached status=done",
		},
		[]string{"outcome"}, // outcome: ok, persistence_error
	)

	// UnitsExecuted counts individual (keyword, platform, round) units,
	// partitioned by platform and outcome per §7's error taxonomy.
	UnitsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citation_engine_units_executed_total",
			Help: "Total number of units of work executed",
		},
		[]string{"platform", "outcome"}, // outcome: completed, failed
	)

	// UnitDuration measures end-to-end unit latency (provider search +
	// persistence), matching SearchRecord.latency_ms's source of truth.
	UnitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "citation_engine_unit_duration_seconds",
			Help:    "Duration of one unit of work (provider search + persistence)",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"platform"},
	)

	// UnitFailures partitions failed units by the engineerr.Kind recorded
	// on the SearchRecord (§7).
	UnitFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citation_engine_unit_failures_total",
			Help: "Total number of failed units by error kind",
		},
		[]string{"platform", "kind"},
	)

	// InterUnitDelay observes the configured inter-unit sleep actually
	// taken (§4.1 "inter-unit spacing").
	InterUnitDelay = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "citation_engine_inter_unit_delay_seconds",
			Help:    "Observed inter-unit delay between successive units of work",
			Buckets: []float64{0, 1, 2, 5, 10, 30, 60},
		},
	)

	// SSEEventsParsed counts the Streaming Interceptor's decoded events by
	// envelope shape (§4.3).
	SSEEventsParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citation_engine_sse_events_parsed_total",
			Help: "Total number of SSE events parsed by envelope shape",
		},
		[]string{"envelope", "platform"},
	)

	// SSEParseErrors counts events that failed both the primary and
	// jsonrepair-fallback decode attempts.
	SSEParseErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "citation_engine_sse_parse_errors_total",
			Help: "Total number of SSE events that failed to decode",
		},
	)

	// DOMFallbackInvocations is incremented (outcome "empty") by
	// ExecuteUnit when a provider's result carries zero citations, after any
	// DOM fallback the provider itself ran (§4.5). The fallback runs inside
	// the hosted-chat providers are not counted here.
	DOMFallbackInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citation_engine_dom_fallback_invocations_total",
			Help: "Total number of DOM fallback extractor invocations",
		},
		[]string{"platform", "result"}, // result: recovered, empty
	)

	// CitationsPersisted counts genuine Citation inserts (not conflicts),
	// matching the DomainStats upsert trigger condition (§4.7).
	CitationsPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citation_engine_citations_persisted_total",
			Help: "Total number of new citation rows inserted",
		},
		[]string{"platform"},
	)

	// CitationConflicts counts (record_id, url) de-dup hits (§3 Citation
	// uniqueness invariant, §8 property 3).
	CitationConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "citation_engine_citation_conflicts_total",
			Help: "Total number of citation inserts that hit the (record_id, url) uniqueness conflict",
		},
	)

	// EncodingRepairs counts strings the mojibake-repair routine actually
	// changed, per §7's encoding_repaired warning kind.
	EncodingRepairs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "citation_engine_encoding_repairs_total",
			Help: "Total number of strings changed by the encoding repair routine",
		},
	)

	// PlatformLockWait measures time spent waiting to acquire a
	// per-platform browser-profile lock (§5 single-writer resource).
	PlatformLockWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "citation_engine_platform_lock_wait_seconds",
			Help:    "Time spent waiting to acquire a per-platform browser profile lock",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"platform"},
	)

	// PersistenceErrors counts the fatal, task-aborting error class (§7).
	PersistenceErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "citation_engine_persistence_errors_total",
			Help: "Total number of persistence_error failures that aborted a task",
		},
	)

	// StatusProjections counts Status Projector invocations, partitioned
	// by whether the schema was present (§4.8 table_not_found handling).
	StatusProjections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citation_engine_status_projections_total",
			Help: "Total number of status projections served",
		},
		[]string{"result"}, // result: ok, table_not_found
	)

	// ExportRows counts CSV export rows served by GET /export.
	ExportRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "citation_engine_export_rows_total",
			Help: "Total number of executor_sub_query_log rows served via CSV export",
		},
	)
)

// RecordUnitOutcome records the counters and duration for one completed
// unit of work, mirroring the SearchRecord row the Persistence Orchestrator
// just wrote.
func RecordUnitOutcome(platform, outcome, errorKind string, durationSeconds float64) {
	UnitsExecuted.WithLabelValues(platform, outcome).Inc()
	UnitDuration.WithLabelValues(platform).Observe(durationSeconds)
	if outcome == "failed" && errorKind != "" {
		UnitFailures.WithLabelValues(platform, errorKind).Inc()
	}
}
