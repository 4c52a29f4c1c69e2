package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics records posting, sequence and workflow activity. A nil
// *LedgerMetrics is valid and records nothing.
type LedgerMetrics struct {
	postings            *prometheus.CounterVec
	postingDuration     prometheus.Histogram
	sequenceAllocations *prometheus.CounterVec
	transitions         *prometheus.CounterVec
	hookFailures        *prometheus.CounterVec
	eventFailures       *prometheus.CounterVec
	retries             *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_postings_total",
		Help: "Journal entries submitted to the posting engine, by result.",
	}, []string{"result"})
	postingDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledger_posting_duration_seconds",
		Help:    "Time spent validating and writing one journal entry.",
		Buckets: prometheus.DefBuckets,
	})
	sequenceAllocations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_sequence_allocations_total",
		Help: "Numbers allocated per series.",
	}, []string{"series"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_transitions_total",
		Help: "Workflow transitions attempted, by workflow and result.",
	}, []string{"workflow", "result"})
	hookFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "workflow_hook_failures_total",
		Help: "Workflow hook failures by criticality.",
	}, []string{"criticality"})
	eventFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "domain_event_publish_failures_total",
		Help: "Domain events that could not be published.",
	}, []string{"type"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_operation_retries_total",
		Help: "Retries of domain operations after transient database errors.",
	}, []string{"operation"})
	reg.MustRegister(postings, postingDuration, sequenceAllocations, transitions, hookFailures, eventFailures, retries)
	return &LedgerMetrics{
		postings:            postings,
		postingDuration:     postingDuration,
		sequenceAllocations: sequenceAllocations,
		transitions:         transitions,
		hookFailures:        hookFailures,
		eventFailures:       eventFailures,
		retries:             retries,
	}
}

// ObservePosting records the outcome and duration of one posting attempt.
func (m *LedgerMetrics) ObservePosting(err error, duration time.Duration) {
	if m == nil || m.postings == nil {
		return
	}
	m.postings.WithLabelValues(result(err)).Inc()
	m.postingDuration.Observe(duration.Seconds())
}

// IncSequenceAllocation counts one allocated number.
func (m *LedgerMetrics) IncSequenceAllocation(series string) {
	if m == nil || m.sequenceAllocations == nil {
		return
	}
	m.sequenceAllocations.WithLabelValues(normalizeLabel(series)).Inc()
}

// ObserveTransition counts a workflow transition attempt.
func (m *LedgerMetrics) ObserveTransition(workflow string, err error) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(workflow), result(err)).Inc()
}

// IncHookFailure counts a failed workflow hook.
func (m *LedgerMetrics) IncHookFailure(criticality string) {
	if m == nil || m.hookFailures == nil {
		return
	}
	m.hookFailures.WithLabelValues(normalizeLabel(criticality)).Inc()
}

// IncEventFailure counts an event that could not be published.
func (m *LedgerMetrics) IncEventFailure(eventType string) {
	if m == nil || m.eventFailures == nil {
		return
	}
	m.eventFailures.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncRetry counts a retry of the named operation.
func (m *LedgerMetrics) IncRetry(operation string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(operation)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
