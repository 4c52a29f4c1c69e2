package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestLedgerMetrics_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetrics(reg)

	m.ObservePosting(nil, 10*time.Millisecond)
	m.ObservePosting(errors.New("unbalanced"), time.Millisecond)
	m.IncSequenceAllocation("share_certificate")
	m.ObserveTransition("member_kyc", nil)
	m.IncHookFailure("best_effort")
	m.IncEventFailure("")
	m.IncRetry("savings.deposit")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.postings.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.postings.WithLabelValues("error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sequenceAllocations.WithLabelValues("share_certificate")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.transitions.WithLabelValues("member_kyc", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.eventFailures.WithLabelValues("unknown")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.retries.WithLabelValues("savings.deposit")))
}

func TestLedgerMetrics_NilSafe(t *testing.T) {
	var m *LedgerMetrics
	assert.NotPanics(t, func() {
		m.ObservePosting(nil, time.Second)
		m.IncSequenceAllocation("journal")
		m.ObserveTransition("loan_application", errors.New("x"))
		m.IncHookFailure("critical")
		m.IncEventFailure("deposit")
		m.IncRetry("x")
	})

	empty := NewLedgerMetrics(nil)
	assert.NotPanics(t, func() { empty.ObservePosting(nil, time.Second) })
}
