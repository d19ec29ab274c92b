package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/cwygoda/pitcher/internal/domain"
)

func TestObserveDiscovery(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveDiscovery("lever", 7, nil)
	m.ObserveDiscovery("lever", 3, nil)
	m.ObserveDiscovery("remotive", 0, errors.New("boom"))

	assert.Equal(t, 10.0, testutil.ToFloat64(m.discovered.WithLabelValues("lever")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sourceErrors.WithLabelValues("remotive")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.discovered.WithLabelValues("remotive")))
}

func TestObserveOutcome(t *testing.T) {
	m := New(prometheus.NewRegistry())
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	m.ObserveOutcome(domain.Outcome{
		Attempt: &domain.Attempt{Strategy: "greenhouse", Count: 1, StartedAt: start, EndedAt: start.Add(12 * time.Second)},
		State:   domain.StateSubmitted,
	})
	m.ObserveOutcome(domain.Outcome{
		Attempt:  &domain.Attempt{Strategy: "greenhouse", Count: 3, StartedAt: start, EndedAt: start.Add(40 * time.Second)},
		State:    domain.StateFailed,
		Kind:     domain.KindNetwork,
		Category: domain.CategoryNavigationError,
	})
	m.ObserveOutcome(domain.Outcome{Attempt: &domain.Attempt{Strategy: "workday"}, State: domain.StateSkipped})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("greenhouse", "submitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("workday", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("network_error", "navigation-error")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.runs.WithLabelValues("greenhouse")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.runs.WithLabelValues("workday")))
}

func TestGaugesAndCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetAdmission(3, 9)
	m.ObserveVariant("fast", true)
	m.ObserveVariant("fast", false)
	m.ObserveAdjustment("lever", "pre_action_wait")

	assert.Equal(t, 3.0, testutil.ToFloat64(m.inFlight))
	assert.Equal(t, 9.0, testutil.ToFloat64(m.waiting))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.variantResults.WithLabelValues("fast", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.adjustments.WithLabelValues("lever", "pre_action_wait")))

	n, err := testutil.GatherAndCount(reg)
	assert.NoError(t, err)
	assert.Positive(t, n)
}

func TestNew_DoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
