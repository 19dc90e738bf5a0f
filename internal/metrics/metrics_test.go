package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewMetricsIsShared(t *testing.T) {
	assert.Same(t, NewMetrics(), NewMetrics())
}

func TestObservers(t *testing.T) {
	m := NewMetrics()

	before := testutil.ToFloat64(m.StepsTotal.WithLabelValues("weekly_themes", "fallback"))
	m.ObserveStep("weekly_themes", "fallback", 2*time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(m.StepsTotal.WithLabelValues("weekly_themes", "fallback")))

	active := testutil.ToFloat64(m.SessionsActive)
	m.ObserveAdmission(true)
	m.ObserveAdmission(false)
	assert.Equal(t, active+1, testutil.ToFloat64(m.SessionsActive))
	m.SessionClosed()
	assert.Equal(t, active, testutil.ToFloat64(m.SessionsActive))

	rejected := testutil.ToFloat64(m.AdmissionsTotal.WithLabelValues("rejected"))
	m.ObserveAdmission(false)
	assert.Equal(t, rejected+1, testutil.ToFloat64(m.AdmissionsTotal.WithLabelValues("rejected")))

	assert.Equal(t, "4xx", statusClass(409))
	assert.Equal(t, "2xx", statusClass(202))
}
