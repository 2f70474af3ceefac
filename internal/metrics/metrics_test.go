package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter_Inc(t *testing.T) {
	c := NewRegisteredCounter("test_metrics_counter_inc", "test counter")
	c.Inc(3)
	c.Inc(2)
	assert.Equal(t, float64(5), testutil.ToFloat64(c.c))
}

func TestCounterVec_WithLabelValues(t *testing.T) {
	cv := NewRegisteredCounterVec("test_metrics_counter_vec", "test counter vec", []string{"kind"})
	cv.WithLabelValues("a")
	cv.WithLabelValues("a")
	cv.WithLabelValues("b")

	require.Equal(t, float64(2), testutil.ToFloat64(cv.v.WithLabelValues("a")))
	require.Equal(t, float64(1), testutil.ToFloat64(cv.v.WithLabelValues("b")))
}

func TestGauge_Set(t *testing.T) {
	g := NewRegisteredGaugeVec("test_metrics_gauge", "test gauge", []string{"id"})
	g.Set(4, "x")
	g.Set(7, "x")
	assert.Equal(t, float64(7), testutil.ToFloat64(g.v.WithLabelValues("x")))
}

func TestTimer_UpdateSince(t *testing.T) {
	timer := NewRegisteredTimer("test_metrics_timer", "test timer")
	timer.UpdateSince(time.Now().Add(-50 * time.Millisecond))
	assert.EqualValues(t, 1, testutil.CollectAndCount(timer.h))
}
