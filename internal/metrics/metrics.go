// Package metrics mirrors go-ethereum's "package-level registered
// counter/timer/gauge" idiom (see miner/worker.go's
// metrics.NewRegisteredCounter variables) backed by
// prometheus/client_golang instead of an internal registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Counter is a monotonically increasing value.
type Counter struct{ c prometheus.Counter }

// NewRegisteredCounter creates and registers a counter, matching the
// call-site shape of geth's metrics.NewRegisteredCounter(name, nil).
func NewRegisteredCounter(name, help string) *Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	prometheus.MustRegister(c)
	return &Counter{c: c}
}

// Inc increments the counter by delta.
func (c *Counter) Inc(delta float64) { c.c.Add(delta) }

// CounterVec is a counter partitioned by label values.
type CounterVec struct{ v *prometheus.CounterVec }

// NewRegisteredCounterVec creates and registers a labeled counter.
func NewRegisteredCounterVec(name, help string, labels []string) *CounterVec {
	v := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	prometheus.MustRegister(v)
	return &CounterVec{v: v}
}

// WithLabelValues increments the counter for the given label values.
func (c *CounterVec) WithLabelValues(lvs ...string) { c.v.WithLabelValues(lvs...).Inc() }

// Gauge is an arbitrary up/down value, partitioned by label values.
type Gauge struct{ v *prometheus.GaugeVec }

// NewRegisteredGaugeVec creates and registers a labeled gauge.
func NewRegisteredGaugeVec(name, help string, labels []string) *Gauge {
	v := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
	prometheus.MustRegister(v)
	return &Gauge{v: v}
}

// Set records the current value for the given label values.
func (g *Gauge) Set(value float64, lvs ...string) { g.v.WithLabelValues(lvs...).Set(value) }

// Timer records observed durations in a histogram.
type Timer struct{ h prometheus.Histogram }

// NewRegisteredTimer creates and registers a duration histogram,
// matching geth's metrics.NewRegisteredTimer(name, nil).
func NewRegisteredTimer(name, help string) *Timer {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: name, Help: help})
	prometheus.MustRegister(h)
	return &Timer{h: h}
}

// UpdateSince records the elapsed time since start.
func (t *Timer) UpdateSince(start time.Time) { t.h.Observe(time.Since(start).Seconds()) }
