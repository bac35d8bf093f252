// Package metrics exposes Prometheus instruments for spins and observers.
//
// Every Record*/Set* method is safe on a nil *Collector, so components can run
// without metrics in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "liminal"

type Collector struct {
	spinsStarted   prometheus.Counter
	spinsCompleted prometheus.Counter
	spinsRejected  prometheus.Counter
	spinTicks      prometheus.Counter
	spinDuration   prometheus.Histogram
	spinsActive    prometheus.Gauge

	observers       prometheus.Gauge
	observersPruned prometheus.Counter
	eventsPublished *prometheus.CounterVec

	historySize   prometheus.Gauge
	sweptEntries  prometheus.Counter
	archiveErrors prometheus.Counter
}

// NewCollector builds the instruments and registers them with reg.
// A nil reg falls back to prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		spinsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spins_started_total",
			Help:      "Spins accepted and started",
		}),
		spinsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spins_completed_total",
			Help:      "Spins that reached completion",
		}),
		spinsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spins_rejected_total",
			Help:      "Spin submissions rejected by validation",
		}),
		spinTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spin_ticks_total",
			Help:      "Tick events produced across all spins",
		}),
		spinDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "spin_duration_seconds",
			Help:      "Wall-clock time from spin start to completion",
			Buckets:   []float64{0.5, 1, 2, 3, 4, 5, 6, 7, 8, 10, 15},
		}),
		spinsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "spins_active",
			Help:      "Spins currently running",
		}),
		observers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "observers_connected",
			Help:      "Registered observer connections",
		}),
		observersPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observers_pruned_total",
			Help:      "Observers removed after a failed send",
		}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Frames published through the hub, by event type",
		}, []string{"type"}),
		historySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_records",
			Help:      "Records currently held in the history ring",
		}),
		sweptEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "active_swept_total",
			Help:      "Completed entries removed from the active table",
		}),
		archiveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_errors_total",
			Help:      "Failed writes to the spin archive",
		}),
	}

	reg.MustRegister(
		c.spinsStarted,
		c.spinsCompleted,
		c.spinsRejected,
		c.spinTicks,
		c.spinDuration,
		c.spinsActive,
		c.observers,
		c.observersPruned,
		c.eventsPublished,
		c.historySize,
		c.sweptEntries,
		c.archiveErrors,
	)
	return c
}

func (c *Collector) RecordSpinStarted() {
	if c == nil {
		return
	}
	c.spinsStarted.Inc()
	c.spinsActive.Inc()
}

func (c *Collector) RecordSpinCompleted(seconds float64) {
	if c == nil {
		return
	}
	c.spinsCompleted.Inc()
	c.spinsActive.Dec()
	c.spinDuration.Observe(seconds)
}

func (c *Collector) RecordSpinRejected() {
	if c == nil {
		return
	}
	c.spinsRejected.Inc()
}

func (c *Collector) RecordTick() {
	if c == nil {
		return
	}
	c.spinTicks.Inc()
}

func (c *Collector) RecordPublish(eventType string, pruned int) {
	if c == nil {
		return
	}
	c.eventsPublished.WithLabelValues(eventType).Inc()
	if pruned > 0 {
		c.observersPruned.Add(float64(pruned))
	}
}

func (c *Collector) SetObservers(n int) {
	if c == nil {
		return
	}
	c.observers.Set(float64(n))
}

func (c *Collector) SetHistorySize(n int) {
	if c == nil {
		return
	}
	c.historySize.Set(float64(n))
}

func (c *Collector) RecordSweep(n int) {
	if c == nil {
		return
	}
	c.sweptEntries.Add(float64(n))
}

func (c *Collector) RecordArchiveError() {
	if c == nil {
		return
	}
	c.archiveErrors.Inc()
}
