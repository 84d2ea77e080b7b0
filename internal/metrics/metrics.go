// Package metrics turns the run event stream into Prometheus metrics that
// can be exported through the node exporter textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ylqcxwl/youtube-notifier/internal/event"
)

// Collector is an event.Sink backed by a private Prometheus registry.
type Collector struct {
	reg           *prometheus.Registry
	notifications *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	comparisons   *prometheus.CounterVec
	lastRun       prometheus.Gauge
	lastNotified  prometheus.Gauge
}

// New creates a Collector with all metrics registered.
func New() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ytnotifier_notifications_total",
			Help: "Notifications attempted, by category and outcome.",
		}, []string{"category", "outcome"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ytnotifier_fetches_total",
			Help: "Feed fetches, by category and outcome.",
		}, []string{"category", "outcome"}),
		comparisons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ytnotifier_comparisons_total",
			Help: "Cursor comparisons, by category and verdict.",
		}, []string{"category", "outcome"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ytnotifier_last_run_timestamp_seconds",
			Help: "Unix time of the last finished run.",
		}),
		lastNotified: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ytnotifier_last_run_notified",
			Help: "New items notified by the last finished run.",
		}),
	}
	c.reg.MustRegister(c.notifications, c.fetches, c.comparisons, c.lastRun, c.lastNotified)
	return c
}

// Emit implements event.Sink.
func (c *Collector) Emit(e event.Event) {
	switch e.Decision {
	case event.DecisionNotify:
		c.notifications.WithLabelValues(string(e.Category), string(e.Outcome)).Inc()
	case event.DecisionFetch:
		c.fetches.WithLabelValues(string(e.Category), string(e.Outcome)).Inc()
	case event.DecisionCompare:
		c.comparisons.WithLabelValues(string(e.Category), string(e.Outcome)).Inc()
	case event.DecisionSummary:
		ts := e.Time
		if ts.IsZero() {
			ts = time.Now()
		}
		c.lastRun.Set(float64(ts.Unix()))
		c.lastNotified.Set(float64(e.Count))
	}
}

// Gatherer exposes the underlying registry.
func (c *Collector) Gatherer() prometheus.Gatherer {
	return c.reg
}

// WriteTextfile writes the current metrics to path in the text exposition
// format. The file is replaced atomically.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
