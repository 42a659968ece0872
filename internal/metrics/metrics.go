// Package metrics exports hook execution metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/hookline/internal/hook"
)

const namespace = "hookline"

// unregisteredLabel replaces hook names with no registered handlers once a
// registry is tracked, so callers cannot grow the series set at will.
const unregisteredLabel = "_unregistered"

// Collector records hook activity. It implements hook.Observer.
type Collector struct {
	reg *prometheus.Registry

	handlerCalls *prometheus.CounterVec
	executions   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	reloads      *prometheus.CounterVec

	// known, when set, limits the hook label to registered names.
	known func(name string) bool
}

var _ hook.Observer = (*Collector)(nil)

// NewCollector creates a collector backed by its own Prometheus registry,
// which also carries the Go runtime and process collectors.
func NewCollector() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		handlerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handler_calls_total",
				Help:      "Handlers invoked, by hook and phase.",
			},
			[]string{"hook", "phase"},
		),
		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Completed executions, by hook, mode and outcome.",
			},
			[]string{"hook", "mode", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_seconds",
				Help:      "Time from execution start to callback.",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"mode"},
		),
		reloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reloads_total",
				Help:      "Hook file reloads seen by the watcher, by action and outcome.",
			},
			[]string{"action", "outcome"},
		),
	}

	c.reg.MustRegister(
		c.handlerCalls,
		c.executions,
		c.duration,
		c.reloads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// HandlerCalled implements hook.Observer.
func (c *Collector) HandlerCalled(name string, phase hook.Phase) {
	c.handlerCalls.WithLabelValues(c.hookLabel(name), phase.String()).Inc()
}

// ExecutionDone implements hook.Observer.
func (c *Collector) ExecutionDone(name, mode string, err error, d time.Duration) {
	c.executions.WithLabelValues(c.hookLabel(name), mode, outcome(err)).Inc()
	c.duration.WithLabelValues(mode).Observe(d.Seconds())
}

// Reloaded records a watcher reload. unloaded marks a file removal.
func (c *Collector) Reloaded(unloaded bool, err error) {
	action := "load"
	if unloaded {
		action = "unload"
	}
	c.reloads.WithLabelValues(action, outcome(err)).Inc()
}

// TrackRegistry exports the number of registered handlers per phase and
// restricts the hook label to names registered in r. Call it before the
// collector observes any execution.
func (c *Collector) TrackRegistry(r *hook.Registry) {
	c.known = r.Has
	for _, p := range hook.Phases {
		phase := p
		c.reg.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Name:        "registered_handlers",
				Help:        "Handlers currently registered, by phase.",
				ConstLabels: prometheus.Labels{"phase": phase.String()},
			},
			func() float64 { return float64(len(r.Records(phase))) },
		))
	}
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.reg
}

// Handler returns the /metrics handler for this collector.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

func (c *Collector) hookLabel(name string) string {
	if c.known != nil && !c.known(name) {
		return unregisteredLabel
	}
	return name
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
