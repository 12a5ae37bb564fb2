// Package metrics exposes Prometheus instrumentation for research runs. All
// methods are safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "research"

type Metrics struct {
	branches       *prometheus.CounterVec
	activeBranches prometheus.Gauge
	scrapes        *prometheus.CounterVec
	llmCalls       *prometheus.CounterVec
	runDuration    prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		branches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "branches_total",
			Help:      "Research branches finished, by outcome.",
		}, []string{"outcome"}),
		activeBranches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_branches",
			Help:      "Research branches currently running.",
		}),
		scrapes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrapes_total",
			Help:      "Page scrapes, by outcome.",
		}, []string{"outcome"}),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "LLM completions, by stage and outcome.",
		}, []string{"stage", "outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of complete research runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.branches, m.activeBranches, m.scrapes, m.llmCalls, m.runDuration)
	}
	return m
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

// BranchStarted marks a branch as running.
func (m *Metrics) BranchStarted() {
	if m == nil {
		return
	}
	m.activeBranches.Inc()
}

// BranchDone records a finished branch.
func (m *Metrics) BranchDone(ok bool) {
	if m == nil {
		return
	}
	m.activeBranches.Dec()
	m.branches.WithLabelValues(outcome(ok)).Inc()
}

func (m *Metrics) ScrapeDone(ok bool) {
	if m == nil {
		return
	}
	m.scrapes.WithLabelValues(outcome(ok)).Inc()
}

// LLMCall records one completion for a stage such as "plan" or "extract".
func (m *Metrics) LLMCall(stage string, ok bool) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(stage, outcome(ok)).Inc()
}

func (m *Metrics) ObserveRun(d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Observe(d.Seconds())
}
