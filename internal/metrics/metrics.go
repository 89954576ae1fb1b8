// Package metrics holds the Prometheus instruments for provisioning and
// fulfillment.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Provisioning captures orchestrator runs and fulfillment commits.
// A nil *Provisioning is a valid no-op.
type Provisioning struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	commits  *prometheus.CounterVec
}

// NewProvisioning creates the instruments and registers them on registerer.
func NewProvisioning(registerer prometheus.Registerer) *Provisioning {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vpnshop_provisioning_runs_total",
		Help: "Provisioning orchestrator runs by panel, result and failure kind.",
	}, []string{"panel", "result", "kind"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vpnshop_provisioning_duration_seconds",
		Help:    "Provisioning run latency including remote panel calls.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
	}, []string{"panel"})
	commits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vpnshop_fulfillment_commits_total",
		Help: "Orders committed as paid by trigger source.",
	}, []string{"source"})

	registerer.MustRegister(runs, duration, commits)

	return &Provisioning{runs: runs, duration: duration, commits: commits}
}

// ObserveRun records one orchestrator run. kind is empty on success.
func (m *Provisioning) ObserveRun(panel, kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if panel == "" {
		panel = "unknown"
	}
	result := ResultSuccess
	if kind != "" {
		result = ResultFailure
	}
	m.runs.WithLabelValues(panel, result, kind).Inc()
	m.duration.WithLabelValues(panel).Observe(elapsed.Seconds())
}

// IncCommit counts one successful paid commit.
func (m *Provisioning) IncCommit(source string) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(source).Inc()
}
