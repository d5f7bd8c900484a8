// SPDX-License-Identifier: MPL-2.0

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nodectl"

type (
	// Metrics holds the collectors recorded by the runtime components.
	Metrics struct {
		Executions        *prometheus.CounterVec
		ExecutionDuration prometheus.Histogram
		RuntimeInstalls   *prometheus.CounterVec
		PackageInstalls   *prometheus.CounterVec

		gatherer prometheus.Gatherer
	}
)

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		Executions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Code executions by outcome.",
			},
			[]string{"outcome"},
		),
		ExecutionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_seconds",
				Help:      "Wall time from submission to outcome, including time spent waiting for the execution lock.",
				Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 1, 2.5, 10, 30, 120},
			},
		),
		RuntimeInstalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runtime_installs_total",
				Help:      "Runtime resolutions by source (system, cached, download).",
			},
			[]string{"source"},
		),
		PackageInstalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "package_installs_total",
				Help:      "Package manager installs by result.",
			},
			[]string{"result"},
		),
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// NewRegistry returns a fresh registry with the collectors registered on it.
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	return reg, New(reg)
}

// ObserveExecution records one execution outcome and its duration.
func (m *Metrics) ObserveExecution(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Executions.WithLabelValues(outcome).Inc()
	m.ExecutionDuration.Observe(d.Seconds())
}

// RuntimeInstalled records how the runtime was resolved.
func (m *Metrics) RuntimeInstalled(source string) {
	if m == nil {
		return
	}
	m.RuntimeInstalls.WithLabelValues(source).Inc()
}

// PackageInstalled records a package install result.
func (m *Metrics) PackageInstalled(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.PackageInstalls.WithLabelValues(result).Inc()
}

// Handler serves the registry the collectors were registered with, or the
// default gatherer when that registry cannot be gathered.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
