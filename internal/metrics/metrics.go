// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics provides Prometheus counters for the retrieval pipeline.
// All methods are safe on a nil *Metrics so components can run unmetered.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "source_retriever"

// Metrics groups the pipeline counters registered on one registerer.
type Metrics struct {
	BackendResults  *prometheus.CounterVec
	BackendFailures *prometheus.CounterVec
	Extractions     *prometheus.CounterVec
	Runs            *prometheus.CounterVec
}

// New creates the counters and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BackendResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_results_total",
				Help:      "Candidates returned by each search backend",
			},
			[]string{"backend"},
		),
		BackendFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_failures_total",
				Help:      "Search backend calls that contributed no results because of an error",
			},
			[]string{"backend"},
		),
		Extractions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "extractions_total",
				Help:      "Full-content extraction attempts by tier and result",
			},
			[]string{"tier", "result"},
		),
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Completed retrieval runs by exit path",
			},
			[]string{"path"},
		),
	}
	reg.MustRegister(m.BackendResults, m.BackendFailures, m.Extractions, m.Runs)
	return m
}

// RecordBackend records one backend call.
func (m *Metrics) RecordBackend(backend string, results int, failed bool) {
	if m == nil {
		return
	}
	if failed {
		m.BackendFailures.WithLabelValues(backend).Inc()
		return
	}
	m.BackendResults.WithLabelValues(backend).Add(float64(results))
}

// RecordExtraction records one extraction attempt; tier is "reader" or "direct",
// result is "ok", "empty", or "error".
func (m *Metrics) RecordExtraction(tier, result string) {
	if m == nil {
		return
	}
	m.Extractions.WithLabelValues(tier, result).Inc()
}

// RecordRun records the exit path of a retrieval run.
func (m *Metrics) RecordRun(path string) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(path).Inc()
}
