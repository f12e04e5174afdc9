// Copyright (C) 2025 Praxis Learning (engineering@praxislearn.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the split-testing
// engine. Metrics are exposed via the /metrics endpoint; all operations are
// thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "splitengine"

var (
	// AllocationsTotal counts participant allocations by assigned arm.
	AllocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "allocations_total",
		Help:      "Participant allocations by assigned version",
	}, []string{"version"})

	// OutcomesTotal counts outcome submissions by result.
	// Labels: status (applied, participant_not_found, error)
	OutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "outcomes_total",
		Help:      "Outcome submissions by status",
	}, []string{"status"})

	// EthicalEventsTotal counts ethical monitor firings by condition and
	// severity. A stop here always coincides with a stopped_ethics
	// transition on the experiment.
	EthicalEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "ethical_events_total",
		Help:      "Ethical monitor events by condition and severity",
	}, []string{"condition", "severity"})

	// AnalysesTotal counts analyzer runs by significance outcome.
	// Labels: significant (true, false)
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "analyses_total",
		Help:      "Statistical analyses by significance outcome",
	}, []string{"significant"})

	// DeploymentsTotal counts deployment signals by result.
	DeploymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "deployments_total",
		Help:      "Winner deployment attempts by status",
	}, []string{"status"})

	// RequestDurationSeconds measures HTTP handler latency.
	RequestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route and status",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"route", "status"})
)
