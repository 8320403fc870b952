// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the
// orchestrator.
//
// # Description
//
// Prometheus metrics for the support workflow: invocation counters by
// terminal status, per-step counters and latency histograms, redirect and
// escalation counters, and a gauge of calls currently in flight.
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for workflow metrics
const workflowSubsystem = "desk"

// WorkflowMetrics holds all Prometheus metrics for the support workflow.
//
// # Fields
//
//   - RunsTotal: Counter of workflow invocations by entry point and
//     terminal status
//   - StepsTotal: Counter of executed steps by step and status
//   - StepDurationSeconds: Histogram of per-step latency
//   - RedirectsTotal: Counter of accepted redirect hand-offs
//   - EscalationsTotal: Counter of escalations by reason
//   - ActiveCalls: Gauge of call sessions between initiate and ended
//   - ResumeTimeoutsTotal: Counter of resume-pipeline worker timeouts
//
// # Thread Safety
//
// All operations are thread-safe.
type WorkflowMetrics struct {
	// RunsTotal counts workflow invocations.
	// Labels: entry (run, resume), status (resolved, out_of_scope,
	// escalated, timeout, pending)
	RunsTotal *prometheus.CounterVec

	// StepsTotal counts executed workflow steps.
	// Labels: step, status (success, failed)
	StepsTotal *prometheus.CounterVec

	// StepDurationSeconds measures per-step latency.
	// Labels: step
	StepDurationSeconds *prometheus.HistogramVec

	// RedirectsTotal counts accepted redirect hand-offs.
	RedirectsTotal prometheus.Counter

	// EscalationsTotal counts escalations by reason.
	// Labels: reason (loop_exceeded, no_candidate, step_failed,
	// analysis_exhausted)
	EscalationsTotal *prometheus.CounterVec

	// ActiveCalls tracks call sessions currently in flight.
	ActiveCalls prometheus.Gauge

	// ResumeTimeoutsTotal counts resume-pipeline worker timeouts.
	ResumeTimeoutsTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance of WorkflowMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *WorkflowMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics on first call. Repeated
// calls return the already-registered instance, so constructing a second
// service in the same process does not collide with the default registry.
//
// # Outputs
//
//   - *WorkflowMetrics: The initialized metrics instance.
//
// # Thread Safety
//
// Not safe for concurrent use. Call during single-threaded startup.
func InitMetrics() *WorkflowMetrics {
	if DefaultMetrics != nil {
		return DefaultMetrics
	}
	DefaultMetrics = &WorkflowMetrics{
		RunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: workflowSubsystem,
				Name:      "runs_total",
				Help:      "Total workflow invocations by entry point and terminal status",
			},
			[]string{"entry", "status"},
		),

		StepsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: workflowSubsystem,
				Name:      "steps_total",
				Help:      "Total executed workflow steps by step and status",
			},
			[]string{"step", "status"},
		),

		StepDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: workflowSubsystem,
				Name:      "step_duration_seconds",
				Help:      "Workflow step latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"step"},
		),

		RedirectsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: workflowSubsystem,
				Name:      "redirects_total",
				Help:      "Total accepted redirect hand-offs",
			},
		),

		EscalationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: workflowSubsystem,
				Name:      "escalations_total",
				Help:      "Total escalations by reason",
			},
			[]string{"reason"},
		),

		ActiveCalls: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: workflowSubsystem,
				Name:      "active_calls",
				Help:      "Call sessions currently between initiate and ended",
			},
		),

		ResumeTimeoutsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: workflowSubsystem,
				Name:      "resume_timeouts_total",
				Help:      "Resume pipeline worker timeouts",
			},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Label Values
// =============================================================================

// Entry points for RunsTotal.
const (
	EntryRun    = "run"
	EntryResume = "resume"
)

// Escalation reasons for EscalationsTotal.
const (
	EscalationLoopExceeded      = "loop_exceeded"
	EscalationNoCandidate       = "no_candidate"
	EscalationStepFailed        = "step_failed"
	EscalationAnalysisExhausted = "analysis_exhausted"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRun records a completed workflow invocation. Nil-safe so callers
// never guard on metrics being enabled.
func (m *WorkflowMetrics) RecordRun(entry, status string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(entry, status).Inc()
}

// RecordStep records one executed step and its latency.
func (m *WorkflowMetrics) RecordStep(step string, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failed"
	}
	m.StepsTotal.WithLabelValues(step, status).Inc()
	m.StepDurationSeconds.WithLabelValues(step).Observe(elapsed.Seconds())
}

// RecordRedirect counts an accepted hand-off.
func (m *WorkflowMetrics) RecordRedirect() {
	if m == nil {
		return
	}
	m.RedirectsTotal.Inc()
}

// RecordEscalation counts an escalation by reason.
func (m *WorkflowMetrics) RecordEscalation(reason string) {
	if m == nil {
		return
	}
	m.EscalationsTotal.WithLabelValues(reason).Inc()
}

// CallStarted increments the in-flight call gauge.
func (m *WorkflowMetrics) CallStarted() {
	if m == nil {
		return
	}
	m.ActiveCalls.Inc()
}

// CallEnded decrements the in-flight call gauge.
func (m *WorkflowMetrics) CallEnded() {
	if m == nil {
		return
	}
	m.ActiveCalls.Dec()
}

// RecordResumeTimeout counts a resume worker timeout.
func (m *WorkflowMetrics) RecordResumeTimeout() {
	if m == nil {
		return
	}
	m.ResumeTimeoutsTotal.Inc()
}
