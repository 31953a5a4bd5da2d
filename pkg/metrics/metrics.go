// Package metrics provides Prometheus metrics for the Sage service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GenerationCallsTotal tracks generator calls by kind and status
	GenerationCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "generation",
			Name:      "calls_total",
			Help:      "Total number of generator calls by kind and status",
		},
		[]string{"tenant_id", "kind", "status"},
	)

	// GenerationDuration tracks generator call duration in seconds
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sage",
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Duration of generator calls in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"tenant_id", "kind"},
	)

	// QuestionsStagedTotal tracks staging questions created
	QuestionsStagedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "staging",
			Name:      "questions_total",
			Help:      "Total number of staging questions created",
		},
		[]string{"tenant_id"},
	)

	// AnswersStagedTotal tracks staging answers created
	AnswersStagedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "staging",
			Name:      "answers_total",
			Help:      "Total number of staging answers created",
		},
		[]string{"tenant_id"},
	)

	// ApprovalUpdatesTotal tracks approval updates by kind and outcome
	ApprovalUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "approval",
			Name:      "updates_total",
			Help:      "Total number of approval updates by kind and outcome",
		},
		[]string{"tenant_id", "kind", "approval"},
	)

	// ApprovalCascadesTotal tracks answers reset to pending by question rejection
	ApprovalCascadesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "approval",
			Name:      "cascades_total",
			Help:      "Total number of answers reset to pending by a question rejection",
		},
		[]string{"tenant_id"},
	)

	// SyncsTotal tracks sync runs by status
	SyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of sync runs by status",
		},
		[]string{"tenant_id", "status"},
	)

	// SyncDuration tracks sync duration in seconds
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sage",
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Duration of sync runs in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"tenant_id"},
	)

	// SyncedRowsTotal tracks rows promoted to the actual tables
	SyncedRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "sync",
			Name:      "rows_total",
			Help:      "Total number of rows promoted to the actual tables by kind",
		},
		[]string{"tenant_id", "kind"},
	)
)
