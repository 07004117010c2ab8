// Package telemetry provides the prometheus metrics and tracing setup of the agent.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "postgres_agent"

var (
	TasksSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "tasks_submitted_total",
		Help:      "Total tasks submitted through the API.",
	}, []string{"type"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Total HTTP requests, labelled by method, route and status code.",
	}, []string{"method", "route", "code"})

	TasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "tasks_processed_total",
		Help:      "Total tasks executed, labelled by type and terminal status.",
	}, []string{"type", "status"})

	TasksInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "tasks_inflight",
		Help:      "Tasks currently being executed.",
	}, []string{"type"})

	TaskDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "task_duration_seconds",
		Help:      "Flow execution time in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"type"})

	TasksUnroutable = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "tasks_unroutable_total",
		Help:      "Tasks left in status new because no flow is registered for their type.",
	}, []string{"type"})

	TasksOrphaned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "tasks_orphaned_total",
		Help:      "Dequeued ids with no task in the registry.",
	})
)
