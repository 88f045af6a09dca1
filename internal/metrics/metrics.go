// Package metrics exposes Prometheus collectors for task executions.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records task outcomes. It satisfies executor.Observer.
type Metrics struct {
	gatherer     prometheus.Gatherer
	taskRuns     *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
}

// New registers the task collectors with reg. A nil reg gets a fresh
// registry, which keeps tests and repeated App construction independent.
// Collectors already registered with reg are reused.
func New(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	taskRuns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskgrid",
			Name:      "task_runs_total",
			Help:      "Number of task executions by final state.",
		},
		[]string{"task", "state"},
	)
	taskDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taskgrid",
			Name:      "task_duration_seconds",
			Help:      "Wall time of task executions.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		},
		[]string{"task"},
	)

	if err := reg.Register(taskRuns); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		taskRuns = already.ExistingCollector.(*prometheus.CounterVec)
	}
	if err := reg.Register(taskDuration); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		taskDuration = already.ExistingCollector.(*prometheus.HistogramVec)
	}

	return &Metrics{gatherer: reg, taskRuns: taskRuns, taskDuration: taskDuration}, nil
}

// ObserveTask records one finished task.
func (m *Metrics) ObserveTask(task, state string, d time.Duration) {
	if m == nil {
		return
	}
	m.taskRuns.WithLabelValues(task, state).Inc()
	m.taskDuration.WithLabelValues(task).Observe(d.Seconds())
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
