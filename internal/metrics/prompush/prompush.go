// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// This package adapts the generic metrics.Backend interface to Prometheus by:
//
//   - Using client_golang CounterVec and SummaryVec collectors.
//   - Mapping the DAG labels (dag, task, status, kind) onto Prometheus labels.
//   - Pushing collected metrics to a Prometheus Pushgateway instance instead of
//     exposing an HTTP scrape endpoint, since a DAG run is a short-lived batch
//     process.
//
// All Prometheus-specific dependencies stay in this package.
package prompush

import (
	"fmt"

	"disneyetl/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	taskCounter  *prometheus.CounterVec // etl_task_total
	taskDuration *prometheus.SummaryVec // etl_task_duration_seconds
	runCounter   *prometheus.CounterVec // etl_dag_runs_total
	runDuration  *prometheus.SummaryVec // etl_dag_run_duration_seconds
	objCounter   *prometheus.CounterVec // etl_objects_total
}

var objectives = map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName: the Pushgateway "job" name.
// gatewayURL: base URL of the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "etl"
	}

	reg := prometheus.NewRegistry()

	taskCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.TaskTotal,
			Help: "Total number of DAG task executions, partitioned by dag, task and status.",
		},
		[]string{"dag", "task", "status"},
	)
	taskDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       metrics.TaskDuration,
			Help:       "Duration of DAG tasks in seconds.",
			Objectives: objectives,
		},
		[]string{"dag", "task", "status"},
	)
	runCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.RunTotal,
			Help: "Total number of DAG runs, partitioned by dag and status.",
		},
		[]string{"dag", "status"},
	)
	runDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       metrics.RunDuration,
			Help:       "Duration of DAG runs in seconds.",
			Objectives: objectives,
		},
		[]string{"dag", "status"},
	)
	objCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.ObjectsTotal,
			Help: "Object-level counts per kind (fetched, uploaded, records, rows).",
		},
		[]string{"dag", "kind"},
	)

	for name, c := range map[string]prometheus.Collector{
		"task counter": taskCounter,
		"task summary": taskDuration,
		"run counter":  runCounter,
		"run summary":  runDuration,
		"obj counter":  objCounter,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}

	return &Backend{
		gatewayURL:   gatewayURL,
		jobName:      jobName,
		reg:          reg,
		taskCounter:  taskCounter,
		taskDuration: taskDuration,
		runCounter:   runCounter,
		runDuration:  runDuration,
		objCounter:   objCounter,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.TaskTotal:
		if b.taskCounter == nil {
			return
		}
		b.taskCounter.WithLabelValues(labels["dag"], labels["task"], labels["status"]).Add(delta)

	case metrics.RunTotal:
		if b.runCounter == nil {
			return
		}
		b.runCounter.WithLabelValues(labels["dag"], labels["status"]).Add(delta)

	case metrics.ObjectsTotal:
		if b.objCounter == nil {
			return
		}
		b.objCounter.WithLabelValues(labels["dag"], labels["kind"]).Add(delta)

	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	switch name {
	case metrics.TaskDuration:
		if b.taskDuration == nil {
			return
		}
		b.taskDuration.WithLabelValues(labels["dag"], labels["task"], labels["status"]).Observe(value)
	case metrics.RunDuration:
		if b.runDuration == nil {
			return
		}
		b.runDuration.WithLabelValues(labels["dag"], labels["status"]).Observe(value)
	}
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
