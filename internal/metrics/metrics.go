// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from DAG runs.
//
// The package is intentionally minimal:
//
//   - It exposes a narrow interface (Backend) focused on counters and timing
//     data (histograms).
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metrics are always safe to call even when no real
//     backend is configured.
//   - Concrete metric systems live in subpackages (prompush, datadog), so the
//     DAG runner and modules depend only on this package.
//
// Metric names:
//
//	etl_task_total             counter   dag, task, status
//	etl_task_duration_seconds  histogram dag, task, status
//	etl_dag_runs_total         counter   dag, status
//	etl_dag_run_duration_seconds histogram dag, status
//	etl_objects_total          counter   dag, kind (uploaded, records, rows, ...)
package metrics

import (
	"sync"
	"time"
)

// Metric names understood by every backend.
const (
	TaskTotal       = "etl_task_total"
	TaskDuration    = "etl_task_duration_seconds"
	RunTotal        = "etl_dag_runs_total"
	RunDuration     = "etl_dag_run_duration_seconds"
	ObjectsTotal    = "etl_objects_total"
	statusSuccess   = "success"
	statusFailure   = "failure"
	statusCancelled = "cancelled"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// Status maps an error onto the status label.
func Status(err error, cancelled bool) string {
	switch {
	case err == nil:
		return statusSuccess
	case cancelled:
		return statusCancelled
	default:
		return statusFailure
	}
}

// RecordTask measures latency and outcome of one DAG task.
func RecordTask(dag, task string, err error, d time.Duration) {
	lbls := Labels{
		"dag":    dag,
		"task":   task,
		"status": Status(err, false),
	}
	b := current()
	b.IncCounter(TaskTotal, 1, lbls)
	b.ObserveHistogram(TaskDuration, d.Seconds(), lbls)
}

// RecordRun measures latency and outcome of a whole DAG run. cancelled
// distinguishes a timeout or interrupt from a task failure.
func RecordRun(dag string, err error, cancelled bool, d time.Duration) {
	lbls := Labels{
		"dag":    dag,
		"status": Status(err, cancelled),
	}
	b := current()
	b.IncCounter(RunTotal, 1, lbls)
	b.ObserveHistogram(RunDuration, d.Seconds(), lbls)
}

// RecordObjects increments an object-level counter for the given DAG.
//
// Typical kinds:
//   - "fetched"   characters read from the API
//   - "uploaded"  objects written to a bucket
//   - "records"   characters transformed
//   - "rows"      exploded rows written
func RecordObjects(dag, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(ObjectsTotal, float64(delta), Labels{
		"dag":  dag,
		"kind": kind,
	})
}
