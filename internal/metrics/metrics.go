// Package metrics records operational metrics for exports behind a small,
// backend-agnostic interface.
//
// A process-wide backend defaults to a no-op, so instrumentation is always
// safe to call. Concrete backends live in subpackages (prompush, datadog) and
// are installed once in main with SetBackend.
//
// Metric names:
//
//   - export_step_total, export_step_duration_seconds (job, step, status)
//   - export_rows_total (job)
//   - export_batches_total (job)
//   - export_segments_total (job)
//   - export_bytes_total (job)
package metrics

import (
	"sync"
	"time"
)

// Metric names shared with the backends.
const (
	StepTotal    = "export_step_total"
	StepDuration = "export_step_duration_seconds"
	RowsTotal    = "export_rows_total"
	BatchesTotal = "export_batches_total"
	SegmentTotal = "export_segments_total"
	BytesTotal   = "export_bytes_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a duration-style value.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics if the backend needs it.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil keeps the existing one.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep counts one execution of an export step and observes its
// duration. Steps are "derive", "fetch", "convert", "write", "rotate" and
// "export".
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "step": step, "status": status}

	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRows adds delta exported rows.
func RecordRows(job string, delta int64) {
	counter(job, RowsTotal, delta)
}

// RecordBatches adds delta written rowgroups.
func RecordBatches(job string, delta int64) {
	counter(job, BatchesTotal, delta)
}

// RecordSegment counts a finished segment and its size.
func RecordSegment(job string, bytes int64) {
	counter(job, SegmentTotal, 1)
	counter(job, BytesTotal, bytes)
}

func counter(job, name string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(name, float64(delta), Labels{"job": job})
}
