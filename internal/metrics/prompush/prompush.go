// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// An export is a short-lived batch job, so metrics are pushed to a
// Pushgateway on Flush rather than exposed for scraping. The job label is the
// Pushgateway grouping key; step and status are collector labels.
package prompush

import (
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"sql2parquet/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	stepCounter  *prometheus.CounterVec
	stepDuration *prometheus.SummaryVec

	// Job-level counters keyed by metric name (rows, batches, segments, bytes).
	counters map[string]prometheus.Counter
}

var counterHelp = map[string]string{
	metrics.RowsTotal:    "Rows exported.",
	metrics.BatchesTotal: "Rowgroups written.",
	metrics.SegmentTotal: "Output segments finished.",
	metrics.BytesTotal:   "Bytes written to finished segments.",
}

// NewBackend constructs a Pushgateway backend. jobName defaults to
// "sql2parquet".
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, errors.New("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "sql2parquet"
	}

	reg := prometheus.NewRegistry()
	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        reg,
		stepCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metrics.StepTotal,
				Help: "Export step executions by step and status.",
			},
			[]string{"step", "status"},
		),
		stepDuration: prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Name:       metrics.StepDuration,
				Help:       "Export step duration in seconds by step and status.",
				Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
			},
			[]string{"step", "status"},
		),
		counters: make(map[string]prometheus.Counter, len(counterHelp)),
	}

	if err := reg.Register(b.stepCounter); err != nil {
		return nil, errors.Wrap(err, "prompush: register step counter")
	}
	if err := reg.Register(b.stepDuration); err != nil {
		return nil, errors.Wrap(err, "prompush: register step summary")
	}
	for name, help := range counterHelp {
		c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrapf(err, "prompush: register %s", name)
		}
		b.counters[name] = c
	}
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if name == metrics.StepTotal {
		if b.stepCounter != nil {
			b.stepCounter.WithLabelValues(labels["step"], labels["status"]).Add(delta)
		}
		return
	}
	if c, ok := b.counters[name]; ok {
		c.Add(delta)
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDuration || b.stepDuration == nil {
		return
	}
	b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
