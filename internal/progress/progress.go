// Package progress derives throughput statistics from an export's batch
// stream and delivers them to observers on a side channel.
//
// Reporting is observational only. A slow or failing observer never blocks
// or aborts the export: events are dropped when the channel is full and
// observer panics are recovered.
package progress

import (
	"time"
)

// Stages holds per-batch stage timings, populated in debug mode.
type Stages struct {
	Fetch   time.Duration
	Convert time.Duration
	Write   time.Duration
	Rotate  time.Duration
}

// Progress is one report, emitted after a completed batch.
type Progress struct {
	Batch         int
	BatchRows     int
	TotalRows     int64
	Elapsed       time.Duration
	RowsPerSecond float64

	// Segment and Seq identify the segment the batch was written to.
	Segment      string
	Seq          int
	SegmentBytes int64

	Stages *Stages
}

// Observer receives progress reports.
type Observer interface {
	Observe(p Progress)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(p Progress)

func (f ObserverFunc) Observe(p Progress) { f(p) }

// Tracker accumulates batch counts for one export. It is not safe for
// concurrent use; the pipeline's write stage owns it.
type Tracker struct {
	start   time.Time
	now     func() time.Time
	batches int
	rows    int64
}

// NewTracker starts tracking at start. now defaults to time.Now.
func NewTracker(start time.Time, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{start: start, now: now}
}

// Rows returns the cumulative row count.
func (t *Tracker) Rows() int64 { return t.rows }

// Batches returns the number of completed batches.
func (t *Tracker) Batches() int { return t.batches }

// Elapsed returns the time since start.
func (t *Tracker) Elapsed() time.Duration { return t.now().Sub(t.start) }

// Add records a completed batch and returns its report. ok is false for the
// first batch, whose rate would only measure connection and first-fetch
// latency.
func (t *Tracker) Add(rows int, segment string, seq int, segBytes int64, stages *Stages) (p Progress, ok bool) {
	t.batches++
	t.rows += int64(rows)
	elapsed := t.Elapsed()
	p = Progress{
		Batch:         t.batches,
		BatchRows:     rows,
		TotalRows:     t.rows,
		Elapsed:       elapsed,
		RowsPerSecond: Rate(t.rows, elapsed),
		Segment:       segment,
		Seq:           seq,
		SegmentBytes:  segBytes,
		Stages:        stages,
	}
	return p, t.batches > 1
}

// Rate returns rows per second, or 0 when no time has elapsed.
func Rate(rows int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(rows) / elapsed.Seconds()
}
