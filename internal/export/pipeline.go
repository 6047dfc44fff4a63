// Package export runs the streaming pipeline that moves a result set into
// size-bounded Parquet segments.
//
// One export derives the schema once from the cursor's column metadata, then
// loops fetch -> convert -> write -> rotation check until the cursor yields an
// empty batch. Failures abort the export, close the open segment in its
// current state and are reported as *Error with one of the kinds in
// errors.go.
package export

import (
	"context"
	"sync"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"sql2parquet/internal/metrics"
	"sql2parquet/internal/parquetio"
	"sql2parquet/internal/progress"
	"sql2parquet/internal/schema"
	"sql2parquet/internal/source"
)

// Options configure an export.
type Options struct {
	Job    string
	Output string

	// RowGroupSize is the batch capacity and the rows per rowgroup.
	RowGroupSize int
	// BlockBytes is the rotation threshold; zero writes a single segment.
	BlockBytes  int64
	Compression string
	Overwrite   bool

	// Pipelined overlaps fetch, convert and write across consecutive
	// batches, with QueueDepth batches in flight between stages.
	Pipelined  bool
	QueueDepth int

	Mapper schema.Mapper
	// Fallback, when set, replaces the cursor's stringifying converter.
	Fallback source.Fallback

	// Debug adds stage timings to progress reports.
	Debug bool
	// Manifest writes {root}.manifest.json on success and on failure.
	Manifest bool

	Logger    logrus.FieldLogger
	Observers []progress.Observer
	Allocator memory.Allocator

	// OnState observes state transitions.
	OnState func(from, to State)
	Now     func() time.Time
}

// Result summarizes an export. On failure it describes what was written
// before the failure.
type Result struct {
	RunID         string
	Schema        *schema.Schema
	Rows          int64
	Batches       int
	Segments      []parquetio.SegmentInfo
	Elapsed       time.Duration
	RowsPerSecond float64
	Manifest      string
	// DroppedReports counts progress reports skipped because observers fell
	// behind.
	DroppedReports int64
}

// Exporter runs one export. It is single-use.
type Exporter struct {
	opts Options
	log  logrus.FieldLogger

	mu    sync.Mutex
	state State
}

// New returns an Exporter with defaults applied to opts.
func New(opts Options) *Exporter {
	if opts.RowGroupSize <= 0 {
		opts.RowGroupSize = source.DefaultBatchCapacity
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 1
	}
	if opts.Job == "" {
		opts.Job = "export"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Exporter{opts: opts, log: opts.Logger}
}

// State returns the current lifecycle state.
func (e *Exporter) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Exporter) setState(to State) {
	e.mu.Lock()
	from := e.state
	if from == to {
		e.mu.Unlock()
		return
	}
	if !canTransition(from, to) {
		e.log.WithFields(logrus.Fields{"from": from, "to": to}).Error("export: illegal state transition")
	}
	e.state = to
	e.mu.Unlock()
	if e.opts.OnState != nil {
		e.opts.OnState(from, to)
	}
}

// run carries the state of one export between stages.
type run struct {
	e       *Exporter
	log     logrus.FieldLogger
	id      string
	job     string
	started time.Time

	schema  *schema.Schema
	reader  *source.BatchReader
	writer  *parquetio.RowGroupWriter
	split   *parquetio.Splitter
	tracker *progress.Tracker
	disp    *progress.Dispatcher
}

func (r *run) now() time.Time { return r.e.opts.Now() }

func (r *run) since(t time.Time) time.Duration { return r.now().Sub(t) }

func (r *run) step(name string, err error, t time.Time) time.Duration {
	d := r.since(t)
	metrics.RecordStep(r.job, name, err, d)
	return d
}

// Run exports everything cur yields. The caller keeps ownership of cur.
func (e *Exporter) Run(ctx context.Context, cur source.Cursor) (res Result, err error) {
	if e.State() != Idle {
		return Result{}, errors.New("export: exporter already used")
	}

	r := &run{e: e, id: uuid.NewString(), job: e.opts.Job, started: e.opts.Now()}
	r.log = e.log.WithFields(logrus.Fields{"job": r.job, "run": r.id})
	r.tracker = progress.NewTracker(r.started, e.opts.Now)
	defer func() { metrics.RecordStep(r.job, "export", err, r.since(r.started)) }()

	if e.opts.Fallback != nil {
		cur.SetFallback(e.opts.Fallback)
	}

	t := r.now()
	s, err := e.opts.Mapper.Derive(cur.Columns())
	r.step("derive", err, t)
	if err != nil {
		return r.fail(ctx, errors.Mark(err, ErrUnsupportedType))
	}
	r.schema = s
	for i, c := range s.Columns() {
		r.log.WithField("column", i+1).Debugf("export: schema %s", c)
	}

	w, err := parquetio.NewRowGroupWriter(s, parquetio.WriterOptions{
		Compression:    e.opts.Compression,
		RowGroupLength: int64(e.opts.RowGroupSize),
		Allocator:      e.opts.Allocator,
	})
	if err != nil {
		if !errors.Is(err, ErrUnsupportedType) {
			err = errors.Mark(err, ErrWrite)
		}
		return r.fail(ctx, err)
	}
	defer w.Release()
	r.writer = w
	r.split = parquetio.NewSplitter(w, parquetio.SplitterOptions{
		Path:       e.opts.Output,
		BlockBytes: e.opts.BlockBytes,
		Overwrite:  e.opts.Overwrite,
		Logger:     r.log,
	})
	r.reader = source.NewBatchReader(cur, e.opts.RowGroupSize)
	e.setState(SchemaDerived)

	if _, err := r.split.Open(); err != nil {
		return r.fail(ctx, errors.Mark(err, ErrRotation))
	}
	r.disp = progress.NewDispatcher(16, r.log, e.opts.Observers...)
	defer r.disp.Close()
	e.setState(Streaming)
	r.log.WithFields(logrus.Fields{
		"columns":  s.Len(),
		"rowgroup": e.opts.RowGroupSize,
		"block":    e.opts.BlockBytes,
		"output":   e.opts.Output,
	}).Info("export: streaming")

	if e.opts.Pipelined {
		err = r.streamPipelined(ctx)
	} else {
		err = r.streamSequential(ctx)
	}
	if err != nil {
		return r.fail(ctx, err)
	}

	e.setState(Draining)
	before := len(r.split.Segments())
	if err := r.split.Close(); err != nil {
		return r.fail(ctx, errors.Mark(err, ErrWrite))
	}
	r.recordSegments(before)
	e.setState(Closed)
	r.disp.Close()

	res = r.result()
	if e.opts.Manifest {
		res.Manifest = r.writeManifest(parquetio.StatusComplete, nil)
	}
	r.log.WithFields(logrus.Fields{
		"rows":     res.Rows,
		"segments": len(res.Segments),
		"elapsed":  res.Elapsed.Round(time.Millisecond).String(),
	}).Infof("export: done, %d rows at %.0f rows per second", res.Rows, res.RowsPerSecond)
	return res, nil
}

// streamSequential runs fetch, convert and write one after another for each
// batch. Cancellation is checked between batches.
func (r *run) streamSequential(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return errors.Mark(err, ErrCanceled)
		}
		t := r.now()
		batch, err := r.reader.Next(ctx)
		fetch := r.step("fetch", err, t)
		if err != nil {
			return errors.Mark(err, ErrFetch)
		}
		if batch.Len() == 0 {
			return nil
		}

		t = r.now()
		rec, err := r.writer.Build(batch)
		convert := r.step("convert", err, t)
		if err != nil {
			return errors.Mark(err, ErrWrite)
		}
		if err := r.commit(rec, progress.Stages{Fetch: fetch, Convert: convert}); err != nil {
			return err
		}
	}
}

// commit appends rec to the active segment (opening it if a rotation closed
// the previous one), applies the rotation policy and reports progress. It
// releases rec.
func (r *run) commit(rec arrow.Record, st progress.Stages) error {
	defer rec.Release()
	rows := int(rec.NumRows())

	seg, err := r.split.Open()
	if err != nil {
		return errors.Mark(err, ErrRotation)
	}
	r.e.setState(Writing)

	t := r.now()
	n, err := r.writer.WriteRecord(seg, rec)
	st.Write = r.step("write", err, t)
	if err != nil {
		return errors.Mark(err, ErrWrite)
	}
	metrics.RecordRows(r.job, int64(rows))
	metrics.RecordBatches(r.job, 1)

	rotate := r.split.Account(n)
	var stages *progress.Stages
	if r.e.opts.Debug {
		stages = &st
	}
	p, report := r.tracker.Add(rows, seg.Path, seg.Seq, seg.BytesWritten(), stages)

	if rotate {
		r.e.setState(Rotating)
		before := len(r.split.Segments())
		t = r.now()
		err := r.split.Rotate()
		st.Rotate = r.step("rotate", err, t)
		if err != nil {
			return errors.Mark(err, ErrRotation)
		}
		r.recordSegments(before)
	}
	r.e.setState(Streaming)

	if report {
		r.disp.Publish(p)
	}
	return nil
}

func (r *run) recordSegments(from int) {
	segs := r.split.Segments()
	for _, s := range segs[from:] {
		metrics.RecordSegment(r.job, s.Bytes)
	}
}

// fail moves the export to Failed, closes the open segment as it is and
// returns err as *Error.
func (r *run) fail(ctx context.Context, err error) (Result, error) {
	kind := KindOf(err)
	if ctx.Err() != nil && kind != ErrUnsupportedType {
		kind = ErrCanceled
	}
	if kind == nil {
		kind = ErrWrite
	}
	ee := &Error{Kind: kind, Rows: r.tracker.Rows(), Err: err}

	r.e.setState(Failed)
	if r.disp != nil {
		r.disp.Close()
	}
	if r.split != nil {
		if seg := r.split.Active(); seg != nil {
			ee.Segment, ee.Seq = seg.Path, seg.Seq
		} else if segs := r.split.Segments(); len(segs) > 0 {
			ee.Segment, ee.Seq = segs[len(segs)-1].Path, segs[len(segs)-1].Seq
		}
		if aerr := r.split.Abort(); aerr != nil {
			r.log.WithError(aerr).Warn("export: closing partial segment failed")
		}
	}

	res := r.result()
	if r.e.opts.Manifest && len(res.Segments) > 0 {
		res.Manifest = r.writeManifest(parquetio.StatusFailed, ee)
	}
	fields := logrus.Fields{"rows": ee.Rows, "kind": kind}
	if ee.Seq > 0 {
		fields["segment"], fields["seq"] = ee.Segment, ee.Seq
		r.log.WithFields(fields).Warn("export: output is incomplete and must not be trusted")
	}
	r.log.WithFields(fields).WithError(err).Error("export: failed")
	return res, ee
}

func (r *run) result() Result {
	res := Result{
		RunID:   r.id,
		Schema:  r.schema,
		Rows:    r.tracker.Rows(),
		Batches: r.tracker.Batches(),
		Elapsed: r.tracker.Elapsed(),
	}
	res.RowsPerSecond = progress.Rate(res.Rows, res.Elapsed)
	if r.split != nil {
		res.Segments = r.split.Segments()
	}
	if r.disp != nil {
		res.DroppedReports = r.disp.Dropped()
	}
	return res
}

func (r *run) writeManifest(status string, cause error) string {
	m := parquetio.Manifest{
		RunID:      r.id,
		Job:        r.job,
		Status:     status,
		StartedAt:  r.started.UTC(),
		FinishedAt: r.now().UTC(),
		Rows:       r.tracker.Rows(),
		Segments:   r.split.Segments(),
	}
	if cause != nil {
		m.Error = cause.Error()
	}
	if r.schema != nil {
		for _, c := range r.schema.Columns() {
			m.Columns = append(m.Columns, c.Name)
		}
	}
	for _, s := range m.Segments {
		m.Bytes += s.Bytes
	}
	path, err := parquetio.WriteManifest(r.e.opts.Output, m)
	if err != nil {
		r.log.WithError(err).Warn("export: manifest not written")
		return ""
	}
	r.log.WithField("manifest", path).Debug("export: manifest written")
	return path
}
