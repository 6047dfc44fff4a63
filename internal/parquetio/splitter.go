package parquetio

import (
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

// MiB is the unit of SplitterOptions.BlockSizeMB.
const MiB = 1024 * 1024

// SplitterOptions configure rotation.
type SplitterOptions struct {
	// Path is the export's output path; segment names derive from it.
	Path string
	// BlockBytes is the rotation threshold. Zero keeps one segment for the
	// whole export.
	BlockBytes int64
	Overwrite  bool
	Logger     logrus.FieldLogger
}

// BlockBytesFromMB converts a block size in MiB to bytes.
func BlockBytesFromMB(mb int) int64 { return int64(mb) * MiB }

// Splitter owns the open segment and decides when to rotate. Rotation is only
// checked at rowgroup boundaries, so one oversized rowgroup may push a
// segment past the threshold.
type Splitter struct {
	opts   SplitterOptions
	writer *RowGroupWriter
	log    logrus.FieldLogger

	active   *Segment
	seq      int
	finished []SegmentInfo
	closed   bool
}

// NewSplitter returns a splitter that writes through w.
func NewSplitter(w *RowGroupWriter, opts SplitterOptions) *Splitter {
	l := opts.Logger
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &Splitter{opts: opts, writer: w, log: l}
}

// Rotating reports whether a block threshold is configured.
func (s *Splitter) Rotating() bool { return s.opts.BlockBytes > 0 }

// Active returns the open segment, or nil between a rotation and the next
// Open.
func (s *Splitter) Active() *Segment { return s.active }

// Seq returns the sequence number of the most recently opened segment.
func (s *Splitter) Seq() int { return s.seq }

// Open returns the active segment, opening the next one in sequence when none
// is open. Sequence numbers are never reused, even when opening fails.
func (s *Splitter) Open() (*Segment, error) {
	if s.closed {
		return nil, errors.New("splitter is closed")
	}
	if s.active != nil {
		return s.active, nil
	}
	s.seq++
	path := SegmentPath(s.opts.Path, s.seq, s.Rotating())
	seg, err := OpenSegment(path, s.seq, s.opts.Overwrite)
	if err != nil {
		return nil, err
	}
	s.active = seg
	s.log.WithFields(logrus.Fields{"segment": path, "seq": s.seq}).Debug("split: segment opened")
	return seg, nil
}

// Account adds n bytes to the active segment and reports whether it now
// exceeds the threshold.
func (s *Splitter) Account(n int64) bool {
	if s.active == nil {
		return false
	}
	if n > 0 {
		s.active.bytesWritten += n
	}
	return s.Rotating() && s.active.bytesWritten > s.opts.BlockBytes
}

// Rotate closes the active segment. The next segment is opened by the next
// call to Open.
func (s *Splitter) Rotate() error {
	if s.active == nil {
		return nil
	}
	seg := s.active
	s.active = nil
	err := s.finish(seg)
	s.log.WithFields(logrus.Fields{
		"segment": seg.Path, "seq": seg.Seq, "rows": seg.rows, "bytes": seg.bytesWritten,
	}).Info("split: rotated")
	return err
}

// Close finalizes the active segment whatever its size. A segment that never
// received a rowgroup still gets a header so it is a valid, empty container.
func (s *Splitter) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.active == nil {
		return nil
	}
	seg := s.active
	s.active = nil
	return s.finish(seg)
}

// Abort closes the active segment in its current state. It never writes a
// header that was not already written.
func (s *Splitter) Abort() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.active == nil {
		return nil
	}
	seg := s.active
	s.active = nil
	err := seg.close()
	s.finished = append(s.finished, seg.Info())
	s.log.WithFields(logrus.Fields{"segment": seg.Path, "seq": seg.Seq, "rows": seg.rows}).
		Warn("split: segment closed after failure, contents may be incomplete")
	return err
}

func (s *Splitter) finish(seg *Segment) error {
	hdrErr := s.writer.WriteHeader(seg)
	err := seg.close()
	s.finished = append(s.finished, seg.Info())
	return errors.CombineErrors(hdrErr, err)
}

// Segments returns the closed segments in sequence order.
func (s *Splitter) Segments() []SegmentInfo {
	out := make([]SegmentInfo, len(s.finished))
	copy(out, s.finished)
	return out
}
