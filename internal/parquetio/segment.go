package parquetio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/cockroachdb/errors"
	"github.com/zeebo/xxh3"
)

const sinkBufferSize = 1 << 20

// SegmentPath names segment seq of an export whose output is path. With
// rotation the segment number is appended to the root as a zero-padded
// suffix (out_00001.parquet); without it the path is used as is.
func SegmentPath(path string, seq int, rotating bool) string {
	if !rotating {
		return path
	}
	ext := filepath.Ext(path)
	root := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s_%05d%s", root, seq, ext)
}

// countingSink sits between the parquet file writer and the buffered file. It
// counts and hashes every byte handed to the file.
type countingSink struct {
	w    io.Writer
	h    *xxh3.Hasher
	n    int64
	werr error
}

func (c *countingSink) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	_, _ = c.h.Write(p[:n])
	if err != nil && c.werr == nil {
		c.werr = err
	}
	return n, err
}

// SegmentInfo describes a finished segment.
type SegmentInfo struct {
	Path      string `json:"path"`
	Seq       int    `json:"seq"`
	Rows      int64  `json:"rows"`
	RowGroups int    `json:"row_groups"`
	Bytes     int64  `json:"bytes"`
	Checksum  string `json:"xxh3"`
	Complete  bool   `json:"complete"`
}

// Segment is one output file. It is owned by a Splitter; the RowGroupWriter
// only appends to it.
type Segment struct {
	Path string
	Seq  int

	file *os.File
	buf  *bufio.Writer
	sink *countingSink
	fw   *pqarrow.FileWriter

	bytesWritten int64 // accounted by the splitter
	estimate     int64 // last footprint reported by the writer
	rows         int64
	rowGroups    int
	open         bool
	info         SegmentInfo
}

// OpenSegment creates the file for segment seq. Unless overwrite is set an
// existing file is an error.
func OpenSegment(path string, seq int, overwrite bool) (*Segment, error) {
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create directory for segment %d", seq)
		}
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open segment %d", seq)
	}
	buf := bufio.NewWriterSize(f, sinkBufferSize)
	return &Segment{
		Path: path,
		Seq:  seq,
		file: f,
		buf:  buf,
		sink: &countingSink{w: buf, h: xxh3.New()},
		open: true,
	}, nil
}

// IsOpen reports whether the segment still accepts rowgroups.
func (s *Segment) IsOpen() bool { return s.open }

// BytesWritten is the accounted size of the segment so far.
func (s *Segment) BytesWritten() int64 { return s.bytesWritten }

// Rows returns the number of rows appended to the segment.
func (s *Segment) Rows() int64 { return s.rows }

// RowGroups returns the number of rowgroups appended to the segment.
func (s *Segment) RowGroups() int { return s.rowGroups }

// HasHeader reports whether the container header has been written.
func (s *Segment) HasHeader() bool { return s.fw != nil }

// Info returns the segment summary. Checksum and Complete are set once the
// segment has been closed.
func (s *Segment) Info() SegmentInfo {
	if s.open {
		return SegmentInfo{Path: s.Path, Seq: s.Seq, Rows: s.rows, RowGroups: s.rowGroups, Bytes: s.bytesWritten}
	}
	return s.info
}

// footprint is the segment's current size: bytes already handed to the file
// plus compressed bytes still buffered in the open rowgroup.
func (s *Segment) footprint() int64 {
	n := s.sink.n
	if s.fw != nil {
		if pending := s.fw.RowGroupTotalCompressedBytes() - s.fw.RowGroupTotalBytesWritten(); pending > 0 {
			n += pending
		}
	}
	return n
}

// close finalizes the container (footer included when a header was
// written), flushes and releases the file. It is idempotent.
func (s *Segment) close() error {
	if !s.open {
		return nil
	}
	s.open = false

	var errs error
	complete := s.fw != nil
	if s.fw != nil {
		if err := s.fw.Close(); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "finalize segment %d", s.Seq))
			complete = false
		}
	}
	if err := s.buf.Flush(); err != nil {
		errs = errors.CombineErrors(errs, errors.Wrapf(err, "flush segment %d", s.Seq))
		complete = false
	}
	if err := s.file.Sync(); err != nil {
		errs = errors.CombineErrors(errs, errors.Wrapf(err, "sync segment %d", s.Seq))
	}
	dropCache(s.file)
	if err := s.file.Close(); err != nil {
		errs = errors.CombineErrors(errs, errors.Wrapf(err, "close segment %d", s.Seq))
	}

	s.info = SegmentInfo{
		Path:      s.Path,
		Seq:       s.Seq,
		Rows:      s.rows,
		RowGroups: s.rowGroups,
		Bytes:     s.sink.n,
		Checksum:  fmt.Sprintf("%016x", s.sink.h.Sum64()),
		Complete:  complete && errs == nil,
	}
	return errs
}
