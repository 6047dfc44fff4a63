// Package parquetio writes row batches as Parquet rowgroups into
// size-bounded output segments and reads finished segments back.
//
// A RowGroupWriter converts each batch to an Arrow record that follows the
// derived schema and appends it to the open Segment as exactly one rowgroup.
// The Splitter owns the segments and rotates them on a byte threshold.
package parquetio

import (
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/cockroachdb/errors"

	"sql2parquet/internal/schema"
)

// ErrNullViolation is returned when a null reaches a non-nullable column.
var ErrNullViolation = errors.New("null in non-nullable column")

// Compression names accepted by WriterOptions.
var compressions = map[string]compress.Compression{
	"snappy": compress.Codecs.Snappy,
	"zstd":   compress.Codecs.Zstd,
	"gzip":   compress.Codecs.Gzip,
	"brotli": compress.Codecs.Brotli,
	"lz4":    compress.Codecs.Lz4Raw,
	"none":   compress.Codecs.Uncompressed,
}

// CompressionNames lists the accepted compression names.
func CompressionNames() []string {
	return []string{"snappy", "zstd", "gzip", "brotli", "lz4", "none"}
}

// ParseCompression resolves a compression name. Empty means snappy.
func ParseCompression(name string) (compress.Compression, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		n = "snappy"
	}
	c, ok := compressions[n]
	if !ok {
		return 0, errors.Newf("unknown compression %q (want one of %s)", name, strings.Join(CompressionNames(), ", "))
	}
	return c, nil
}

// WriterOptions tune the container encoding.
type WriterOptions struct {
	Compression string
	// RowGroupLength caps rows per rowgroup in the container. It must be at
	// least the batch capacity so a batch is never split; zero means no cap.
	RowGroupLength int64
	Allocator      memory.Allocator
}

// RowGroupWriter converts batches into rowgroups for one fixed schema.
type RowGroupWriter struct {
	schema     *schema.Schema
	arrow      *arrow.Schema
	props      *parquet.WriterProperties
	arrowProps pqarrow.ArrowWriterProperties

	rb        *array.RecordBuilder
	appenders []appendFunc
	// built counts rows converted so far; error positions are relative to
	// the whole export.
	built int64
}

// NewRowGroupWriter prepares a writer for s.
func NewRowGroupWriter(s *schema.Schema, opts WriterOptions) (*RowGroupWriter, error) {
	as, err := s.Arrow()
	if err != nil {
		return nil, err
	}
	codec, err := ParseCompression(opts.Compression)
	if err != nil {
		return nil, err
	}
	mem := opts.Allocator
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	rgLen := opts.RowGroupLength
	if rgLen <= 0 {
		rgLen = 1 << 62
	}

	w := &RowGroupWriter{
		schema: s,
		arrow:  as,
		props: parquet.NewWriterProperties(
			parquet.WithCompression(codec),
			parquet.WithMaxRowGroupLength(rgLen),
			parquet.WithAllocator(mem),
			parquet.WithCreatedBy("sql2parquet"),
		),
		arrowProps: pqarrow.NewArrowWriterProperties(
			pqarrow.WithStoreSchema(),
			pqarrow.WithAllocator(mem),
		),
		rb: array.NewRecordBuilder(mem, as),
	}
	w.appenders = make([]appendFunc, s.Len())
	for i := range w.appenders {
		fn, err := newAppender(s.Column(i), w.rb.Field(i))
		if err != nil {
			w.rb.Release()
			return nil, err
		}
		w.appenders[i] = fn
	}
	return w, nil
}

// Schema returns the schema every rowgroup conforms to.
func (w *RowGroupWriter) Schema() *schema.Schema { return w.schema }

// ArrowSchema returns the Arrow form of Schema.
func (w *RowGroupWriter) ArrowSchema() *arrow.Schema { return w.arrow }

// Release frees the builder memory.
func (w *RowGroupWriter) Release() { w.rb.Release() }

// Build converts batch into a record. Nulls become container nulls; a value
// that does not fit its column fails the whole batch. Row numbers in errors
// count from the first row this writer converted. The caller releases the
// returned record.
func (w *RowGroupWriter) Build(batch schema.RowBatch) (arrow.Record, error) {
	width := w.schema.Len()
	for i := 0; i < width; i++ {
		w.rb.Field(i).Reserve(len(batch))
	}
	for r, row := range batch {
		n := w.built + int64(r) + 1
		if len(row) != width {
			w.discard()
			return nil, errors.Newf("row %d has %d values, schema has %d columns", n, len(row), width)
		}
		for c, v := range row {
			if isNull(v) {
				if !w.schema.Column(c).Nullable {
					w.discard()
					return nil, errors.Wrapf(ErrNullViolation, "row %d column %q", n, w.schema.Column(c).Name)
				}
				w.rb.Field(c).AppendNull()
				continue
			}
			if err := w.appenders[c](v); err != nil {
				w.discard()
				col := w.schema.Column(c)
				return nil, errors.Wrapf(err, "row %d column %q (%s)", n, col.Name, col)
			}
		}
	}
	w.built += int64(len(batch))
	return w.rb.NewRecord(), nil
}

// discard drops a partially built batch. Columns may differ in length, so
// each builder is flushed on its own.
func (w *RowGroupWriter) discard() {
	for _, b := range w.rb.Fields() {
		b.NewArray().Release()
	}
}

// WriteHeader materializes the container header in seg if it has none yet.
func (w *RowGroupWriter) WriteHeader(seg *Segment) error {
	if seg.fw != nil {
		return nil
	}
	if !seg.open {
		return errors.Newf("segment %d is closed", seg.Seq)
	}
	fw, err := pqarrow.NewFileWriter(w.arrow, seg.sink, w.props, w.arrowProps)
	if err != nil {
		return errors.Wrapf(err, "write header of segment %d", seg.Seq)
	}
	seg.fw = fw
	return nil
}

// WriteRecord appends rec to seg as one rowgroup and returns the number of
// bytes the write added to the segment.
func (w *RowGroupWriter) WriteRecord(seg *Segment, rec arrow.Record) (int64, error) {
	if err := w.WriteHeader(seg); err != nil {
		return 0, err
	}
	if rec.NumRows() == 0 {
		return 0, nil
	}
	if err := seg.fw.Write(rec); err != nil {
		return 0, errors.Wrapf(err, "append rowgroup %d to segment %d", seg.rowGroups+1, seg.Seq)
	}
	if seg.sink.werr != nil {
		return 0, errors.Wrapf(seg.sink.werr, "segment %d", seg.Seq)
	}
	seg.rows += rec.NumRows()
	seg.rowGroups++

	est := seg.footprint()
	delta := est - seg.estimate
	if delta < 0 {
		delta = 0
	} else {
		seg.estimate = est
	}
	return delta, nil
}

// Write converts batch and appends it to seg.
func (w *RowGroupWriter) Write(seg *Segment, batch schema.RowBatch) (int64, error) {
	rec, err := w.Build(batch)
	if err != nil {
		return 0, err
	}
	defer rec.Release()
	return w.WriteRecord(seg, rec)
}
