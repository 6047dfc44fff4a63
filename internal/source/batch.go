package source

import (
	"context"

	"github.com/cockroachdb/errors"

	"sql2parquet/internal/schema"
)

// DefaultBatchCapacity is the rowgroup size used when none is configured.
const DefaultBatchCapacity = 1_000_000

// BatchReader pulls batches of up to Capacity rows from a cursor. It keeps
// fetching until the batch is full or the cursor reports exhaustion, so every
// batch except the last is exactly Capacity rows long regardless of how the
// driver pages.
type BatchReader struct {
	cur      Cursor
	capacity int
	width    int
	done     bool
	rows     int64
}

// NewBatchReader returns a reader over cur. capacity <= 0 selects
// DefaultBatchCapacity.
func NewBatchReader(cur Cursor, capacity int) *BatchReader {
	if capacity <= 0 {
		capacity = DefaultBatchCapacity
	}
	return &BatchReader{cur: cur, capacity: capacity, width: len(cur.Columns())}
}

// Capacity returns the configured batch size.
func (r *BatchReader) Capacity() int { return r.capacity }

// Rows returns the number of rows handed out so far.
func (r *BatchReader) Rows() int64 { return r.rows }

// Next returns the next batch. An empty batch means the cursor is exhausted;
// every later call returns an empty batch as well. Rows are passed through in
// cursor order and column order, unchanged.
func (r *BatchReader) Next(ctx context.Context) (schema.RowBatch, error) {
	if r.done {
		return nil, nil
	}
	var batch schema.RowBatch
	for len(batch) < r.capacity {
		page, err := r.cur.Fetch(ctx, r.capacity-len(batch))
		if err != nil {
			return nil, errors.Wrapf(err, "fetch after %d rows", r.rows+int64(len(batch)))
		}
		if len(page) == 0 {
			r.done = true
			break
		}
		for i, row := range page {
			if len(row) != r.width {
				return nil, errors.Newf("row %d has %d values, schema has %d columns",
					r.rows+int64(len(batch)+i)+1, len(row), r.width)
			}
		}
		if batch == nil && len(page) == r.capacity {
			batch = page
			break
		}
		if batch == nil {
			batch = make(schema.RowBatch, 0, min(r.capacity, 4*len(page)))
		}
		batch = append(batch, page...)
	}
	r.rows += int64(len(batch))
	return batch, nil
}
