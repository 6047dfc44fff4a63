package source

import (
	"context"

	"sql2parquet/internal/schema"
)

// SliceCursor serves a fixed set of rows from memory. It backs tests and
// benchmarks; FailAt, when positive, makes Fetch fail once that many rows
// have been served.
type SliceCursor struct {
	Cols []schema.ColumnDescriptor
	Rows []schema.Row

	// FailAt and Err inject a fetch failure after FailAt rows.
	FailAt int
	Err    error

	pos      int
	fallback Fallback
	closed   bool
	fetches  int
}

var _ Cursor = (*SliceCursor)(nil)

func (c *SliceCursor) Columns() []schema.ColumnDescriptor { return c.Cols }

func (c *SliceCursor) SetFallback(fn Fallback) { c.fallback = fn }

func (c *SliceCursor) Fetch(ctx context.Context, n int) ([]schema.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.fetches++
	end := min(c.pos+n, len(c.Rows))
	if c.FailAt > 0 && end > c.FailAt {
		return nil, c.Err
	}
	out := make([]schema.Row, 0, end-c.pos)
	for _, r := range c.Rows[c.pos:end] {
		row := append(schema.Row(nil), r...)
		if err := ApplyFallback(c.Cols, row, c.fallback); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	c.pos = end
	return out, nil
}

func (c *SliceCursor) Close() error {
	c.closed = true
	return nil
}

// Closed reports whether Close was called.
func (c *SliceCursor) Closed() bool { return c.closed }

// Fetches reports how many times Fetch was called.
func (c *SliceCursor) Fetches() int { return c.fetches }

// GenCursor produces Total rows on demand from Gen without holding them in
// memory. Page, when positive, caps the rows returned per Fetch to mimic
// drivers that page short.
type GenCursor struct {
	Cols  []schema.ColumnDescriptor
	Total int
	Gen   func(i int) schema.Row
	Page  int

	pos int
}

var _ Cursor = (*GenCursor)(nil)

func (c *GenCursor) Columns() []schema.ColumnDescriptor { return c.Cols }

func (c *GenCursor) SetFallback(Fallback) {}

func (c *GenCursor) Fetch(ctx context.Context, n int) ([]schema.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Page > 0 && n > c.Page {
		n = c.Page
	}
	end := min(c.pos+n, c.Total)
	out := make([]schema.Row, 0, end-c.pos)
	for ; c.pos < end; c.pos++ {
		out = append(out, c.Gen(c.pos))
	}
	return out, nil
}

func (c *GenCursor) Close() error { return nil }
