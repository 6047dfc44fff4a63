package source

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"

	"sql2parquet/internal/schema"
)

// DescribeFunc translates a database/sql column type into a descriptor.
// Dialects supply one so that precision follows the ODBC column-size
// convention the type mapper expects.
type DescribeFunc func(ct *sql.ColumnType) schema.ColumnDescriptor

// SQLCursor adapts *sql.Rows to Cursor.
type SQLCursor struct {
	rows     *sql.Rows
	cols     []schema.ColumnDescriptor
	fallback Fallback
	onClose  func() error
	done     bool
}

var _ Cursor = (*SQLCursor)(nil)

// NewSQLCursor reads the column metadata of rows once and returns a cursor
// over them. onClose, when non-nil, runs after rows is closed (typically to
// close the owning *sql.DB).
func NewSQLCursor(rows *sql.Rows, describe DescribeFunc, onClose func() error) (*SQLCursor, error) {
	cts, err := rows.ColumnTypes()
	if err != nil {
		return nil, errors.Wrap(err, "column types")
	}
	cols := make([]schema.ColumnDescriptor, len(cts))
	for i, ct := range cts {
		cols[i] = describe(ct)
	}
	return &SQLCursor{rows: rows, cols: cols, fallback: DefaultFallback, onClose: onClose}, nil
}

// OpenSQL opens driverName/dsn, verifies the connection and executes stmt.
func OpenSQL(ctx context.Context, driverName, dsn, stmt string, describe DescribeFunc) (*SQLCursor, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: open", driverName)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "%s: ping", driverName)
	}
	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "%s: query", driverName)
	}
	cur, err := NewSQLCursor(rows, describe, db.Close)
	if err != nil {
		_ = rows.Close()
		_ = db.Close()
		return nil, err
	}
	return cur, nil
}

// Columns implements Cursor.
func (c *SQLCursor) Columns() []schema.ColumnDescriptor {
	out := make([]schema.ColumnDescriptor, len(c.cols))
	copy(out, c.cols)
	return out
}

// SetFallback implements Cursor. A nil fn restores DefaultFallback.
func (c *SQLCursor) SetFallback(fn Fallback) {
	if fn == nil {
		fn = DefaultFallback
	}
	c.fallback = fn
}

// Fetch implements Cursor. The context is checked once per call; an in-flight
// fetch is not interrupted.
func (c *SQLCursor) Fetch(ctx context.Context, n int) ([]schema.Row, error) {
	if c.done || n <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]schema.Row, 0, min(n, 4096))
	for len(out) < n {
		if !c.rows.Next() {
			c.done = true
			if err := c.rows.Err(); err != nil {
				return out, errors.Wrap(err, "next row")
			}
			break
		}
		row := make(schema.Row, len(c.cols))
		ptrs := make([]any, len(row))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := c.rows.Scan(ptrs...); err != nil {
			return out, errors.Wrapf(err, "scan row %d of page", len(out))
		}
		if err := ApplyFallback(c.cols, row, c.fallback); err != nil {
			return out, err
		}
		out = append(out, row)
	}
	return out, nil
}

// Close implements Cursor.
func (c *SQLCursor) Close() error {
	err := c.rows.Close()
	if c.onClose != nil {
		if cerr := c.onClose(); err == nil {
			err = cerr
		}
		c.onClose = nil
	}
	return err
}
