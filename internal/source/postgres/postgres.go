// Package postgres provides a native pgx v5 result cursor and registers it as
// the "postgres" source kind.
//
// Rows are decoded by pgx's type map, so numerics arrive as pgtype.Numeric
// (exact) and time-of-day as pgtype.Time. The wire protocol does not report
// nullability; every column is treated as nullable.
package postgres

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"sql2parquet/internal/schema"
	"sql2parquet/internal/source"
)

func init() {
	source.Register("postgres", Open)
	source.Register("postgresql", Open)
}

// Cursor streams a pgx result set.
type Cursor struct {
	conn     *pgx.Conn
	rows     pgx.Rows
	cols     []schema.ColumnDescriptor
	fallback source.Fallback
	done     bool
}

var _ source.Cursor = (*Cursor)(nil)

// Open connects with cfg.DSN and runs the configured statement.
func Open(ctx context.Context, cfg source.Config) (source.Cursor, error) {
	stmt, err := cfg.Statement()
	if err != nil {
		return nil, err
	}
	cc, err := connConfig(cfg)
	if err != nil {
		return nil, err
	}
	conn, err := pgx.ConnectConfig(ctx, cc)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: connect")
	}
	rows, err := conn.Query(ctx, stmt)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, errors.Wrap(err, "postgres: query")
	}

	fds := rows.FieldDescriptions()
	cols := make([]schema.ColumnDescriptor, len(fds))
	for i, fd := range fds {
		cols[i] = describe(fd, typeName(conn.TypeMap(), fd.DataTypeOID))
	}
	return &Cursor{conn: conn, rows: rows, cols: cols, fallback: Fallback}, nil
}

// connConfig parses the DSN and applies the backend options:
// application_name (default "sql2parquet"), connect_timeout_seconds and
// runtime_params, an object of session settings such as search_path.
func connConfig(cfg source.Config) (*pgx.ConnConfig, error) {
	cc, err := pgx.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "postgres dsn")
	}
	if _, ok := cc.RuntimeParams["application_name"]; !ok {
		cc.RuntimeParams["application_name"] = cfg.Options.String("application_name", "sql2parquet")
	}
	for k, v := range cfg.Options.StringMap("runtime_params") {
		cc.RuntimeParams[k] = v
	}
	if s := cfg.Options.Int("connect_timeout_seconds", 0); s > 0 {
		cc.ConnectTimeout = time.Duration(s) * time.Second
	}
	return cc, nil
}

func typeName(m *pgtype.Map, oid uint32) string {
	if t, ok := m.TypeForOID(oid); ok {
		return t.Name
	}
	return fmt.Sprintf("oid:%d", oid)
}

// describe maps a field description. Integer and float precision follow the
// ODBC conventions; numeric precision and scale come from the type modifier.
func describe(fd pgconn.FieldDescription, name string) schema.ColumnDescriptor {
	d := schema.ColumnDescriptor{Name: fd.Name, TypeName: name, Nullable: true}

	switch fd.DataTypeOID {
	case pgtype.Int2OID:
		d.Tag, d.Precision = schema.TagInteger, 5
	case pgtype.Int4OID:
		d.Tag, d.Precision = schema.TagInteger, 10
	case pgtype.Int8OID:
		d.Tag, d.Precision = schema.TagInteger, 19
	case pgtype.NumericOID:
		if fd.TypeModifier >= 4 {
			mod := fd.TypeModifier - 4
			d.Tag = schema.TagDecimal
			d.Precision = int((mod >> 16) & 0xffff)
			d.Scale = int(mod & 0xffff)
		} else {
			// Unconstrained numeric has no fixed scale; export text to keep
			// every digit.
			d.Tag = schema.TagOther
		}
	case pgtype.Float4OID:
		d.Tag, d.Precision = schema.TagFloat, 24
	case pgtype.Float8OID:
		d.Tag, d.Precision = schema.TagFloat, 53
	case pgtype.TextOID, pgtype.VarcharOID, pgtype.BPCharOID, pgtype.NameOID:
		d.Tag = schema.TagText
	case pgtype.ByteaOID:
		d.Tag = schema.TagBinary
	case pgtype.DateOID:
		d.Tag = schema.TagDate
	case pgtype.TimeOID:
		d.Tag = schema.TagTime
	case pgtype.TimestampOID, pgtype.TimestamptzOID:
		d.Tag = schema.TagDateTime
	case pgtype.BoolOID:
		d.Tag = schema.TagBoolean
	default:
		d.Tag = schema.TagOther
	}
	return d
}

// Fallback renders uuid, json and driver.Valuer values; the rest goes to the
// default fallback.
func Fallback(col schema.ColumnDescriptor, v any) (string, error) {
	switch x := v.(type) {
	case [16]byte:
		return uuid.UUID(x).String(), nil
	case pgtype.Numeric:
		b, err := x.MarshalJSON()
		if err != nil {
			return "", err
		}
		return string(b), nil
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return "", err
		}
		if s, ok := dv.(string); ok {
			return s, nil
		}
		return source.DefaultFallback(col, dv)
	}
	return source.DefaultFallback(col, v)
}

func (c *Cursor) Columns() []schema.ColumnDescriptor {
	out := make([]schema.ColumnDescriptor, len(c.cols))
	copy(out, c.cols)
	return out
}

func (c *Cursor) SetFallback(fn source.Fallback) {
	if fn == nil {
		fn = Fallback
	}
	c.fallback = fn
}

func (c *Cursor) Fetch(ctx context.Context, n int) ([]schema.Row, error) {
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
				return out, errors.Wrap(err, "postgres: next row")
			}
			break
		}
		vals, err := c.rows.Values()
		if err != nil {
			return out, errors.Wrap(err, "postgres: decode row")
		}
		row := schema.Row(vals)
		if err := source.ApplyFallback(c.cols, row, c.fallback); err != nil {
			return out, err
		}
		out = append(out, row)
	}
	return out, nil
}

func (c *Cursor) Close() error {
	c.rows.Close()
	return c.conn.Close(context.Background())
}
