// Package mysql provides a MySQL/MariaDB result cursor using
// go-sql-driver/mysql and registers it as the "mysql" source kind.
package mysql

import (
	"context"
	"database/sql"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-sql-driver/mysql"

	"sql2parquet/internal/schema"
	"sql2parquet/internal/source"
)

// openSQL is a test hook.
var openSQL = source.OpenSQL

func init() {
	source.Register("mysql", Open)
}

// Open runs the configured statement. parseTime is forced on so DATE and
// DATETIME columns arrive as time.Time.
func Open(ctx context.Context, cfg source.Config) (source.Cursor, error) {
	dsn, err := normalizeDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	stmt, err := cfg.Statement()
	if err != nil {
		return nil, err
	}
	cur, err := openSQL(ctx, "mysql", dsn, stmt, Describe)
	if err != nil {
		return nil, err
	}
	cur.SetFallback(Fallback)
	return cur, nil
}

// Fallback renders JSON and other textual payloads, which the driver returns
// as raw bytes, as text. GEOMETRY keeps the hex form.
func Fallback(col schema.ColumnDescriptor, v any) (string, error) {
	if b, ok := v.([]byte); ok && col.TypeName != "GEOMETRY" {
		return string(b), nil
	}
	return source.DefaultFallback(col, v)
}

func normalizeDSN(dsn string) (string, error) {
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", errors.Wrap(err, "mysql dsn")
	}
	mc.ParseTime = true
	return mc.FormatDSN(), nil
}

// Describe maps a MySQL column to a descriptor. Unsigned integers are widened
// one step so their full range fits the mapped signed type.
func Describe(ct *sql.ColumnType) schema.ColumnDescriptor {
	p, sc, ok := ct.DecimalSize()
	d := describe(ct.Name(), ct.DatabaseTypeName(), p, sc, ok)
	if n, ok := ct.Nullable(); ok {
		d.Nullable = n
	}
	return d
}

func describe(name, typeName string, precision, scale int64, decimalOK bool) schema.ColumnDescriptor {
	d := schema.ColumnDescriptor{
		Name:     name,
		TypeName: strings.ToUpper(typeName),
		Nullable: true,
	}

	base, unsigned := strings.CutPrefix(d.TypeName, "UNSIGNED ")
	switch base {
	case "TINYINT":
		d.Tag, d.Precision = schema.TagInteger, pick(unsigned, 5, 3)
	case "SMALLINT", "YEAR":
		d.Tag, d.Precision = schema.TagInteger, pick(unsigned, 10, 5)
	case "MEDIUMINT":
		d.Tag, d.Precision = schema.TagInteger, pick(unsigned, 10, 7)
	case "INT", "INTEGER":
		d.Tag, d.Precision = schema.TagInteger, pick(unsigned, 19, 10)
	case "BIGINT":
		if unsigned {
			d.Tag, d.Precision, d.Scale = schema.TagDecimal, 20, 0
		} else {
			d.Tag, d.Precision = schema.TagInteger, 19
		}
	case "DECIMAL", "NUMERIC":
		d.Tag = schema.TagDecimal
		if decimalOK {
			d.Precision, d.Scale = int(precision), int(scale)
		} else {
			d.Precision, d.Scale = 10, 0
		}
	case "FLOAT":
		d.Tag, d.Precision = schema.TagFloat, 24
	case "DOUBLE", "REAL":
		d.Tag, d.Precision = schema.TagFloat, 53
	case "CHAR", "VARCHAR", "TEXT", "TINYTEXT", "MEDIUMTEXT", "LONGTEXT", "ENUM", "SET":
		d.Tag = schema.TagText
	case "BINARY", "VARBINARY", "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BIT":
		d.Tag = schema.TagBinary
	case "DATE":
		d.Tag = schema.TagDate
	case "TIME":
		d.Tag = schema.TagTime
	case "DATETIME", "TIMESTAMP":
		d.Tag = schema.TagDateTime
	case "BOOL", "BOOLEAN":
		d.Tag = schema.TagBoolean
	default:
		// JSON, GEOMETRY and friends.
		d.Tag = schema.TagOther
	}
	return d
}

func pick(cond bool, a, b int) int {
	if cond {
		return a
	}
	return b
}
