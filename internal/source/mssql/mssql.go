// Package mssql provides a SQL Server result cursor on top of go-mssqldb and
// registers it as the "mssql" source kind.
package mssql

import (
	"context"
	"database/sql"
	"strings"

	"github.com/cockroachdb/errors"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"sql2parquet/internal/schema"
	"sql2parquet/internal/source"
)

// openSQL is a test hook.
var openSQL = source.OpenSQL

func init() {
	source.Register("mssql", Open)
	source.Register("sqlserver", Open)
}

// Open validates the DSN, runs the configured statement and returns a cursor
// whose fallback renders UNIQUEIDENTIFIER values in canonical form.
func Open(ctx context.Context, cfg source.Config) (source.Cursor, error) {
	// Fail fast on obvious DSN mistakes before dialing.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, errors.Wrap(err, "mssql dsn")
	}
	stmt, err := cfg.Statement()
	if err != nil {
		return nil, err
	}
	cur, err := openSQL(ctx, "sqlserver", cfg.DSN, stmt, Describe)
	if err != nil {
		return nil, err
	}
	cur.SetFallback(Fallback)
	return cur, nil
}

// Describe maps a SQL Server column to a descriptor. Integer precision follows
// the ODBC column sizes (3, 5, 10, 19) and FLOAT/REAL report binary precision
// 53 and 24.
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

	switch d.TypeName {
	case "TINYINT":
		d.Tag, d.Precision = schema.TagInteger, 3
	case "SMALLINT":
		d.Tag, d.Precision = schema.TagInteger, 5
	case "INT":
		d.Tag, d.Precision = schema.TagInteger, 10
	case "BIGINT":
		d.Tag, d.Precision = schema.TagInteger, 19
	case "DECIMAL", "NUMERIC":
		d.Tag = schema.TagDecimal
		if decimalOK {
			d.Precision, d.Scale = int(precision), int(scale)
		} else {
			d.Precision, d.Scale = 18, 0
		}
	case "MONEY":
		d.Tag, d.Precision, d.Scale = schema.TagDecimal, 19, 4
	case "SMALLMONEY":
		d.Tag, d.Precision, d.Scale = schema.TagDecimal, 10, 4
	case "FLOAT":
		d.Tag, d.Precision = schema.TagFloat, 53
	case "REAL":
		d.Tag, d.Precision = schema.TagFloat, 24
	case "CHAR", "VARCHAR", "NCHAR", "NVARCHAR", "TEXT", "NTEXT":
		d.Tag = schema.TagText
	case "BINARY", "VARBINARY", "IMAGE":
		d.Tag = schema.TagBinary
	case "DATE":
		d.Tag = schema.TagDate
	case "TIME":
		d.Tag = schema.TagTime
	case "DATETIME", "DATETIME2", "SMALLDATETIME", "DATETIMEOFFSET":
		d.Tag = schema.TagDateTime
	case "BIT":
		d.Tag = schema.TagBoolean
	default:
		// GEOGRAPHY, GEOMETRY, HIERARCHYID, UNIQUEIDENTIFIER, XML, SQL_VARIANT
		// and user-defined types.
		d.Tag = schema.TagOther
	}
	return d
}

// Fallback stringifies UNIQUEIDENTIFIER values, which the driver returns as
// 16 mixed-endian bytes, and defers everything else to the default.
func Fallback(col schema.ColumnDescriptor, v any) (string, error) {
	if b, ok := v.([]byte); ok && col.TypeName == "UNIQUEIDENTIFIER" {
		var u mssql.UniqueIdentifier
		if err := u.Scan(b); err != nil {
			return "", errors.Wrap(err, "uniqueidentifier")
		}
		return u.String(), nil
	}
	return source.DefaultFallback(col, v)
}
