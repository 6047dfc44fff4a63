// Package sqlite provides a SQLite result cursor using the pure-Go
// modernc.org/sqlite driver and registers it as the "sqlite" source kind.
//
// SQLite columns carry a declared type rather than a storage type, so
// descriptors are derived from the declared type using SQLite's affinity
// rules, refined for the date, time, boolean and decimal spellings that
// schemas commonly use.
package sqlite

import (
	"context"
	"database/sql"
	"regexp"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"sql2parquet/internal/schema"
	"sql2parquet/internal/source"
)

func init() {
	source.Register("sqlite", Open)
}

// Open runs the configured statement against the SQLite database named by
// cfg.DSN (a path or a file: URI).
func Open(ctx context.Context, cfg source.Config) (source.Cursor, error) {
	stmt, err := cfg.Statement()
	if err != nil {
		return nil, err
	}
	return source.OpenSQL(ctx, "sqlite", cfg.DSN, stmt, Describe)
}

// Describe maps a column's declared type to a descriptor.
func Describe(ct *sql.ColumnType) schema.ColumnDescriptor {
	d := DescribeDeclared(ct.Name(), ct.DatabaseTypeName())
	if n, ok := ct.Nullable(); ok {
		d.Nullable = n
	}
	return d
}

var decimalDecl = regexp.MustCompile(`^(?:DECIMAL|NUMERIC)\s*\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\)`)

// DescribeDeclared maps a declared column type.
func DescribeDeclared(name, declared string) schema.ColumnDescriptor {
	decl := strings.ToUpper(strings.TrimSpace(declared))
	d := schema.ColumnDescriptor{Name: name, TypeName: decl, Nullable: true}

	if m := decimalDecl.FindStringSubmatch(decl); m != nil {
		d.Tag = schema.TagDecimal
		d.Precision, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			d.Scale, _ = strconv.Atoi(m[2])
		}
		return d
	}

	switch {
	case decl == "":
		d.Tag = schema.TagOther
	case strings.HasPrefix(decl, "BOOL"):
		d.Tag = schema.TagBoolean
	case strings.HasPrefix(decl, "DATETIME"), strings.HasPrefix(decl, "TIMESTAMP"):
		d.Tag = schema.TagDateTime
	case decl == "DATE":
		d.Tag = schema.TagDate
	case decl == "TIME":
		d.Tag = schema.TagTime
	case strings.Contains(decl, "INT"):
		// Every SQLite integer is stored in up to 8 bytes.
		d.Tag, d.Precision = schema.TagInteger, 19
	case strings.Contains(decl, "CHAR"), strings.Contains(decl, "CLOB"), strings.Contains(decl, "TEXT"):
		d.Tag = schema.TagText
	case strings.Contains(decl, "BLOB"):
		d.Tag = schema.TagBinary
	case strings.Contains(decl, "REAL"), strings.Contains(decl, "FLOA"), strings.Contains(decl, "DOUB"):
		d.Tag, d.Precision = schema.TagFloat, 53
	default:
		// NUMERIC affinity without a declared precision: values may be
		// integers, reals or text, so export their text form.
		d.Tag = schema.TagOther
	}
	return d
}
